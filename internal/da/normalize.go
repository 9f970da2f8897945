package da

import (
	"regexp"
	"strings"
)

var spaceRuns = regexp.MustCompile(` {2,}`)

// CleanWhitespace replaces line breaks with spaces, squeezes space runs, and trims.
func CleanWhitespace(text string) string {
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeAddress appends ", <jurisdiction>" unless the address already ends
// with the jurisdiction. The match is case-sensitive; empty addresses are kept empty.
func NormalizeAddress(address, jurisdiction string) string {
	address = strings.TrimSpace(address)
	if address == "" || jurisdiction == "" || strings.HasSuffix(address, jurisdiction) {
		return address
	}
	return address + ", " + jurisdiction
}
