package extract

import "github.com/PuerkitoBio/goquery"

// DescriptionRule picks the free-text description out of an item's link element.
type DescriptionRule interface {
	Description(link *goquery.Selection) (string, bool)
}

// FirstClasslessParagraph takes the first <p> under the link with no class
// attribute. Styled paragraphs carry metadata (reference, address, dates).
type FirstClasslessParagraph struct{}

// Description implements DescriptionRule.
func (FirstClasslessParagraph) Description(link *goquery.Selection) (string, bool) {
	p := link.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		_, hasClass := s.Attr("class")
		return !hasClass
	}).First()
	if p.Length() == 0 {
		return "", false
	}
	return p.Text(), true
}

// DescriptionRuleFunc adapts a function to DescriptionRule.
type DescriptionRuleFunc func(link *goquery.Selection) (string, bool)

// Description implements DescriptionRule.
func (f DescriptionRuleFunc) Description(link *goquery.Selection) (string, bool) {
	return f(link)
}
