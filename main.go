// The main package for the da-scraper executable.
package main

import (
	"os"

	"github.com/JakeFAU/council-da-scraper/cmd"
)

// main defers all execution to the Cobra CLI and exits with its status.
func main() {
	os.Exit(cmd.Execute())
}
