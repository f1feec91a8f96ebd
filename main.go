// The main package for the crossword-scraper executable.
package main

import (
	"github.com/JakeFAU/crossword-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
