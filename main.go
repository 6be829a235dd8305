// The main package for the scrape-ingest executable.
package main

import (
	"github.com/JakeFAU/scrape-ingest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
