// The main package for the flare-crawler executable.
package main

import (
	"github.com/JakeFAU/flare-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
