// The main package for the bundlearchiver executable.
package main

import (
	"github.com/JakeFAU/bundle-archiver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
