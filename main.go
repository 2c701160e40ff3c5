// The main package for the ecfr-snapshot executable.
package main

import (
	"github.com/JakeFAU/ecfr-snapshot/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
