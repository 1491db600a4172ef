// The main package for the idprobe executable.
package main

import (
	"github.com/JakeFAU/idprobe/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
