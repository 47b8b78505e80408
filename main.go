// The main package for the pagevet executable.
package main

import (
	"github.com/pagevet/pagevet/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
