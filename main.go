// The main package for the imgcrawler executable.
package main

import (
	"github.com/webharvest/imgcrawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
