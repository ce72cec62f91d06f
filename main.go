package main

import (
	"Tunevault/cmd"
)

func main() {
	// Cobra exits the process itself on a failed command.
	cmd.Execute()
}
