package main

import (
	"os"

	"trustkit/cmd/trustkit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
