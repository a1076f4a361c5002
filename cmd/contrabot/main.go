package main

import (
	"os"

	"github.com/mkearny/contrabot/cmd/contrabot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
