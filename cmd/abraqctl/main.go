package main

import (
	"os"

	"github.com/abraq/abraq-accounts/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
