package main

import (
	"os"

	"cipherlog/cmd/cipherlog/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
