package main

import (
	"os"

	"github.com/instantcocoa/verdict/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
