package main

import (
	"os"

	"github.com/bundlesmith/bundlesmith/cmd"
)

func main() {
	if err := cmd.RootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
