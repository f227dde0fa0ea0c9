// Package main provides the entry point for the shadowfinder CLI.
package main

import (
	"os"

	"github.com/anupammaurya6767/shadowfinder/cmd/shadowfinder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
