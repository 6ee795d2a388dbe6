// Package main is the entry point for the fintool CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/fintool/cmd/fintool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
