// Package main provides the entry point for the forumsearch CLI.
package main

import (
	"os"

	"github.com/xHumanityRO/forumsearch/cmd/forumsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
