// Package main is the entry point for the pagecast application.
package main

import (
	"os"

	"github.com/jmylchreest/pagecast/cmd/pagecast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
