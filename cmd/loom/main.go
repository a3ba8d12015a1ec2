// Package main is the loom command.
package main

import (
	"os"

	"github.com/nicholasyager/dbt-loom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
