// Package main is the entry point for the noco CLI binary.
package main

import (
	"os"

	cli "noco-bridge/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
