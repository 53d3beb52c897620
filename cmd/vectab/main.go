// Package main is the entry point for the vectab CLI binary.
package main

import (
	"os"

	cli "github.com/USDAForestService/gdalraster-sub000/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
