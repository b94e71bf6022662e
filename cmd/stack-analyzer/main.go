package main

import (
	"os"

	"github.com/coral-mesh/stack-analyzer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
