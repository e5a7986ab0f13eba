// Command dpp is the dataset passport registry CLI.
package main

import (
	"os"

	"github.com/kilupskalvis/dpp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
