package main

import (
	"os"

	"github.com/esiweave/esiweave/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
