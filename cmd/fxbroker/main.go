package main

import (
	"os"

	"github.com/rustyeddy/fxbroker/cmd/fxbroker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
