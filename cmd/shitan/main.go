package main

import (
	"os"

	"github.com/shitan-ai/shitan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
