package main

import (
	"os"

	"github.com/usagecast/usagecast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
