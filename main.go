package main

import (
	"os"

	"github.com/dayal123456/Lumico-ai/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
