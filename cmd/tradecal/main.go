package main

import (
	"os"

	"tradecal/cmd/tradecal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
