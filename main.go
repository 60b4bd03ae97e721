package main

import (
	"os"

	"github.com/vantagesign/signdeck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
