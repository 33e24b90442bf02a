package main

import (
	"os"

	"github.com/menucast/outhook/cmd/outhookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
