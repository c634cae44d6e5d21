package main

import (
	"os"

	"github.com/Additional-Code/auctionroom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
