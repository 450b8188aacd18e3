package main

import (
	"os"

	"mediaPipeline/ctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
