package main

import (
	"os"

	"github.com/conveyorbuild/conveyor/src/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
