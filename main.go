package main

import (
	"os"

	"github.com/adalundhe/skillvcs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
