package main

import (
	"os"

	"github.com/acme-isv/qindex-broker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
