// Package main is the entry point for the data-sharing coordinator server.
package main

import (
	"os"

	"github.com/researchportal/datashare-coordinator/cmd/datashare-coordinator/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
