// Package main provides the streets CLI, the operational entry point for
// ingesting reference data, fetching addresses, resolving thoroughfares
// and writing exports.
package main

import (
	"os"
)

var (
	// Version is set by build flags
	Version = "dev"
)

func main() {
	if err := getRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
