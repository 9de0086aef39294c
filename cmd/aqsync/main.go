// Package main provides the aqsync CLI application.
// aqsync keeps a TimescaleDB air quality store in step with the European
// air quality distribution service.
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
