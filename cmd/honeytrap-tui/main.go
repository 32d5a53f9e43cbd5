// Package main provides the operator TUI entry point for honeytrap
package main

import (
	"flag"
	"fmt"
	"os"

	"honeytrap/internal/tui"
)

var version = "dev"

func main() {
	var (
		showVersion bool
		serverURL   string
		apiKey      string
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "Honeytrap server URL")
	flag.StringVar(&serverURL, "s", "http://localhost:8080", "Honeytrap server URL (shorthand)")
	flag.StringVar(&apiKey, "api-key", os.Getenv("HONEYTRAP_API_KEY"), "API key for authenticated backends")
	flag.Parse()

	if showVersion {
		fmt.Printf("honeytrap-tui %s\n", version)
		os.Exit(0)
	}

	fmt.Println("Starting honeytrap TUI...")
	fmt.Printf("Connecting to: %s\n", serverURL)

	if err := tui.Run(serverURL, apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
