package main

import (
	"fmt"
	"os"

	"github.com/codefionn/chatline/internal/securemem"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer securemem.Purge()

	cmd := rootCmd()
	cmd.AddCommand(serveCmd(), versionCmd())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		securemem.Purge()
		os.Exit(1)
	}
}
