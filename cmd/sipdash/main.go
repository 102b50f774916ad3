package main

import (
	"os"

	"github.com/soyeahso/sipdash/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Restart on binary rebuilds during development.
	if os.Getenv("SIPDASH_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		os.Stderr.WriteString("sipdash: " + err.Error() + "\n")
		os.Exit(1)
	}
}
