// Package version reports build metadata. The values identify this client
// to the backend in REST requests and in the hub handshake.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/sipdash/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/sipdash/internal/version.Commit=abc123
//	  -X github.com/soyeahso/sipdash/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ClientID is the name the client announces to the backend.
const ClientID = "sipdash"

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s)",
		ClientID, Version, ShortCommit(), Date, Platform())
}

// Platform is GOOS/GOARCH.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// UserAgent is sent on every REST request.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", ClientID, Version, Platform())
}

// ShortCommit returns the first seven characters of Commit.
func ShortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
