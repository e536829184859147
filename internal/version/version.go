// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/fdbesanto2/PDAL/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag of the point tools
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for a -version flag.
func String(program string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", program, Version, GitSHA, BuildTime)
}
