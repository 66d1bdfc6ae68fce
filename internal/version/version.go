// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/coderag/internal/version.Version=v1.2.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent identifies a client component in outgoing HTTP requests.
func UserAgent(component string) string {
	return "coderag-" + component + "/" + Version
}
