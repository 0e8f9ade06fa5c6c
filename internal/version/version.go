// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the semantic version or git tag of the build.
	Version = "dev"
	// Commit is the short git commit hash.
	Commit = "unknown"
)
