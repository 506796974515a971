package buildinfo

import "fmt"

// Version, Commit and Date are set at build time via -ldflags, e.g.
// -X spool/internal/buildinfo.Version=v0.3.0.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the window title and logs.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Long returns every build field on one line.
func Long() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Short(), Commit, Date)
}
