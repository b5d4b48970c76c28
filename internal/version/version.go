package version

import "fmt"

// Version is overridden at build time:
// go build -ldflags "-X git.home.luguber.info/inful/neuroflow/internal/version.Version=v0.3.0".
var Version = "unknown"

// Build metadata, also set through ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by `neuroflow --version` and stored with each run.
func String() string {
	return fmt.Sprintf("neuroflow %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
