// Package version carries build metadata stamped in via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String renders the version line printed by the version command.
func String() string {
	return fmt.Sprintf("signdeck %s (commit %s, built %s, %s %s/%s)",
		Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
