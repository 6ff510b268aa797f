// Package version reports build information for the eyedrive binaries
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables, set with -ldflags "-X eyedrive/internal/version.Version=..."
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns the build information of the running binary
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns the version with the abbreviated commit, if known
func Short() string {
	if GitCommit != "unknown" && len(GitCommit) > 7 {
		return Version + "-" + GitCommit[:7]
	}
	return Version
}

// String formats the build information for a --version flag
func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString(b.Version)
	if b.GitCommit != "unknown" {
		fmt.Fprintf(&sb, " (commit %s)", b.GitCommit)
	}
	if b.BuildDate != "unknown" {
		fmt.Fprintf(&sb, ", built %s", b.BuildDate)
	}
	fmt.Fprintf(&sb, ", %s %s", b.GoVersion, b.Platform)
	return sb.String()
}

// Info returns "<app> version <build info>"
func Info(app string) string {
	return app + " version " + Get().String()
}
