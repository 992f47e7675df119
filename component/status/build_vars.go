package status

import (
	"fmt"
	"runtime"
)

// Build metadata, injected at link time via -ldflags. Defaults describe a
// local development build.
var (
	// GitCommit is the hash of the commit the binary was built from.
	GitCommit = "unknown"
	// GitVersion is the release tag, when the build commit carries one.
	GitVersion string
	// GitBranch is the branch the binary was built from.
	GitBranch = "development"
)

// Version returns the release tag when available, the branch otherwise.
func Version() string {
	if GitVersion != "" && GitVersion != "undefined" {
		return GitVersion
	}
	return GitBranch
}

// OSArch returns the platform the binary was built for.
func OSArch() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}

// BuildInfo renders the build metadata served on the internal build endpoint.
func BuildInfo() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nOS/Arch: %s\n", Version(), GitCommit, OSArch())
}
