// Package version reports the build of the bpmigrate binary.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
)

//go:embed VERSION
var versionFile string

// Build-time variables set via ldflags
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Version returns the release number without the leading "v".
func Version() string {
	return strings.TrimSpace(versionFile)
}

// Platform returns the OS/architecture combination
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// String renders the build as "v<version>@<commit> <platform> <date>".
func String() string {
	return fmt.Sprintf("v%s@%s %s %s", Version(), GitCommit, Platform(), BuildDate)
}
