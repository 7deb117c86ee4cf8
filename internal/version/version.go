// Package version holds build information injected with -ldflags -X, for
// example:
//
//	go build -ldflags "-X github.com/jmylchreest/topicrelay/internal/version.Version=1.2.0 \
//	  -X github.com/jmylchreest/topicrelay/internal/version.Commit=$(git rev-parse HEAD) \
//	  -X github.com/jmylchreest/topicrelay/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"

	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

var (
	// Version is the semantic version of the release.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// Date is the build time in RFC3339 format.
	Date = "unknown"
)

// Info is the JSON form printed by "topicrelay version --json".
type Info struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	Date            string `json:"date"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
	ProtocolVersion string `json:"protocol_version"`
}

// GetInfo returns the build information.
func GetInfo() Info {
	return Info{
		Version:         Version,
		Commit:          Commit,
		Date:            Date,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
		ProtocolVersion: plugin.ProtocolVersion,
	}
}

// String returns a one line description for humans.
func String() string {
	info := GetInfo()
	if Commit == "unknown" || Date == "unknown" {
		return fmt.Sprintf("topicrelay version %s (%s, %s, rewriter protocol %s)",
			info.Version, info.GoVersion, info.Platform, info.ProtocolVersion)
	}
	return fmt.Sprintf("topicrelay version %s (commit: %s, built: %s, %s, %s, rewriter protocol %s)",
		info.Version, shortCommit(info.Commit), info.Date, info.GoVersion, info.Platform, info.ProtocolVersion)
}

// Short returns the bare version.
func Short() string {
	return Version
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
