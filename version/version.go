// Package version reports build metadata injected through ldflags.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/teranos/waypoint/version.Version=v0.4.0 ..."
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Semver parses Version. Returns nil for dev builds or untagged strings.
func (i Info) Semver() *semver.Version {
	v, err := semver.NewVersion(i.Version)
	if err != nil {
		return nil
	}
	return v
}

// IsRelease reports a tagged build without a pre-release suffix
func (i Info) IsRelease() bool {
	v := i.Semver()
	return v != nil && v.Prerelease() == ""
}

// String returns a human-readable version string
func (i Info) String() string {
	if v := i.Semver(); v != nil {
		return fmt.Sprintf("waypoint v%s (commit %s, built %s)", v.String(), i.Short(), i.BuildTime)
	}
	return fmt.Sprintf("waypoint %s (commit %s, built %s)", i.Version, i.Short(), i.BuildTime)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
