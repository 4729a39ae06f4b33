// Package version carries the build identity stamped in via ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/metapipe/internal/version.Version=v0.3.0"
package version

// Version is the release tag, or "unknown" for untagged builds.
var Version = "unknown"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
