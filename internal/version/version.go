// Package version carries build metadata stamped in at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 ..."
//
// Unstamped builds report dev/unknown.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String renders the build metadata in one line, as printed by
// `geofix -version` and logged at startup.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
