// Package version defines ZaguanBlade client version information and build
// metadata.
//
// The semantic version declared here is also the protocol version stamped on
// every outbound envelope, so bumping it is a protocol-visible change.
//
// Build metadata (CommitHash) should be set using -ldflags during compilation.
package version

import (
	"fmt"
	"strings"
)

// CommitHash stores the current git commit hash of this build.
//
// This should be set using -ldflags during compilation.
var CommitHash string

// These constants define the application and protocol version and follow the
// semantic versioning 2.0.0 spec (https://semver.org/).
const (
	AppMajor uint = 1
	AppMinor uint = 2
	AppPatch uint = 0
)

// Version returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (https://semver.org/).
func Version() string {
	return fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
}

// RichVersion returns the semantic version along with best-effort git metadata.
func RichVersion() string {
	if hash := strings.TrimSpace(CommitHash); hash != "" {
		return fmt.Sprintf("%s commit_hash=%s", Version(), hash)
	}
	return Version()
}
