// SPDX-License-Identifier: MIT
//
// Package build carries the version metadata linked into the binary:
//
//	go build -ldflags "-X rtfft/pkg/build.buildName=rtfft \
//	    -X rtfft/pkg/build.buildVersion=v0.3.0 \
//	    -X rtfft/pkg/build.buildCommit=$(git rev-parse HEAD) \
//	    -X rtfft/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds leave the variables empty and report "unknown".
package build

import (
	"fmt"
	"strings"
)

// Info is the build metadata of the running binary.
type Info struct {
	Name    string
	Version string
	Commit  string
	Time    string
}

const unknown = "unknown"

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	info         = Info{Name: unknown, Version: unknown, Commit: unknown, Time: unknown}
)

// Initialize copies the linker-provided values into the package Info. It
// returns an error naming every missing value; Info then keeps "unknown" in
// the missing fields.
func Initialize() error {
	var missing []string
	set := func(dst *string, v, flag string) {
		if v == "" {
			missing = append(missing, flag)
			return
		}
		*dst = v
	}

	set(&info.Name, buildName, "name")
	set(&info.Version, buildVersion, "version")
	set(&info.Commit, buildCommit, "commit")
	set(&info.Time, buildTime, "time")

	if len(missing) > 0 {
		return fmt.Errorf("build flags not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Get returns the current build information.
func Get() Info {
	return info
}

// String formats the info for version output, e.g. "rtfft v0.3.0 (1a2b3c4, 2025-04-13T10:00:00Z)".
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s %s (%s, %s)", i.Name, i.Version, commit, i.Time)
}
