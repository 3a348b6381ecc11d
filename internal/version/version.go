// Package version holds build metadata, set at link time:
//
//	go build -ldflags "-X github.com/sydlexius/kgmerge/internal/version.Version=v1.2.0 \
//	  -X github.com/sydlexius/kgmerge/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = ""
)

// String returns a one-line description of the build.
func String() string {
	commit := Commit
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	s := fmt.Sprintf("kgmerge %s (%s)", Version, commit)
	if Date != "" {
		s += " built " + Date
	}
	return s
}
