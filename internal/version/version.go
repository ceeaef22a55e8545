// Package version exposes the binary version, injected at build time.
package version

import (
	"runtime/debug"
	"strings"
)

// Populated via -ldflags, for example:
//
//	-X github.com/mlvd/dirsave/internal/version.Version=v1.2.0
//	-X github.com/mlvd/dirsave/internal/version.Commit=abcdef123
var (
	// Version holds the semantic version of the binary.
	Version = "0.1.0-dev"

	// Commit holds the VCS commit hash used to build the binary (optional).
	Commit = ""
)

// readBuildInfo is swapped out in tests.
var readBuildInfo = debug.ReadBuildInfo

// String returns the effective version string. It prefers the ldflags value,
// then the main module version from debug.ReadBuildInfo, then a development
// placeholder. A leading "v" tag prefix is stripped.
func String() string {
	v := strings.TrimSpace(Version)

	if v == "" {
		if info, ok := readBuildInfo(); ok {
			if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}

	if v == "" {
		v = "0.1.0-dev"
	}

	return strings.TrimPrefix(v, "v")
}
