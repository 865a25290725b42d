// Package buildinfo reports the version of the running binary.
package buildinfo

import (
	"runtime/debug"
)

// version is stamped by release builds:
//
//	go build -ldflags "-X github.com/tsukumogami/setup-tool/internal/buildinfo.version=v1.2.0"
var version string

const shortHash = 12

// UserAgent is sent on every API request and download.
func UserAgent() string {
	return "setup-tool/" + Version()
}

// Version returns the stamped release version, the module version for
// `go install pkg@tag` builds, or a dev-<hash>[-dirty] pseudo-version.
// It is "unknown" when the binary carries no build information.
func Version() string {
	if version != "" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return fromBuildInfo(info)
}

func fromBuildInfo(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	rev := settings["vcs.revision"]
	if rev == "" {
		return "dev"
	}
	if len(rev) > shortHash {
		rev = rev[:shortHash]
	}
	v := "dev-" + rev
	if settings["vcs.modified"] == "true" {
		v += "-dirty"
	}
	return v
}
