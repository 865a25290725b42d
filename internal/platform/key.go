// Package platform derives the canonical platform key used to pick a
// release asset, and reports host details for diagnostics.
//
// Asset names follow <tool>-<os>-<arch>[.exe] where os is one of windows,
// macos or linux and arch is x86_64 or aarch64. Values outside those sets
// pass through unchanged, so an unusual host simply finds no matching asset
// and falls back to building from source.
package platform

import "runtime"

// Key is the canonical (OS, architecture) pair for the current run.
type Key struct {
	OS   string
	Arch string
}

// Identify maps host-reported OS and architecture names onto the canonical
// vocabulary. Both Node-style names (win32, x64) and Go names (windows,
// amd64) are accepted. It never fails.
func Identify(rawOS, rawArch string) Key {
	k := Key{OS: rawOS, Arch: rawArch}

	switch rawOS {
	case "win32", "windows":
		k.OS = "windows"
	case "darwin":
		k.OS = "macos"
	}

	switch rawArch {
	case "x64", "amd64":
		k.Arch = "x86_64"
	case "arm64":
		k.Arch = "aarch64"
	}

	return k
}

// Current returns the key for the running process.
func Current() Key {
	return Identify(runtime.GOOS, runtime.GOARCH)
}

// IsWindows reports whether executables need the .exe suffix.
func (k Key) IsWindows() bool {
	return k.OS == "windows"
}

// ExeSuffix returns ".exe" on windows and "" elsewhere.
func (k Key) ExeSuffix() string {
	if k.IsWindows() {
		return ".exe"
	}
	return ""
}

// AssetName returns the release asset name expected for tool on this platform.
func (k Key) AssetName(tool string) string {
	return tool + "-" + k.OS + "-" + k.Arch + k.ExeSuffix()
}

func (k Key) String() string {
	return k.OS + "-" + k.Arch
}
