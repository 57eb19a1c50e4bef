// Package version provides build version information.
package version

import "runtime/debug"

// Version is overridden at build time via ldflags.
// Example: go build -ldflags "-X github.com/graaaaa/scr-multilauncher/internal/version.Version=0.1.0"
var Version = "dev"

// String returns the current version string. Development builds fall back
// to the module version recorded by the Go toolchain, if any.
func String() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
