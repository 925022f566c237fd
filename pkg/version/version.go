// Package version carries the build version, set at link time with
// -ldflags "-X ocular/pkg/version.Version=...".
package version

// Version is the device software version.
var Version = "v0.4.0-dev"
