// Package buildinfo carries version metadata injected at build time.
package buildinfo

// Version is the semantic version of the binary, overridden via
// -ldflags "-X github.com/skyrelay/skyrelay/internal/buildinfo.Version=...".
var Version = "dev"
