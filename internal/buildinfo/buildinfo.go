// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// UnknownValue is reported for metadata missing from the build.
const UnknownValue = "unknown"

// Set at link time:
//
//	-ldflags "-X github.com/tphakala/birdnet-batch/internal/buildinfo.version=v1.2.0"
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// NewContext returns build metadata with the given values.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata of the running binary. Without link-time
// values the module version recorded by the go tool is used.
func Current() *Context {
	v := version
	if v == "" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return NewContext(v, buildDate)
}

// GetVersion returns the build version string
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date string
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
