// Package buildinfo carries build-time metadata injected through ldflags.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not set at build time
const UnknownValue = "unknown"

// Context holds metadata that is not user-configurable
type Context struct {
	version   string
	buildDate string
}

// NewContext wraps the values set by the linker.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the release tag.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.Version(), c.BuildDate())
}
