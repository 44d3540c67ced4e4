package domain

import (
	"maps"
	"slices"

	"runserver.dev/cli/internal/core/build"
)

// RunConfig is everything a caller supplies for one launch. It is passed by
// value into the planner; Clone gives an independent copy of the slices and maps.
type RunConfig struct {
	// Version is the product version to launch, e.g. "1.18.2"
	Version string

	// Build selects the build of Version
	Build build.Selector

	// ArtifactOverride points at a local server jar and bypasses resolution
	ArtifactOverride string

	// LegacyPluginLoading forces plugin copying (true) or -add-plugin (false).
	// Nil lets the version decide.
	LegacyPluginLoading *bool

	// RunDirectory is the working directory of the launched process
	RunDirectory string

	// Plugins are plugin artifact files, in load order
	Plugins []string

	JVMArgs          []string
	SystemProperties map[string]string
	ServerArgs       []string
	Environment      map[string]string

	// JavaExecutable defaults to $JAVA_HOME/bin/java, then java on PATH
	JavaExecutable string

	// MainClass defaults to the Main-Class of the server jar manifest
	MainClass string
}

// Clone returns a deep copy
func (c RunConfig) Clone() RunConfig {
	out := c
	out.Plugins = slices.Clone(c.Plugins)
	out.JVMArgs = slices.Clone(c.JVMArgs)
	out.ServerArgs = slices.Clone(c.ServerArgs)
	out.SystemProperties = maps.Clone(c.SystemProperties)
	out.Environment = maps.Clone(c.Environment)
	if c.LegacyPluginLoading != nil {
		v := *c.LegacyPluginLoading
		out.LegacyPluginLoading = &v
	}
	return out
}
