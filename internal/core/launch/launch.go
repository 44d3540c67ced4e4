package launch

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sort"
	"strconv"

	"runserver.dev/cli/internal/core/version"
)

// InjectionMode is how plugin artifacts are made visible to the server
type InjectionMode string

const (
	// ModeCommandLineArgument passes each plugin as -add-plugin=<path>
	ModeCommandLineArgument InjectionMode = "command-line-argument"
	// ModeLegacyCopy copies each plugin into the plugins directory under a reserved name
	ModeLegacyCopy InjectionMode = "legacy-copy"
)

const (
	// PluginsDirName is the server's plugin directory inside the run directory
	PluginsDirName = "plugins"

	// AddPluginFlag is the server flag that loads a plugin from an absolute path
	AddPluginFlag = "-add-plugin="

	// NoGUIArg disables the server console window
	NoGUIArg = "nogui"

	LegacyPluginPrefix    = "_runserver_plugin_"
	LegacyPluginExtension = ".jar"
)

var (
	// AddPluginMinVersion is the first version that understands -add-plugin
	AddPluginMinVersion = []int{1, 16, 5}

	// NoGUIMinVersion is the first version that accepts the nogui argument
	NoGUIMinVersion = []int{1, 15}

	legacyNamePattern = regexp.MustCompile(`^` + regexp.QuoteMeta(LegacyPluginPrefix) + `[0-9]+` + regexp.QuoteMeta(LegacyPluginExtension) + `$`)
)

// DecideInjectionMode picks the plugin injection strategy. An explicit
// override wins: true forces LegacyCopy, false forces CommandLineArgument.
func DecideInjectionMode(v version.Key, legacyOverride *bool) InjectionMode {
	if legacyOverride != nil {
		if *legacyOverride {
			return ModeLegacyCopy
		}
		return ModeCommandLineArgument
	}

	if v.IsAtLeast(AddPluginMinVersion...) {
		return ModeCommandLineArgument
	}
	return ModeLegacyCopy
}

// LegacyPluginName returns the reserved file name for the plugin at index
func LegacyPluginName(index int) string {
	return LegacyPluginPrefix + strconv.Itoa(index) + LegacyPluginExtension
}

// IsLegacyPluginName reports whether name is exactly a reserved copy name
func IsLegacyPluginName(name string) bool {
	return legacyNamePattern.MatchString(name)
}

// AddPluginArgs returns one -add-plugin argument per absolute plugin path
func AddPluginArgs(absPaths []string) []string {
	args := make([]string, 0, len(absPaths))
	for _, p := range absPaths {
		args = append(args, AddPluginFlag+p)
	}
	return args
}

// AssembleArgs returns the server arguments: injection arguments, then nogui
// for versions that accept it, then caller-supplied arguments.
func AssembleArgs(v version.Key, injectionArgs, serverArgs []string) []string {
	args := make([]string, 0, len(injectionArgs)+len(serverArgs)+1)
	args = append(args, injectionArgs...)
	if v.IsAtLeast(NoGUIMinVersion...) && !slices.Contains(serverArgs, NoGUIArg) {
		args = append(args, NoGUIArg)
	}
	args = append(args, serverArgs...)
	return args
}

// Plan is the complete process configuration for one launch
type Plan struct {
	Version          version.Key
	Build            int
	ArtifactPath     string
	WorkingDirectory string
	PluginsDirectory string
	InjectionMode    InjectionMode
	PluginArtifacts  []string
	Args             []string
	JVMArgs          []string
	SystemProperties map[string]string
	Environment      map[string]string
	JavaExecutable   string
	MainClass        string
}

// SystemPropertyArgs renders system properties as sorted -Dkey=value arguments
func (p Plan) SystemPropertyArgs() []string {
	keys := slices.Collect(maps.Keys(p.SystemProperties))
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-D%s=%s", k, p.SystemProperties[k]))
	}
	return args
}
