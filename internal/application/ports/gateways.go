package ports

import (
	"context"
	"io"
	"time"

	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/launch"
)

// BuildAPI defines the client side of the remote artifact API
type BuildAPI interface {
	// ListBuilds returns the build numbers known for a version, ascending
	ListBuilds(ctx context.Context, version string) ([]int, error)

	// ResolveBuild turns a selector into a concrete build number
	ResolveBuild(ctx context.Context, version string, selector build.Selector) (int, error)

	// BuildInfo returns the download location and checksum of one build
	BuildInfo(ctx context.Context, version string, build int) (*BuildInfo, error)

	// Download streams the artifact described by info into dst
	Download(ctx context.Context, info *BuildInfo, dst io.Writer, progress ProgressFunc) (int64, error)
}

// BuildInfo describes one downloadable build
type BuildInfo struct {
	Version string `json:"version"`
	Build   int    `json:"build"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// ProgressFunc receives transfer progress. total is -1 when unknown.
type ProgressFunc func(done, total int64)

// ArtifactStore maps (version, build) to a validated local artifact
type ArtifactStore interface {
	// Resolve returns the cached artifact path, downloading it on a miss
	Resolve(ctx context.Context, version string, build int, progress ProgressFunc) (string, error)

	// Lookup returns the artifact path only if it is already cached
	Lookup(version string, build int) (string, bool, error)
}

// RunDirectoryManager owns the per-launch working directory
type RunDirectoryManager interface {
	// Prepare creates the run directory and its plugins directory
	Prepare(runDir string) (pluginsDir string, err error)

	// CleanupLegacy removes plugin copies left by an earlier legacy-copy launch
	CleanupLegacy(pluginsDir string) ([]string, error)

	// ApplyInjection makes plugins visible and returns the server arguments it needs
	ApplyInjection(mode launch.InjectionMode, plugins []string, pluginsDir string) ([]string, error)
}

// MainClassReader reads the entry point of a server artifact
type MainClassReader interface {
	MainClass(artifactPath string) (string, error)
}

// ProcessRunner executes a launch plan
type ProcessRunner interface {
	// Run starts the server and waits for it to exit
	Run(ctx context.Context, plan launch.Plan) (int, error)

	// CommandLine returns the full command line Run would execute
	CommandLine(plan launch.Plan) ([]string, error)
}

// MetricsRecorder receives cache and API activity
type MetricsRecorder interface {
	CacheHit(version string)
	CacheMiss(version string)
	DownloadCompleted(version string, bytes int64, elapsed time.Duration)
	DownloadFailed(version string)
	APIRequest(operation string, status int, elapsed time.Duration)
	APIRetry(operation string)
}

// LoggingGateway defines the interface for logging operations
type LoggingGateway interface {
	// Log logs a message with the specified level
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError logs an error
	LogError(err error, message string, fields map[string]interface{})

	// SetLogLevel sets the logging level
	SetLogLevel(level LogLevel)

	// GetLogLevel returns the current logging level
	GetLogLevel() LogLevel
}

// LogLevel defines the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Severity orders log levels; unknown levels rank as info
func (l LogLevel) Severity() int {
	switch l {
	case LogLevelDebug:
		return 0
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	default:
		return 1
	}
}
