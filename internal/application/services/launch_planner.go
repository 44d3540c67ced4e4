package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/launch"
	"runserver.dev/cli/internal/core/version"
)

// LaunchPlanner turns a RunConfig into a launch.Plan: it resolves the server
// artifact, decides how plugins are injected and prepares the run directory
type LaunchPlanner struct {
	resolver ports.BuildAPI
	store    ports.ArtifactStore
	runDirs  ports.RunDirectoryManager
	logger   ports.LoggingGateway

	mainClasses ports.MainClassReader
}

// NewLaunchPlanner creates a new launch planner
func NewLaunchPlanner(
	resolver ports.BuildAPI,
	store ports.ArtifactStore,
	runDirs ports.RunDirectoryManager,
	logger ports.LoggingGateway,
) *LaunchPlanner {
	return &LaunchPlanner{
		resolver: resolver,
		store:    store,
		runDirs:  runDirs,
		logger:   logger,
	}
}

// SetMainClassReader makes Plan fill in a missing main class from the
// artifact before the run directory is touched
func (p *LaunchPlanner) SetMainClassReader(reader ports.MainClassReader) {
	p.mainClasses = reader
}

// ResolvedArtifact is a server artifact ready on disk
type ResolvedArtifact struct {
	Version string
	Build   int // 0 for an artifact override
	Path    string
}

// Validate checks a RunConfig before any network or filesystem mutation
func (p *LaunchPlanner) Validate(cfg domain.RunConfig) error {
	if cfg.Version == "" {
		return domain.ConfigurationErrorf("validate", "version is required")
	}
	if err := version.ValidateName(cfg.Version); err != nil {
		return domain.ConfigurationError("validate", err)
	}
	if cfg.RunDirectory == "" {
		return domain.ConfigurationErrorf("validate", "run directory is required")
	}

	if cfg.ArtifactOverride != "" {
		if err := checkRegularFile("artifact", cfg.ArtifactOverride); err != nil {
			return err
		}
	}

	for _, plugin := range cfg.Plugins {
		if err := checkRegularFile("plugin artifact", plugin); err != nil {
			return err
		}
	}

	for key := range cfg.SystemProperties {
		if key == "" {
			return domain.ConfigurationErrorf("validate", "system property name cannot be empty")
		}
	}

	return nil
}

// ResolveArtifact returns the server artifact for cfg: the override when set,
// otherwise the cached artifact for the selected build, downloading on a miss
func (p *LaunchPlanner) ResolveArtifact(ctx context.Context, cfg domain.RunConfig, progress ports.ProgressFunc) (*ResolvedArtifact, error) {
	if cfg.ArtifactOverride != "" {
		abs, err := filepath.Abs(cfg.ArtifactOverride)
		if err != nil {
			return nil, domain.FilesystemError("resolve artifact override", err)
		}
		p.logger.Log(ports.LogLevelInfo, "Using artifact override", map[string]interface{}{
			"path": abs,
		})
		return &ResolvedArtifact{Version: cfg.Version, Path: abs}, nil
	}

	buildNumber, err := p.resolver.ResolveBuild(ctx, cfg.Version, cfg.Build)
	if err != nil {
		return nil, err
	}

	p.logger.Log(ports.LogLevelDebug, "Resolved build", map[string]interface{}{
		"version":  cfg.Version,
		"selector": cfg.Build.String(),
		"build":    buildNumber,
	})

	path, err := p.store.Resolve(ctx, cfg.Version, buildNumber, progress)
	if err != nil {
		return nil, err
	}

	return &ResolvedArtifact{Version: cfg.Version, Build: buildNumber, Path: path}, nil
}

// Plan validates cfg, resolves the artifact and prepares the run directory.
// Any error aborts before a process could be started; a LegacyCopy plan
// never leaves a partial plugin set behind.
func (p *LaunchPlanner) Plan(ctx context.Context, cfg domain.RunConfig, progress ports.ProgressFunc) (*launch.Plan, error) {
	cfg = cfg.Clone()

	if err := p.Validate(cfg); err != nil {
		return nil, err
	}

	artifact, err := p.ResolveArtifact(ctx, cfg, progress)
	if err != nil {
		return nil, err
	}

	mainClass := cfg.MainClass
	if mainClass == "" && p.mainClasses != nil {
		if mainClass, err = p.mainClasses.MainClass(artifact.Path); err != nil {
			return nil, domain.FilesystemError("read main class", fmt.Errorf("%w (set the main class explicitly)", err))
		}
	}

	key := version.Parse(cfg.Version)
	mode := launch.DecideInjectionMode(key, cfg.LegacyPluginLoading)

	runDir, err := filepath.Abs(cfg.RunDirectory)
	if err != nil {
		return nil, domain.FilesystemError("resolve run directory", err)
	}

	pluginsDir, err := p.runDirs.Prepare(runDir)
	if err != nil {
		return nil, err
	}

	// Stale reserved copies are removed in both modes, so switching away
	// from LegacyCopy does not load them twice
	removed, err := p.runDirs.CleanupLegacy(pluginsDir)
	if err != nil {
		return nil, err
	}

	injectionArgs, err := p.runDirs.ApplyInjection(mode, cfg.Plugins, pluginsDir)
	if err != nil {
		return nil, err
	}

	plan := &launch.Plan{
		Version:          key,
		Build:            artifact.Build,
		ArtifactPath:     artifact.Path,
		WorkingDirectory: runDir,
		PluginsDirectory: pluginsDir,
		InjectionMode:    mode,
		PluginArtifacts:  slices.Clone(cfg.Plugins),
		Args:             launch.AssembleArgs(key, injectionArgs, cfg.ServerArgs),
		JVMArgs:          cfg.JVMArgs,
		SystemProperties: cfg.SystemProperties,
		Environment:      cfg.Environment,
		JavaExecutable:   cfg.JavaExecutable,
		MainClass:        mainClass,
	}

	p.logger.Log(ports.LogLevelInfo, "Launch planned", map[string]interface{}{
		"version":        cfg.Version,
		"build":          artifact.Build,
		"artifact":       artifact.Path,
		"injection_mode": string(mode),
		"plugins":        len(cfg.Plugins),
		"stale_removed":  len(removed),
		"run_directory":  runDir,
	})

	return plan, nil
}

func checkRegularFile(what, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ConfigurationErrorf("validate", "%s not found: %s", what, path)
		}
		return domain.FilesystemError("validate", fmt.Errorf("%s %s: %w", what, path, err))
	}
	if !info.Mode().IsRegular() {
		return domain.ConfigurationErrorf("validate", "%s is not a regular file: %s", what, path)
	}
	return nil
}
