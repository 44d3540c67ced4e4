package services

import (
	"context"
	"fmt"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/launch"
	"runserver.dev/cli/internal/core/version"
)

// LaunchOptions controls a single launch
type LaunchOptions struct {
	// DryRun plans the launch and renders the command line without starting it
	DryRun bool

	// Progress receives download progress on a cache miss
	Progress ports.ProgressFunc

	// Planned is called once the plan is ready, before the server starts.
	// Callers release the terminal here.
	Planned func(plan *launch.Plan)
}

// LaunchResult describes a planned or completed launch
type LaunchResult struct {
	Plan        *launch.Plan
	CommandLine []string
	ExitCode    int
}

// LaunchService orchestrates planning and running the server process
type LaunchService struct {
	planner *LaunchPlanner
	runner  ports.ProcessRunner
	logger  ports.LoggingGateway
}

// NewLaunchService creates a new launch service
func NewLaunchService(planner *LaunchPlanner, runner ports.ProcessRunner, logger ports.LoggingGateway) *LaunchService {
	return &LaunchService{
		planner: planner,
		runner:  runner,
		logger:  logger,
	}
}

// Launch plans cfg and, unless DryRun is set, runs the server to completion.
// A non-zero server exit code is reported in the result, not as an error.
func (s *LaunchService) Launch(ctx context.Context, cfg domain.RunConfig, opts LaunchOptions) (*LaunchResult, error) {
	plan, err := s.planner.Plan(ctx, cfg, opts.Progress)
	if err != nil {
		s.logger.LogError(err, "Launch planning failed", map[string]interface{}{
			"version": cfg.Version,
			"stage":   stageOf(err),
		})
		return nil, err
	}

	commandLine, err := s.runner.CommandLine(*plan)
	if err != nil {
		return nil, err
	}

	result := &LaunchResult{Plan: plan, CommandLine: commandLine}
	if opts.Planned != nil {
		opts.Planned(plan)
	}
	if opts.DryRun {
		return result, nil
	}

	s.logger.Log(ports.LogLevelInfo, "Starting server", map[string]interface{}{
		"version":       plan.Version.String(),
		"build":         plan.Build,
		"run_directory": plan.WorkingDirectory,
	})

	exitCode, err := s.runner.Run(ctx, *plan)
	result.ExitCode = exitCode
	if err != nil {
		s.logger.LogError(err, "Server process failed", nil)
		return result, fmt.Errorf("failed to run server: %w", err)
	}

	s.logger.Log(ports.LogLevelInfo, "Server exited", map[string]interface{}{
		"exit_code": exitCode,
	})
	return result, nil
}

// Pull resolves and caches a server artifact without launching it
func (s *LaunchService) Pull(ctx context.Context, ver string, selector build.Selector, progress ports.ProgressFunc) (*ResolvedArtifact, error) {
	if err := version.ValidateName(ver); err != nil {
		return nil, domain.ConfigurationError("pull", err)
	}
	return s.planner.ResolveArtifact(ctx, domain.RunConfig{Version: ver, Build: selector}, progress)
}

// ListBuilds returns the builds the API knows for a version, ascending
func (s *LaunchService) ListBuilds(ctx context.Context, ver string) ([]int, error) {
	if err := version.ValidateName(ver); err != nil {
		return nil, domain.ConfigurationError("list builds", err)
	}
	return s.planner.resolver.ListBuilds(ctx, ver)
}

func stageOf(err error) string {
	if kind, ok := domain.KindOf(err); ok {
		return string(kind)
	}
	return "unknown"
}
