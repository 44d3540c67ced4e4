package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/application/services"
	"runserver.dev/cli/internal/infrastructure/cache"
	"runserver.dev/cli/internal/infrastructure/config"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	ConfigService *services.ConfigurationService
	LaunchService *services.LaunchService
	Cache         *cache.ArtifactCache
	ConfigRepo    *config.CompositeConfigRepository
	Config        *ports.Configuration // effective configuration, flags applied
	Logger        ports.LoggingGateway
	MainContainer interface{} // Will be set to *di.Container, avoiding circular import
}

// overrideApplier is implemented by the main container
type overrideApplier interface {
	ApplyConfigFileOverride(path string) error
	ApplyAPIURLOverride(apiURL string) error
	ApplyCacheDirOverride(dir string) error
	ApplyDebugOverride(debug bool)
}

type metricsFlusher interface {
	FlushMetrics() error
}

// ExitCodeError carries the exit code of the launched server
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("server exited with code %d", e.Code)
}

// NewRootCommand creates the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "runserver",
		Short: "Resolve, cache and launch server builds for plugin development",
		Long: `runserver downloads a server build from the build API, keeps it in a
per-user artifact cache and launches it in a run directory with your
plugins loaded.

Plugins are passed with -add-plugin on versions that support it and copied
into the plugins directory under reserved names on older versions.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigurationOverrides(cmd, container); err != nil {
				return fmt.Errorf("failed to apply configuration overrides: %w", err)
			}
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default is $HOME/.config/runserver/config.json)")
	rootCmd.PersistentFlags().String("api-url", "", "Build API endpoint URL")
	rootCmd.PersistentFlags().String("cache-dir", "", "Artifact cache directory")

	rootCmd.AddCommand(NewRunCommand(container))
	rootCmd.AddCommand(NewPullCommand(container))
	rootCmd.AddCommand(NewBuildsCommand(container))
	rootCmd.AddCommand(NewCacheCommand(container))
	rootCmd.AddCommand(NewConfigCommand(container))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand prints build information
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render("runserver"), Version)
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Build time:"), BuildTime)
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Go version:"), goVersion())
			fmt.Fprintf(out, "%s %s/%s\n", labelStyle.Render("Platform:"), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// applyConfigurationOverrides applies explicitly set persistent flags. The
// config file goes first because it rebuilds every component.
func applyConfigurationOverrides(cmd *cobra.Command, container *CLIContainer) error {
	mainContainer, ok := container.MainContainer.(overrideApplier)
	if !ok {
		return nil
	}

	flags := cmd.Flags()

	if flags.Changed("config") {
		path, _ := flags.GetString("config")
		if err := mainContainer.ApplyConfigFileOverride(path); err != nil {
			return err
		}
	}

	if flags.Changed("api-url") {
		apiURL, _ := flags.GetString("api-url")
		if err := mainContainer.ApplyAPIURLOverride(apiURL); err != nil {
			return fmt.Errorf("failed to override API URL: %w", err)
		}
	}

	if flags.Changed("cache-dir") {
		dir, _ := flags.GetString("cache-dir")
		if err := mainContainer.ApplyCacheDirOverride(dir); err != nil {
			return fmt.Errorf("failed to override cache directory: %w", err)
		}
	}

	if flags.Changed("debug") {
		debugEnabled, _ := flags.GetBool("debug")
		mainContainer.ApplyDebugOverride(debugEnabled)
	}

	return nil
}

// Run executes the command line and returns the process exit code. A launched
// server's exit code is passed through; any other failure exits with 1.
func Run(ctx context.Context, container *CLIContainer, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand(container)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)

	if flusher, ok := container.MainContainer.(metricsFlusher); ok {
		if flushErr := flusher.FlushMetrics(); flushErr != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", flushErr)
		}
	}

	if err == nil {
		return 0
	}

	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("Error:"), err)
	return 1
}

// Execute runs the root command with the process arguments and exits
func Execute(ctx context.Context, container *CLIContainer) {
	os.Exit(Run(ctx, container, os.Args[1:], os.Stdout, os.Stderr))
}
