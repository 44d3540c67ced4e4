package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"runserver.dev/cli/internal/application/services"
	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/launch"
	"runserver.dev/cli/internal/infrastructure/config"
)

// DefaultRunDirectory is used when neither a flag nor the run configuration names one
const DefaultRunDirectory = "run"

// RunFlags holds command-line flags for the run command
type RunFlags struct {
	Version             string
	Build               string
	Artifact            string
	LegacyPluginLoading bool
	RunDir              string
	Plugins             []string
	JVMArgs             []string
	SystemProperties    []string
	ServerArgs          []string
	Env                 []string
	Java                string
	MainClass           string
	RunConfig           string
	DryRun              bool
	NoProgress          bool
}

// NewRunCommand creates the run command
func NewRunCommand(container *CLIContainer) *cobra.Command {
	cmd, _ := newRunCommand(container)
	return cmd
}

func newRunCommand(container *CLIContainer) (*cobra.Command, *RunFlags) {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] [-- server args...]",
		Short: "Resolve, cache and launch a server with plugins",
		Long: `Resolve a server build, download it into the artifact cache if needed and
launch it in the run directory with the given plugins loaded.

Settings are read from runserver.yaml in the current directory (or the file
given with --run-config); flags override the file.

Examples:
  runserver run --version 1.20.4 --plugin build/libs/myplugin.jar
  runserver run --version 1.12.2 --build 1620 --run-dir servers/legacy
  runserver run --version 1.18.2 --dry-run -- --port 25570`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildRunConfig(cmd, flags, args)
			if err != nil {
				return err
			}
			return runLaunch(cmd, container, cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Version, "version", "", "Server version to launch, e.g. 1.20.4")
	cmd.Flags().StringVar(&flags.Build, "build", "latest", "Build number or \"latest\"")
	cmd.Flags().StringVar(&flags.Artifact, "artifact", "", "Use a local server jar instead of downloading one")
	cmd.Flags().BoolVar(&flags.LegacyPluginLoading, "legacy-plugin-loading", false, "Force copying plugins (true) or -add-plugin (false); default depends on the version")
	cmd.Flags().StringVar(&flags.RunDir, "run-dir", DefaultRunDirectory, "Working directory of the server")
	cmd.Flags().StringArrayVar(&flags.Plugins, "plugin", nil, "Plugin jar to load (repeatable)")
	cmd.Flags().StringArrayVar(&flags.JVMArgs, "jvm-arg", nil, "Argument for the JVM (repeatable)")
	cmd.Flags().StringArrayVarP(&flags.SystemProperties, "define", "D", nil, "System property key=value (repeatable)")
	cmd.Flags().StringArrayVar(&flags.ServerArgs, "arg", nil, "Argument for the server (repeatable)")
	cmd.Flags().StringArrayVar(&flags.Env, "env", nil, "Environment variable KEY=VALUE for the server (repeatable)")
	cmd.Flags().StringVar(&flags.Java, "java", "", "Java executable (default $JAVA_HOME/bin/java, then java on PATH)")
	cmd.Flags().StringVar(&flags.MainClass, "main-class", "", "Main class (default from the jar manifest)")
	cmd.Flags().StringVar(&flags.RunConfig, "run-config", "", "Run configuration file (default runserver.yaml when present)")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Prepare everything and print the command line without starting the server")
	cmd.Flags().BoolVar(&flags.NoProgress, "no-progress", false, "Do not show download progress")

	return cmd, flags
}

// buildRunConfig loads the run configuration file, if any, and applies the
// flags that were set explicitly on top of it
func buildRunConfig(cmd *cobra.Command, flags *RunFlags, args []string) (domain.RunConfig, error) {
	var cfg domain.RunConfig

	wd, err := os.Getwd()
	if err != nil {
		return cfg, domain.FilesystemError("locate run configuration", err)
	}

	path := flags.RunConfig
	if path == "" {
		path, _ = config.FindRunConfig(wd)
	}
	if path != "" {
		loaded, err := config.LoadRunConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed

	if changed("version") {
		cfg.Version = flags.Version
	}
	if changed("build") {
		selector, err := build.ParseSelector(flags.Build)
		if err != nil {
			return cfg, domain.ConfigurationError("parse flags", err)
		}
		cfg.Build = selector
	}
	if changed("artifact") {
		cfg.ArtifactOverride = flags.Artifact
	}
	if changed("legacy-plugin-loading") {
		legacy := flags.LegacyPluginLoading
		cfg.LegacyPluginLoading = &legacy
	}
	if changed("run-dir") || cfg.RunDirectory == "" {
		cfg.RunDirectory = flags.RunDir
	}
	if changed("plugin") {
		cfg.Plugins = flags.Plugins
	}
	if changed("jvm-arg") {
		cfg.JVMArgs = flags.JVMArgs
	}
	if changed("arg") {
		cfg.ServerArgs = flags.ServerArgs
	}
	cfg.ServerArgs = append(cfg.ServerArgs, args...)
	if changed("java") {
		// relative to the invoking directory, not the run directory
		cfg.JavaExecutable = config.ResolveExecutable(wd, flags.Java)
	}
	if changed("main-class") {
		cfg.MainClass = flags.MainClass
	}

	if cfg.SystemProperties, err = mergeAssignments(cfg.SystemProperties, flags.SystemProperties, "-D"); err != nil {
		return cfg, err
	}
	if cfg.Environment, err = mergeAssignments(cfg.Environment, flags.Env, "--env"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// mergeAssignments adds key=value pairs to base, later values winning
func mergeAssignments(base map[string]string, assignments []string, flagName string) (map[string]string, error) {
	if len(assignments) == 0 {
		return base, nil
	}

	merged := make(map[string]string, len(base)+len(assignments))
	for k, v := range base {
		merged[k] = v
	}
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, domain.ConfigurationErrorf("parse flags", "%s expects key=value, got %q", flagName, a)
		}
		merged[key] = value
	}
	return merged, nil
}

func runLaunch(cmd *cobra.Command, container *CLIContainer, cfg domain.RunConfig, flags *RunFlags) error {
	out := cmd.OutOrStdout()

	progress := newProgressReporter(cmd.ErrOrStderr(), fmt.Sprintf("Downloading %s", cfg.Version), flags.NoProgress)
	result, err := container.LaunchService.Launch(cmd.Context(), cfg, services.LaunchOptions{
		DryRun:   flags.DryRun,
		Progress: progressFunc(progress),
		Planned:  func(*launch.Plan) { progress.Finish() },
	})
	progress.Finish()
	if err != nil {
		return err
	}

	plan := result.Plan
	if flags.DryRun {
		printPlan(cmd, plan.Version.String(), plan.Build, plan.ArtifactPath, string(plan.InjectionMode), plan.WorkingDirectory)
		fmt.Fprintln(out, shellJoin(result.CommandLine))
		return nil
	}

	if result.ExitCode != 0 {
		return &ExitCodeError{Code: result.ExitCode}
	}
	return nil
}

func printPlan(cmd *cobra.Command, version string, buildNumber int, artifact, mode, runDir string) {
	w := cmd.ErrOrStderr()
	buildLabel := fmt.Sprintf("%d", buildNumber)
	if buildNumber == 0 {
		buildLabel = "local artifact"
	}
	fmt.Fprintf(w, "%s %s (build %s)\n", labelStyle.Render("Server:"), version, buildLabel)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Artifact:"), artifact)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Plugins:"), mode)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Run directory:"), filepath.Clean(runDir))
}

// shellJoin renders a command line that can be pasted into a POSIX shell
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
