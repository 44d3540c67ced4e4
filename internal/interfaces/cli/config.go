package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/application/services"
)

// NewConfigCommand creates the config command
func NewConfigCommand(container *CLIContainer) *cobra.Command {
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage configuration settings for runserver.

Settings come from the config file, RUNSERVER_* environment variables and
global flags, in increasing order of precedence.`,
	}

	configCmd.AddCommand(NewConfigShowCommand(container))
	configCmd.AddCommand(NewConfigPathCommand(container))
	configCmd.AddCommand(NewConfigSetCommand(container))

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := container.Config
			if config == nil {
				var err error
				if config, err = container.ConfigService.LoadConfiguration(cmd.Context()); err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
			}

			printConfig(cmd.OutOrStdout(), config, container.Cache.Root())
			return nil
		},
	}
}

func printConfig(w io.Writer, config *ports.Configuration, cacheRoot string) {
	fmt.Fprintln(w, titleStyle.Render("Current Configuration:"))
	rows := [][]string{
		{"API endpoint", config.APIEndpoint},
		{"Cache directory", cacheRoot},
		{"Request timeout", config.RequestTimeoutDuration().String()},
		{"Download timeout", config.DownloadTimeoutDuration().String()},
		{"Retry attempts", fmt.Sprintf("%d", config.RetryAttempts)},
		{"Retry delay", config.RetryDelayDuration().String()},
		{"Max retry delay", config.MaxRetryDelayDuration().String()},
		{"Lock poll interval", config.LockPollIntervalDuration().String()},
		{"User agent", orNotSet(config.UserAgent)},
		{"Java home", orNotSet(config.JavaHome)},
		{"Metrics file", orNotSet(config.MetricsFile)},
		{"Debug", fmt.Sprintf("%t", config.Debug)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-19s", row[0]+":")), row[1])
	}
}

func orNotSet(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), container.ConfigService.GetConfigurationPath(cmd.Context()))
			return nil
		},
	}
}

// NewConfigSetCommand creates the set subcommand
func NewConfigSetCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Long: fmt.Sprintf(`Change one setting in the config file.

Keys: %s`, strings.Join(services.ConfigurationKeys(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := container.ConfigService.SetValue(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", successStyle.Render("Saved"), args[0], args[1])
			return nil
		},
	}
}
