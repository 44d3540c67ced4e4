package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/version"
)

// NewCacheCommand creates the cache command
func NewCacheCommand(container *CLIContainer) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the artifact cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(container))
	cacheCmd.AddCommand(newCachePathCommand(container))
	cacheCmd.AddCommand(newCacheRemoveCommand(container))
	cacheCmd.AddCommand(newCachePruneCommand(container))

	return cacheCmd
}

func newCacheListCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached server builds",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := container.Cache.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("Cache is empty"))
				return nil
			}

			rows := make([][]string, 0, len(entries))
			var total int64
			for _, e := range entries {
				total += e.Size
				rows = append(rows, []string{
					e.Version,
					strconv.Itoa(e.Build),
					formatSize(e.Size),
					e.DownloadedAt.Local().Format("2006-01-02 15:04"),
					e.Path,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"VERSION", "BUILD", "SIZE", "DOWNLOADED", "PATH"}, rows))
			fmt.Fprintf(out, "%s %d artifacts, %s\n", labelStyle.Render("Total:"), len(entries), formatSize(total))
			return nil
		},
	}
}

func newCachePathCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "path [version build]",
		Short: "Show the cache directory or the path of one cached artifact",
		Args:  cobra.MatchAll(cobra.MaximumNArgs(2), exactOrNone(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), container.Cache.Root())
				return nil
			}

			ver, buildNumber, err := parseCacheKey(args)
			if err != nil {
				return err
			}
			path, ok, err := container.Cache.Lookup(ver, buildNumber)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s build %d is not cached", ver, buildNumber)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newCacheRemoveCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <version> <build>",
		Aliases: []string{"remove"},
		Short:   "Remove one cached server build",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, buildNumber, err := parseCacheKey(args)
			if err != nil {
				return err
			}

			removed, err := container.Cache.Remove(cmd.Context(), ver, buildNumber)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s build %d is not cached\n", warningStyle.Render("Nothing to remove:"), ver, buildNumber)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s build %d\n", successStyle.Render("Removed"), ver, buildNumber)
			return nil
		},
	}
}

func newCachePruneCommand(container *CLIContainer) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old builds and abandoned downloads",
		Long: `Keep the newest --keep builds of every cached version and delete the rest,
along with temp files left behind by interrupted downloads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := container.Cache.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var freed int64
			for _, e := range result.Removed {
				freed += e.Size
				fmt.Fprintf(out, "%s %s build %d\n", successStyle.Render("Removed"), e.Version, e.Build)
			}
			fmt.Fprintf(out, "%s %d artifacts (%s), %d abandoned downloads\n",
				labelStyle.Render("Pruned:"), len(result.Removed), formatSize(freed), result.TempsRemoved)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 1, "Builds to keep per version")

	return cmd
}

func parseCacheKey(args []string) (string, int, error) {
	ver := args[0]
	if err := version.ValidateName(ver); err != nil {
		return "", 0, domain.ConfigurationError("parse cache key", err)
	}
	buildNumber, err := strconv.Atoi(args[1])
	if err != nil || buildNumber <= 0 {
		return "", 0, domain.ConfigurationErrorf("parse cache key", "build must be a positive number, got %q", args[1])
	}
	return ver, buildNumber, nil
}

// exactOrNone accepts either no arguments or exactly n
func exactOrNone(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != n {
			return fmt.Errorf("accepts 0 or %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}
