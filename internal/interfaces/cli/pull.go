package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/domain"
)

// NewPullCommand creates the pull command
func NewPullCommand(container *CLIContainer) *cobra.Command {
	var (
		version    string
		buildFlag  string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download a server build into the cache without launching it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version == "" {
				return domain.ConfigurationErrorf("pull", "--version is required")
			}
			selector, err := build.ParseSelector(buildFlag)
			if err != nil {
				return domain.ConfigurationError("pull", err)
			}

			progress := newProgressReporter(cmd.ErrOrStderr(), fmt.Sprintf("Downloading %s", version), noProgress)
			artifact, err := container.LaunchService.Pull(cmd.Context(), version, selector, progressFunc(progress))
			progress.Finish()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s build %d\n", successStyle.Render("Cached"), artifact.Version, artifact.Build)
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Server version, e.g. 1.20.4")
	cmd.Flags().StringVar(&buildFlag, "build", "latest", "Build number or \"latest\"")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show download progress")

	return cmd
}

// NewBuildsCommand creates the builds command
func NewBuildsCommand(container *CLIContainer) *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List the builds the build API knows for a version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version == "" {
				return domain.ConfigurationErrorf("list builds", "--version is required")
			}

			builds, err := container.LaunchService.ListBuilds(cmd.Context(), version)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(builds) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No builds available"))
				return nil
			}

			rows := make([][]string, 0, len(builds))
			for i, b := range builds {
				cached := ""
				if _, ok, err := container.Cache.Lookup(version, b); err == nil && ok {
					cached = "yes"
				}
				latest := ""
				if i == len(builds)-1 {
					latest = "latest"
				}
				rows = append(rows, []string{strconv.Itoa(b), cached, latest})
			}
			fmt.Fprintln(out, renderTable([]string{"BUILD", "CACHED", ""}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Server version, e.g. 1.20.4")

	return cmd
}
