package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"snapdiff/internal/vcs"

	"github.com/spf13/cobra"
)

// Version is overridden at link time.
var Version = "0.1.0-dev"

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration settings",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(root.cfg)
			}
			cfgPath := os.Getenv("SNAPDIFF_CONFIG")
			if cfgPath == "" {
				cfgPath = "(default) ~/.config/snapdiff/config.json"
			}
			c := root.cfg
			fmt.Fprintf(out, "Config file: %s\n\n", cfgPath)
			fmt.Fprintf(out, "Comparison:\n")
			fmt.Fprintf(out, "  Color distance limit: %.1f\n", c.Compare.ColorDistanceLimit)
			fmt.Fprintf(out, "  Area size limit: %d\n", c.Compare.AreaSizeLimit)
			fmt.Fprintf(out, "  Noise floor: %.1f\n", c.Compare.NoiseFloor)
			if c.Compare.Width > 0 && c.Compare.Height > 0 {
				fmt.Fprintf(out, "  Viewport: %dx%d\n", c.Compare.Width, c.Compare.Height)
			}
			st := c.StabilizeConfig()
			fmt.Fprintf(out, "\nStabilization:\n")
			fmt.Fprintf(out, "  Max attempts: %d\n", st.MaxAttempts)
			fmt.Fprintf(out, "  Interval: %s\n", st.Interval)
			fmt.Fprintf(out, "\nPaths:\n")
			fmt.Fprintf(out, "  Repository: %s\n", c.Paths.RepoRoot)
			fmt.Fprintf(out, "  Screenshot area: %s\n", c.Paths.ScreenshotArea)
			fmt.Fprintf(out, "  Inbox: %s\n", c.Paths.Inbox)
			fmt.Fprintf(out, "  Database: %s (%s)\n", c.Paths.DatabasePath, c.Storage.Driver)
			fmt.Fprintf(out, "\nParallel Jobs: %d\n", c.Processing.ParallelJobs)
			fmt.Fprintf(out, "Log Level: %s\n", c.Logging.Level)
			fmt.Fprintf(out, "Log Format: %s\n", c.Logging.Format)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the effective configuration as JSON")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that baselines can be read",
		RunE: func(cmd *cobra.Command, args []string) error {
			git := vcs.Git{Dir: root.cfg.Paths.RepoRoot}
			if !git.Available() {
				return fmt.Errorf("git not found; committed baselines cannot be read")
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("snapdiff %s\n", Version)
			cmd.Printf("Built with Go %s\n", runtime.Version())
		},
	}
}
