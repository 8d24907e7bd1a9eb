package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"snapdiff/internal/capture"
	"snapdiff/internal/config"
	"snapdiff/internal/diff"
	"snapdiff/internal/fsutil"
	"snapdiff/internal/identity"
	"snapdiff/internal/pipeline"
	"snapdiff/internal/storage"
	"snapdiff/internal/watcher"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline) *cobra.Command {
	return newRootCmd(NewRoot(pipe, cfg, log, store))
}

func newRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "snapdiff",
		Short: "snapdiff compares screenshots against their committed baselines",
		Long: `snapdiff captures pages (or replays saved captures), waits until they stop
changing, and compares them with the version committed to git. Differences
are written next to the capture as a .diff.png.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newCompareCmd(root))
	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// thresholdFlags binds the per-run threshold overrides.
type thresholdFlags struct {
	colorDistance float64
	areaSize      int
	noiseFloor    float64
}

func (f *thresholdFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.colorDistance, "color-distance", 0, "largest accepted per-pixel color distance (0-510)")
	cmd.Flags().IntVar(&f.areaSize, "area-size", 0, "largest accepted number of differing pixels")
	cmd.Flags().Float64Var(&f.noiseFloor, "noise-floor", 0, "ignore pixels whose distance is at or below this value")
}

// resolve starts from the configured defaults and applies flags that were set.
func (f *thresholdFlags) resolve(cmd *cobra.Command, cfg *config.Config) diff.Thresholds {
	th := cfg.Thresholds()
	if cmd.Flags().Changed("color-distance") {
		th.ColorDistanceLimit = f.colorDistance
	}
	if cmd.Flags().Changed("area-size") {
		th.AreaSizeLimit = f.areaSize
	}
	if cmd.Flags().Changed("noise-floor") {
		th.NoiseFloor = f.noiseFloor
	}
	return th.Normalize()
}

func newCompareCmd(root *Root) *cobra.Command {
	var (
		from []string
		url  string
		th   thresholdFlags
	)

	cmd := &cobra.Command{
		Use:   "compare <identity>",
		Short: "Compare one screenshot against its committed baseline",
		Long: `Capture <identity> and compare it with the committed baseline.

Examples:
  # replay saved captures; repeated --from flags are consecutive captures
  snapdiff compare login/01_form --from a.png --from b.png

  # capture a live page through Chrome
  snapdiff compare home --url http://localhost:3000/ --color-distance 10 --area-size 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.compare(cmd.Context(), cmd.OutOrStdout(), args[0], from, url, th.resolve(cmd, root.cfg))
		},
	}

	cmd.Flags().StringArrayVar(&from, "from", nil, "capture file to replay (repeatable, in capture order)")
	cmd.Flags().StringVar(&url, "url", "", "page to capture with Chrome")
	th.register(cmd)
	return cmd
}

func newRunCmd(root *Root) *cobra.Command {
	var th thresholdFlags

	cmd := &cobra.Command{
		Use:   "run [inbox]",
		Short: "Compare every capture found in an inbox directory",
		Long: `Walk the inbox and compare each capture with its baseline. A capture is
<identity>.png, or <identity>@<n>.png when several consecutive captures of the
same page were saved. The inbox defaults to paths.inbox.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inbox := root.cfg.Paths.Inbox
			if len(args) > 0 {
				inbox = args[0]
			}
			return root.runInbox(cmd.Context(), cmd, inbox, th.resolve(cmd, root.cfg))
		},
	}
	th.register(cmd)
	return cmd
}

func (r *Root) runInbox(ctx context.Context, cmd *cobra.Command, inbox string, th diff.Thresholds) error {
	if r.pipeline == nil {
		return fmt.Errorf("pipeline unavailable")
	}
	sets, err := fsutil.GroupFrames(inbox)
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	if len(sets) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no captures in %s\n", inbox)
		return nil
	}

	jobs := make([]pipeline.Job, 0, len(sets))
	for _, set := range sets {
		id, err := identity.Parse(set.Name)
		if err != nil {
			r.log.Warn("skipping capture with invalid name", "name", set.Name, "error", err)
			continue
		}
		jobs = append(jobs, pipeline.Job{
			Identity:   id,
			Source:     capture.NewFiles(set.Paths...),
			Thresholds: th,
			Origin:     set.Paths[0],
		})
	}

	runID, results, err := r.pipeline.RunBatch(ctx, "inbox:"+filepath.Clean(inbox), jobs)
	if err != nil {
		return err
	}
	r.log.Info("run finished", "run", runID, "identities", len(results))
	return report(cmd.OutOrStdout(), results)
}

func newWatchCmd(root *Root) *cobra.Command {
	var th thresholdFlags

	cmd := &cobra.Command{
		Use:   "watch [inbox]",
		Short: "Compare captures as they land in the inbox",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inbox := root.cfg.Paths.Inbox
			if len(args) > 0 {
				inbox = args[0]
			}
			return root.watch(cmd.Context(), cmd, inbox, th.resolve(cmd, root.cfg))
		},
	}
	th.register(cmd)
	return cmd
}

func (r *Root) watch(ctx context.Context, cmd *cobra.Command, inbox string, th diff.Thresholds) error {
	if r.pipeline == nil {
		return fmt.Errorf("pipeline unavailable")
	}
	w, err := watcher.New(inbox, 0, r.log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	results, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if err := r.enqueueFrames(ctx, inbox, ev.Name, th); err != nil {
				r.log.Warn("failed to queue capture", "name", ev.Name, "error", err)
			}
		case res, ok := <-results:
			if !ok {
				return nil
			}
			_ = report(out, []pipeline.Result{res})
		}
	}
}

func (r *Root) enqueueFrames(ctx context.Context, inbox, name string, th diff.Thresholds) error {
	id, err := identity.Parse(name)
	if err != nil {
		return err
	}
	set, err := fsutil.FramesFor(inbox, name)
	if err != nil {
		return err
	}
	if len(set.Paths) == 0 {
		return nil
	}
	_, err = r.pipeline.Enqueue(ctx, pipeline.Job{
		Identity:   id,
		Source:     capture.NewFiles(set.Paths...),
		Thresholds: th,
		Origin:     set.Paths[0],
	})
	return err
}
