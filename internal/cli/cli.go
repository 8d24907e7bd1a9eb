package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"snapdiff/internal/capture"
	"snapdiff/internal/config"
	"snapdiff/internal/diff"
	"snapdiff/internal/grpcserver"
	"snapdiff/internal/identity"
	"snapdiff/internal/pipeline"
	"snapdiff/internal/storage"
)

// ErrScreenshotsDiffer is returned when a command finishes with at least
// one Different verdict or failed comparison.
var ErrScreenshotsDiffer = errors.New("screenshots differ")

type pipelineClient interface {
	RunBatch(ctx context.Context, source string, jobs []pipeline.Job) (string, []pipeline.Result, error)
	Enqueue(ctx context.Context, job pipeline.Job) (string, error)
	Subscribe() (<-chan pipeline.Result, func())
}

// pageSource is a capture source that must be released after use.
type pageSource interface {
	capture.Source
	Close() error
}

type browser interface {
	Open(ctx context.Context, url string) (pageSource, error)
	Close() error
}

type browserLauncher func(ctx context.Context, cfg capture.BrowserConfig) (browser, error)

type rodBrowser struct{ *capture.Browser }

func (b rodBrowser) Open(ctx context.Context, url string) (pageSource, error) {
	p, err := b.Browser.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func defaultLaunch(ctx context.Context, cfg capture.BrowserConfig) (browser, error) {
	b, err := capture.LaunchBrowser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return rodBrowser{b}, nil
}

type historyClient interface {
	Recent(ctx context.Context, identity string, limit int) ([]map[string]any, error)
	Flaky(ctx context.Context, limit int) ([]map[string]any, error)
	Close() error
}

type historyDialer func(addr string) (historyClient, error)

func defaultDial(addr string) (historyClient, error) {
	c, err := grpcserver.Dial(addr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type serverFunc func(ctx context.Context, r *Root) error

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	launch   browserLauncher
	dial     historyDialer
	serveFn  serverFunc
}

// NewRoot constructs the CLI root.
func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	r := &Root{
		cfg:     cfg,
		log:     logger,
		store:   store,
		launch:  defaultLaunch,
		dial:    defaultDial,
		serveFn: defaultServe,
	}
	if pl != nil {
		r.pipeline = pl
	}
	return r
}

func (r *Root) browserConfig() capture.BrowserConfig {
	return capture.BrowserConfig{
		RemoteURL: r.cfg.Browser.RemoteURL,
		Headless:  r.cfg.Browser.Headless,
		Stealth:   r.cfg.Browser.Stealth,
		Width:     r.cfg.Compare.Width,
		Height:    r.cfg.Compare.Height,
		FullPage:  r.cfg.Browser.FullPage,
		Logger:    r.log,
	}
}

// compare runs a single identity against either replayed files or a live page.
func (r *Root) compare(ctx context.Context, out io.Writer, name string, files []string, url string, th diff.Thresholds) error {
	id, err := identity.Parse(name)
	if err != nil {
		return err
	}
	if r.pipeline == nil {
		return fmt.Errorf("pipeline unavailable")
	}

	var src capture.Source
	origin := url
	switch {
	case url != "" && len(files) > 0:
		return fmt.Errorf("use either --url or --from, not both")
	case url != "":
		b, err := r.launch(ctx, r.browserConfig())
		if err != nil {
			return err
		}
		defer b.Close()
		page, err := b.Open(ctx, url)
		if err != nil {
			return err
		}
		defer page.Close()
		src = page
	case len(files) > 0:
		src = capture.NewFiles(files...)
		origin = files[0]
	default:
		return fmt.Errorf("nothing to capture: pass --from or --url")
	}

	job := pipeline.Job{Identity: id, Source: src, Thresholds: th, Origin: origin}
	_, results, err := r.pipeline.RunBatch(ctx, "compare", []pipeline.Job{job})
	if err != nil {
		return err
	}
	return report(out, results)
}

// report prints one line per result plus failure messages, and returns
// ErrScreenshotsDiffer when anything failed.
func report(out io.Writer, results []pipeline.Result) error {
	failed := 0
	for _, res := range results {
		name := res.Job.Identity.Name()
		if res.Error != nil {
			failed++
			fmt.Fprintf(out, "error        %s: %v\n", name, res.Error)
			continue
		}
		v := res.Verdict
		note := ""
		if v.Exhausted {
			note = fmt.Sprintf(" (unstable after %d captures)", v.Attempts)
		}
		fmt.Fprintf(out, "%-12s %s%s\n", v.Kind, name, note)
		if res.Failed() {
			failed++
			fmt.Fprintln(out, v.Failure(res.Job.Origin))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScreenshotsDiffer, failed, len(results))
	}
	return nil
}
