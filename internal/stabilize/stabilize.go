// Package stabilize captures a page repeatedly until two consecutive
// screenshots agree, so animations and late rendering do not produce
// false differences.
package stabilize

import (
	"context"
	"errors"
	"time"

	"snapdiff/internal/capture"
	"snapdiff/internal/diff"
	"snapdiff/internal/imagebuf"
)

// DefaultMaxAttempts bounds the capture loop when no cap is configured.
const DefaultMaxAttempts = 10

// State of the capture loop.
type State int

const (
	Capturing State = iota
	Stable
	Exhausted
)

func (s State) String() string {
	switch s {
	case Capturing:
		return "capturing"
	case Stable:
		return "stable"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Config controls one stabilization run.
type Config struct {
	// MaxAttempts caps the number of captures. Values below 1 use
	// DefaultMaxAttempts.
	MaxAttempts int
	// Thresholds decide whether two consecutive captures agree.
	Thresholds diff.Thresholds
	// Interval is the pause between captures.
	Interval time.Duration
	// Timeout optionally bounds the whole run in wall-clock time.
	Timeout time.Duration
}

// Outcome is the settled (or best effort) capture.
type Outcome struct {
	Buffer   *imagebuf.Buffer
	State    State
	Attempts int
	// Cancelled is set when the run stopped early because the context was
	// done; State is then Exhausted.
	Cancelled bool
}

// Run drives the Capturing -> Stable | Exhausted state machine. Capture
// failures are returned as errors and not retried. When the attempt cap is
// hit, or the context ends after at least one capture, the last capture is
// returned with State Exhausted.
func Run(ctx context.Context, src capture.Source, cfg Config) (Outcome, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	out := Outcome{State: Capturing}
	for out.State == Capturing {
		if ctx.Err() != nil {
			return out.cancelled(ctx)
		}

		buf, err := src.Capture(ctx)
		if err != nil {
			if out.Buffer != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return out.cancelled(ctx)
			}
			return out, capture.Fail("stabilize", err)
		}
		out.Attempts++

		prev := out.Buffer
		out.Buffer = buf
		switch {
		case prev != nil && diff.Compare(prev, buf, cfg.Thresholds).Identical:
			out.State = Stable
		case out.Attempts >= maxAttempts:
			out.State = Exhausted
		default:
			if !sleep(ctx, cfg.Interval) {
				return out.cancelled(ctx)
			}
		}
	}
	return out, nil
}

func (o Outcome) cancelled(ctx context.Context) (Outcome, error) {
	if o.Buffer == nil {
		return o, capture.Fail("stabilize", ctx.Err())
	}
	o.State = Exhausted
	o.Cancelled = true
	return o, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
