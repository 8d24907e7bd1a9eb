// Package session runs one screenshot comparison end to end: resolve the
// accepted baseline, obtain a settled capture, compare, persist.
package session

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"snapdiff/internal/artifact"
	"snapdiff/internal/capture"
	"snapdiff/internal/diff"
	"snapdiff/internal/identity"
	"snapdiff/internal/imagebuf"
	"snapdiff/internal/logging"
	"snapdiff/internal/stabilize"
	"snapdiff/internal/vcs"
)

// Session holds what a comparison needs besides the identity, the source
// and the thresholds. It keeps no per-identity state and can be shared by
// concurrent runs for different identities.
type Session struct {
	Resolver  vcs.Resolver
	Layout    artifact.Layout
	Stabilize stabilize.Config
	// Dimensions is the expected viewport; zero disables the check.
	Dimensions image.Point
	Logger     *slog.Logger
}

// New builds a Session reading baselines from repo.
func New(repo vcs.Repository, layout artifact.Layout, stab stabilize.Config, dims image.Point, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		Resolver:   vcs.Resolver{Repo: repo, Layout: layout},
		Layout:     layout,
		Stabilize:  stab,
		Dimensions: dims,
		Logger:     logger,
	}
}

// Run compares the capture from src against the baseline of id. Errors
// are fatal for this identity only: corrupt baselines, capture failures
// and filesystem errors. An unstable page is not an error; the verdict is
// flagged Exhausted instead.
func (s *Session) Run(ctx context.Context, id identity.Identity, src capture.Source, th diff.Thresholds) (Verdict, error) {
	v := Verdict{Identity: id}
	if err := id.Validate(); err != nil {
		return v, err
	}
	name := id.Name()
	log := s.logger().With("identity", name)
	v.CurrentPath = s.Layout.CurrentPath(id)

	baseline, err := s.Resolver.Resolve(ctx, id)
	if err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}
	if err := capture.CheckViewport(ctx, src, s.Dimensions); err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}

	if baseline == nil {
		return s.runWithoutBaseline(ctx, v, src, log)
	}

	out, err := stabilize.Run(ctx, src, s.Stabilize)
	if err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}
	logging.LogStabilization(log, name, out.State.String(), out.Attempts, out.Cancelled)

	res := diff.Compare(baseline.Buffer, out.Buffer, th)
	v.Attempts = out.Attempts
	v.Stable = out.State == stabilize.Stable
	v.Exhausted = out.State == stabilize.Exhausted
	v.Cancelled = out.Cancelled
	v.MaxColorDistance = res.MaxColorDistance
	v.DiffArea = res.DiffArea
	v.Bounds = res.Bounds
	v.DimensionMismatch = res.DimensionMismatch
	v.BaselineSize = baseline.Buffer.Size()
	v.CurrentSize = out.Buffer.Size()

	if res.Identical {
		v.Kind = Identical
		// Write the accepted bytes back so the working tree does not show
		// a spurious change for an unchanged page.
		if err := s.persist(v.CurrentPath, baseline.Data); err != nil {
			return v, fmt.Errorf("session %s: %w", name, err)
		}
		if err := s.Layout.Discard(s.Layout.DiffPath(id)); err != nil {
			return v, fmt.Errorf("session %s: %w", name, err)
		}
		return v, nil
	}

	v.Kind = Different
	v.DiffPath = s.Layout.DiffPath(id)
	if err := s.persistBuffer(v.CurrentPath, out.Buffer); err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}
	if err := s.persistBuffer(v.DiffPath, res.Render(out.Buffer)); err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}
	log.Info("screenshot differs",
		"area", v.DiffArea,
		"max_color_distance", diff.Round(v.MaxColorDistance),
		"diff", v.DiffPath,
	)
	return v, nil
}

// runWithoutBaseline takes a single capture and stores it as the candidate
// baseline; there is nothing to stabilize against.
func (s *Session) runWithoutBaseline(ctx context.Context, v Verdict, src capture.Source, log *slog.Logger) (Verdict, error) {
	name := v.Identity.Name()
	buf, err := src.Capture(ctx)
	if err != nil {
		return v, fmt.Errorf("session %s: %w", name, capture.Fail("capture", err))
	}
	v.Kind = NoBaseline
	v.Attempts = 1
	v.CurrentSize = buf.Size()
	if err := s.persistBuffer(v.CurrentPath, buf); err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}
	if err := s.Layout.Discard(s.Layout.DiffPath(v.Identity)); err != nil {
		return v, fmt.Errorf("session %s: %w", name, err)
	}
	log.Info("no committed baseline, candidate written", "path", v.CurrentPath)
	return v, nil
}

func (s *Session) persistBuffer(path string, buf *imagebuf.Buffer) error {
	data, err := buf.EncodePNG()
	if err != nil {
		return err
	}
	return s.persist(path, data)
}

func (s *Session) persist(path string, data []byte) error {
	_, err := s.Layout.Write(path, data)
	return err
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
