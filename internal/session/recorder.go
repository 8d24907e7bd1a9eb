package session

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"snapdiff/internal/capture"
	"snapdiff/internal/diff"
	"snapdiff/internal/identity"
)

// Option overrides a threshold for a single screenshot.
type Option func(*diff.Thresholds)

func WithColorDistanceLimit(limit float64) Option {
	return func(t *diff.Thresholds) { t.ColorDistanceLimit = limit }
}

func WithAreaSizeLimit(limit int) Option {
	return func(t *diff.Thresholds) { t.AreaSizeLimit = limit }
}

// Failure is a Different verdict with the call site that produced it.
type Failure struct {
	Caller  string
	Verdict Verdict
}

// Message is the user facing failure text.
func (f Failure) Message() string { return f.Verdict.Failure(f.Caller) }

// Recorder is the per-test helper a test framework integration wraps:
// it names screenshots by section, group and sequence, runs the session,
// and collects differences to report when the test ends. A Recorder
// belongs to one test and is not safe for concurrent use.
type Recorder struct {
	session    *Session
	thresholds diff.Thresholds
	scope      identity.Scope
	inactive   bool
	failures   []Failure
}

// NewRecorder returns an active recorder using th as default thresholds.
func NewRecorder(s *Session, th diff.Thresholds) *Recorder {
	return &Recorder{session: s, thresholds: th}
}

// SetActive toggles screenshotting; an inactive recorder does nothing.
func (r *Recorder) SetActive(active bool) { r.inactive = !active }

// Section sets the section used for subsequent screenshots.
func (r *Recorder) Section(name string) {
	r.scope = r.scope.WithSection(name)
}

// Group starts a numbered group and purges the group's previous artifacts.
func (r *Recorder) Group(name string) error {
	r.scope = r.scope.WithGroup(name)
	if r.inactive || name == "" {
		return nil
	}
	return r.session.Layout.PurgeGroup(r.scope.Section(), name)
}

// Screenshot captures label and compares it. Different verdicts are
// remembered for Failures; errors are returned immediately.
func (r *Recorder) Screenshot(ctx context.Context, label string, src capture.Source, opts ...Option) (Verdict, error) {
	if r.inactive {
		return Verdict{}, nil
	}
	caller := callerSite(2)

	th := r.thresholds
	for _, opt := range opts {
		opt(&th)
	}

	id, next := r.scope.Next(label)
	r.scope = next

	v, err := r.session.Run(ctx, id, src, th)
	if err != nil {
		return v, err
	}
	if v.Kind == Different {
		r.failures = append(r.failures, Failure{Caller: caller, Verdict: v})
	}
	return v, nil
}

// Failures returns the differences collected so far.
func (r *Recorder) Failures() []Failure {
	return append([]Failure(nil), r.failures...)
}

// Err joins every failure message, or returns nil.
func (r *Recorder) Err() error {
	if len(r.failures) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.failures))
	for _, f := range r.failures {
		msgs = append(msgs, f.Message())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "\n\n"))
}

func callerSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
