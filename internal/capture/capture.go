// Package capture defines where screenshots come from. The comparison code
// only depends on Source and on the capabilities a source advertises,
// never on a concrete driver.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"

	"snapdiff/internal/imagebuf"
)

// ErrCaptureFailed matches every error produced by a failing source.
var ErrCaptureFailed = errors.New("capture failed")

// ErrViewportMismatch is wrapped when the viewport differs from the
// configured dimensions.
var ErrViewportMismatch = errors.New("viewport size mismatch")

// Capability is a bit set describing optional source features.
type Capability uint8

const (
	// CapViewportSize: the source implements ViewportReporter and its
	// viewport can be checked before capturing.
	CapViewportSize Capability = 1 << iota
	// CapFullPage: captures cover the whole document, not just the viewport.
	CapFullPage
)

// Has reports whether every bit of c2 is set.
func (c Capability) Has(c2 Capability) bool { return c&c2 == c2 }

// Source produces screenshots. A source is not assumed to be safe for
// concurrent use.
type Source interface {
	Capture(ctx context.Context) (*imagebuf.Buffer, error)
	Capabilities() Capability
}

// ViewportReporter is implemented by sources advertising CapViewportSize.
type ViewportReporter interface {
	ViewportSize(ctx context.Context) (width, height int, err error)
}

// Error is a capture-source failure. It is fatal for the identity being
// captured and is never retried.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("capture: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrCaptureFailed }

// Fail wraps err as a capture failure unless it already is one.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// CheckViewport validates the viewport of src against want. Sources
// without CapViewportSize, or an empty want, are not checked.
func CheckViewport(ctx context.Context, src Source, want image.Point) error {
	if want.X <= 0 || want.Y <= 0 || !src.Capabilities().Has(CapViewportSize) {
		return nil
	}
	vr, ok := src.(ViewportReporter)
	if !ok {
		return nil
	}
	w, h, err := vr.ViewportSize(ctx)
	if err != nil {
		return Fail("viewport", err)
	}
	if w != want.X || h != want.Y {
		return Fail("viewport", fmt.Errorf("%w: got %dx%d, want %dx%d", ErrViewportMismatch, w, h, want.X, want.Y))
	}
	return nil
}

// Func adapts a function into a Source without capabilities.
type Func func(ctx context.Context) (*imagebuf.Buffer, error)

func (f Func) Capture(ctx context.Context) (*imagebuf.Buffer, error) {
	b, err := f(ctx)
	if err != nil {
		return nil, Fail("capture", err)
	}
	return b, nil
}

func (f Func) Capabilities() Capability { return 0 }
