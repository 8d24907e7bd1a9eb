package session

import (
	"fmt"
	"image"

	"snapdiff/internal/diff"
	"snapdiff/internal/identity"
)

// Kind is the outcome category of a comparison.
type Kind int

const (
	NoBaseline Kind = iota
	Identical
	Different
)

func (k Kind) String() string {
	switch k {
	case NoBaseline:
		return "no_baseline"
	case Identical:
		return "identical"
	case Different:
		return "different"
	default:
		return "unknown"
	}
}

// Verdict is the result of one comparison with its diagnostics.
type Verdict struct {
	Identity identity.Identity
	Kind     Kind

	MaxColorDistance  float64
	DiffArea          int
	Bounds            image.Rectangle
	DimensionMismatch bool
	BaselineSize      image.Point
	CurrentSize       image.Point

	CurrentPath string
	// DiffPath is only set for Different verdicts.
	DiffPath string

	Attempts  int
	Stable    bool
	Exhausted bool
	Cancelled bool
}

// Failure renders the message reported for a Different verdict, or ""
// for any other kind. caller is the call site that took the screenshot.
func (v Verdict) Failure(caller string) string {
	if v.Kind != Different {
		return ""
	}
	msg := fmt.Sprintf("Screenshot does not match for '%s' (area: %dpx %s, max_color_distance: %.1f)",
		v.Identity.Name(), v.DiffArea, v.dimensions(), diff.Round(v.MaxColorDistance))
	if v.Exhausted {
		msg += fmt.Sprintf(" [unstable after %d captures]", v.Attempts)
	}
	msg += "\n" + v.DiffPath
	if caller != "" {
		msg += "\nat " + caller
	}
	return msg
}

func (v Verdict) dimensions() string {
	if v.DimensionMismatch {
		return fmt.Sprintf("size %dx%d != %dx%d", v.CurrentSize.X, v.CurrentSize.Y, v.BaselineSize.X, v.BaselineSize.Y)
	}
	return fmt.Sprintf("%dx%d", v.Bounds.Dx(), v.Bounds.Dy())
}

// Details flattens the diagnostics for logs and storage.
func (v Verdict) Details() map[string]any {
	return map[string]any{
		"verdict":            v.Kind.String(),
		"max_color_distance": diff.Round(v.MaxColorDistance),
		"diff_area":          v.DiffArea,
		"bounds":             v.Bounds.String(),
		"dimension_mismatch": v.DimensionMismatch,
		"attempts":           v.Attempts,
		"stable":             v.Stable,
		"exhausted":          v.Exhausted,
		"cancelled":          v.Cancelled,
		"current_path":       v.CurrentPath,
		"diff_path":          v.DiffPath,
	}
}
