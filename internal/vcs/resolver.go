package vcs

import (
	"context"
	"errors"
	"fmt"

	"snapdiff/internal/artifact"
	"snapdiff/internal/identity"
	"snapdiff/internal/imagebuf"
)

// ErrBaselineDecode matches baselines whose committed bytes cannot be
// decoded. It is never folded into "no baseline".
var ErrBaselineDecode = errors.New("baseline decode failed")

// DecodeError carries the path of the corrupt baseline.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("vcs: committed baseline %s is not a readable image: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrBaselineDecode }

// Baseline is an accepted image together with its committed bytes.
type Baseline struct {
	Buffer *imagebuf.Buffer
	Data   []byte
	Path   string
}

// Resolver finds the accepted baseline of an identity.
type Resolver struct {
	Repo   Repository
	Layout artifact.Layout
}

// Resolve returns nil when the identity has no committed baseline.
func (r Resolver) Resolve(ctx context.Context, id identity.Identity) (*Baseline, error) {
	path := r.Layout.CommittedPath(id)
	data, ok, err := r.Repo.ReadCommitted(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	buf, err := imagebuf.Decode(data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return &Baseline{Buffer: buf, Data: data, Path: path}, nil
}
