// Package vcs reads accepted baselines from version control history. The
// working tree is never consulted: the current run may already have
// overwritten it with a fresh capture.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Repository gives access to committed file content.
type Repository interface {
	// ReadCommitted returns the committed bytes of path (slash separated,
	// relative to the repository working directory). ok is false when
	// the path has never been committed.
	ReadCommitted(ctx context.Context, path string) (data []byte, ok bool, err error)
}

// Git reads committed content with the git command line.
type Git struct {
	// Dir is the working directory git runs in.
	Dir string
	// Rev is the revision to read from; empty means HEAD.
	Rev string
	// Binary overrides the git executable.
	Binary string
}

// absentMarkers are the git messages meaning "no committed version".
var absentMarkers = []string{
	"does not exist in",
	"exists on disk, but not in",
	"invalid object name",
	"bad revision",
	"unknown revision",
	"not a git repository",
}

func (g Git) ReadCommitted(ctx context.Context, path string) ([]byte, bool, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	rev := g.Rev
	if rev == "" {
		rev = "HEAD"
	}

	cmd := exec.CommandContext(ctx, bin, "show", rev+":./"+strings.TrimPrefix(path, "./"))
	cmd.Dir = g.Dir
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), true, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, false, fmt.Errorf("vcs: run git: %w", err)
	}
	msg := strings.TrimSpace(stderr.String())
	if isAbsent(msg) {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("vcs: git show %s: %s", path, msg)
}

func isAbsent(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range absentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Available reports whether the git binary can be found.
func (g Git) Available() bool {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}
