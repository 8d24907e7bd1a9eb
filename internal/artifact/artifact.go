// Package artifact maps identities to files in the screenshot area and
// writes them.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"snapdiff/internal/identity"
)

const lockName = ".snapdiff.lock"

// Layout is the on-disk arrangement: Root is the repository working tree,
// Area the screenshot directory relative to it.
type Layout struct {
	Root string
	Area string
}

// CurrentPath is where the capture for id is written.
func (l Layout) CurrentPath(id identity.Identity) string {
	return filepath.Join(l.Root, l.Area, filepath.FromSlash(id.Name())+".png")
}

// DiffPath is the sibling diff visualization for id.
func (l Layout) DiffPath(id identity.Identity) string {
	return filepath.Join(l.Root, l.Area, filepath.FromSlash(id.Name())+".diff.png")
}

// CommittedPath is the slash separated path of the baseline relative to
// Root, as version control knows it.
func (l Layout) CommittedPath(id identity.Identity) string {
	return filepath.ToSlash(filepath.Join(l.Area, filepath.FromSlash(id.Name())+".png"))
}

// GroupDir is the directory holding every artifact of a group.
func (l Layout) GroupDir(section, group string) string {
	return filepath.Join(l.Root, l.Area, section, group)
}

// PurgeGroup removes every artifact of a group. It holds the area lock
// exclusively, so it waits for writes in flight from other processes and
// blocks new ones until the group is gone.
func (l Layout) PurgeGroup(section, group string) error {
	if group == "" {
		return errors.New("artifact: refusing to purge without a group")
	}
	lock, err := l.areaLock()
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("artifact: lock area: %w", err)
	}
	defer lock.Unlock()

	if err := os.RemoveAll(l.GroupDir(section, group)); err != nil {
		return fmt.Errorf("artifact: purge group: %w", err)
	}
	return nil
}

// Write is WriteIfChanged under a shared area lock.
func (l Layout) Write(path string, data []byte) (bool, error) {
	lock, err := l.areaLock()
	if err != nil {
		return false, err
	}
	if err := lock.RLock(); err != nil {
		return false, fmt.Errorf("artifact: lock area: %w", err)
	}
	defer lock.Unlock()
	return WriteIfChanged(path, data)
}

// Discard is Remove under a shared area lock.
func (l Layout) Discard(path string) error {
	lock, err := l.areaLock()
	if err != nil {
		return err
	}
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("artifact: lock area: %w", err)
	}
	defer lock.Unlock()
	return Remove(path)
}

// areaLock returns a fresh handle on the area lock file. Each handle is
// its own open file, so handles in one process exclude each other too.
func (l Layout) areaLock() (*flock.Flock, error) {
	area := filepath.Join(l.Root, l.Area)
	if err := os.MkdirAll(area, 0755); err != nil {
		return nil, fmt.Errorf("artifact: create area: %w", err)
	}
	return flock.New(filepath.Join(area, lockName)), nil
}

// WriteIfChanged atomically replaces path with data unless the file
// already holds exactly those bytes. It reports whether it wrote.
func WriteIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("artifact: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("artifact: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, fmt.Errorf("artifact: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("artifact: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("artifact: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("artifact: rename: %w", err)
	}
	return true, nil
}

// Remove deletes path, ignoring a missing file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
