package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"snapdiff/internal/imagebuf"
)

// Files replays screenshots that were written by an external tool. Each
// Capture returns the next file; once the list is exhausted the last file
// is returned again, so a single file behaves like a static page.
type Files struct {
	paths []string

	mu   sync.Mutex
	next int
}

// NewFiles returns a Files source over paths, in order.
func NewFiles(paths ...string) *Files {
	return &Files{paths: paths}
}

func (f *Files) Capture(ctx context.Context) (*imagebuf.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, Fail("files", err)
	}
	if len(f.paths) == 0 {
		return nil, Fail("files", errors.New("no input files"))
	}

	f.mu.Lock()
	i := f.next
	if f.next < len(f.paths)-1 {
		f.next++
	}
	f.mu.Unlock()

	data, err := os.ReadFile(f.paths[i])
	if err != nil {
		return nil, Fail("files", err)
	}
	buf, err := imagebuf.Decode(data)
	if err != nil {
		return nil, Fail("files", fmt.Errorf("%s: %w", f.paths[i], err))
	}
	return buf, nil
}

func (f *Files) Capabilities() Capability { return 0 }
