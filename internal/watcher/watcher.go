// Package watcher turns captures dropped into an inbox directory into
// identity events, waiting until a file stops changing.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"snapdiff/internal/fsutil"
)

// DefaultSettle is how long a capture must stay unchanged before it is reported.
const DefaultSettle = 300 * time.Millisecond

// Event names an identity whose captures changed.
type Event struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Time time.Time `json:"time"`
}

// Watcher monitors an inbox tree, including directories created later.
type Watcher struct {
	root    string
	settle  time.Duration
	log     *slog.Logger
	watcher *fsnotify.Watcher
	Events  chan Event

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// New creates a watcher for root. settle <= 0 uses DefaultSettle.
func New(root string, settle time.Duration, logger *slog.Logger) (*Watcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		settle:  settle,
		log:     logger,
		watcher: fw,
		Events:  make(chan Event, 100),
		pending: map[string]*time.Timer{},
	}, nil
}

// Start adds the inbox tree and processes events until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info("watching inbox", "path", w.root)
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and closes Events.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	close(w.Events)
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("failed to watch directory", "path", event.Name, "error", err)
					}
					continue
				}
			case event.Op&fsnotify.Write == fsnotify.Write:
			default:
				continue
			}
			if _, _, ok := fsutil.FrameName(w.root, event.Name); !ok {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("inbox watcher error", "error", err)

		case <-ctx.Done():
			w.Stop()
			return
		}
	}
}

// schedule restarts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.emit(path) })
}

func (w *Watcher) emit(path string) {
	name, _, ok := fsutil.FrameName(w.root, path)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, path)
	if w.closed {
		return
	}
	select {
	case w.Events <- Event{Name: name, Path: path, Time: time.Now()}:
	default:
		w.log.Warn("event buffer full, dropping capture", "path", path)
	}
}
