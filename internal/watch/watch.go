// Package watch reports files that appear or change in a directory once
// they have stopped changing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must stay unchanged before it is handled.
const DefaultSettle = 500 * time.Millisecond

// Handler processes one settled file. Errors are logged and do not stop
// the watcher.
type Handler func(ctx context.Context, path string) error

// Watcher monitors a single directory (not recursive).
type Watcher struct {
	dir    string
	exts   []string
	settle time.Duration
	logger *zap.Logger
	fs     *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtensions restricts handled files to the given extensions
// (case-insensitive, with the leading dot). Default: ".md".
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = w.exts[:0]
		for _, e := range exts {
			w.exts = append(w.exts, strings.ToLower(e))
		}
	}
}

// WithSettle sets the quiet period before a file is handled.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New starts watching dir. Call Close when done.
func New(dir string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		dir:    dir,
		exts:   []string{".md"},
		settle: DefaultSettle,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fs = fsw
	return w, nil
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers settled files to handler, one at a time, until ctx is done.
// Returns ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	w.logger.Info("watching", zap.String("dir", w.dir), zap.Strings("extensions", w.exts))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.settle/4, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(event.Name) {
				w.logger.Debug("ignoring file", zap.String("path", event.Name))
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("watcher error", zap.Error(err))

		case now := <-ticker.C:
			for _, path := range settled(pending, now, w.settle) {
				delete(pending, path)
				w.logger.Info("file ready", zap.String("path", path))
				if err := handler(ctx, path); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					w.logger.Error("handler failed", zap.String("path", path), zap.Error(err))
				}
			}
		}
	}
}

// settled returns the pending paths quiet for at least settle, sorted.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var ready []string
	for path, last := range pending {
		if now.Sub(last) >= settle {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)
	return ready
}

// accepts filters hidden files and unwanted extensions.
func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return slices.Contains(w.exts, strings.ToLower(filepath.Ext(base)))
}
