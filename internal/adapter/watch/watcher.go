// Package watch re-triggers detection when project manifests change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"uetools/internal/domain"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Config holds the directories to watch.
type Config struct {
	Roots    []string
	Debounce time.Duration
}

// ChangeFunc is called after a debounced change with the last changed path.
type ChangeFunc func(ctx context.Context, path string)

// Watcher watches workspace roots for .uproject changes and their Plugins
// directories for added or removed plugins.
type Watcher struct {
	fs       *fsnotify.Watcher
	watched  map[string]bool
	debounce time.Duration
	bus      domain.EventBus
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Watcher over the roots that exist. bus may be nil.
func New(cfg Config, bus domain.EventBus, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		watched:  make(map[string]bool),
		debounce: cfg.Debounce,
		bus:      bus,
		logger:   logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	for _, root := range cfg.Roots {
		if err := w.add(root); err != nil {
			logger.Warn("workspace root not watched", "root", root, "error", err)
			continue
		}
		plugins := filepath.Join(root, "Plugins")
		if info, err := os.Stat(plugins); err == nil && info.IsDir() {
			if err := w.add(plugins); err != nil {
				logger.Warn("plugins dir not watched", "dir", plugins, "error", err)
			}
		}
	}
	if len(w.watched) == 0 {
		fw.Close()
		return nil, domain.NewSubSystemError("watch", "watch.New", domain.ErrNotFound, "no workspace root could be watched")
	}
	return w, nil
}

func (w *Watcher) add(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := w.fs.Add(abs); err != nil {
		return err
	}
	w.watched[abs] = true
	return nil
}

// Paths returns the watched directories.
func (w *Watcher) Paths() []string {
	out := make([]string, 0, len(w.watched))
	for p := range w.watched {
		out = append(out, p)
	}
	return out
}

// Run delivers debounced changes to onChange until ctx is done or the
// watcher is closed. onChange runs on the Run goroutine.
func (w *Watcher) Run(ctx context.Context, onChange ChangeFunc) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("workspace change", "path", ev.Name, "op", ev.Op.String())
			pending = ev.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if w.bus != nil {
				w.bus.Publish(ctx, domain.NewEvent(domain.EventWorkspaceChanged, map[string]string{"path": pending}))
			}
			onChange(ctx, pending)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch event overflow, forcing re-detect")
				pending = ""
				onChange(ctx, pending)
				continue
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// relevant keeps manifest changes in a root and any entry change inside a
// Plugins directory.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if strings.EqualFold(filepath.Ext(ev.Name), ".uproject") {
		return true
	}
	return filepath.Base(filepath.Dir(ev.Name)) == "Plugins" && w.watched[filepath.Dir(ev.Name)]
}

// Close stops the watcher. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fs.Close()
}
