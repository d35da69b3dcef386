// Package logtail follows a growing log file and delivers newly appended,
// classified lines.
package logtail

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"uetools/internal/domain"
)

// DefaultInterval is the polling period used when Config.Interval is zero.
const DefaultInterval = time.Second

// LinesFunc receives each non-empty batch of new lines.
type LinesFunc func(lines []domain.ClassifiedLine)

// Config holds tailer settings.
type Config struct {
	Interval time.Duration
}

// Tailer starts pollers for log files.
type Tailer struct {
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Tailer.
func New(cfg Config, logger *slog.Logger) *Tailer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Tailer{interval: cfg.Interval, logger: logger}
}

// Start polls path until ctx is done or the returned cancel func is called.
// No batch is delivered after cancel returns.
func (t *Tailer) Start(ctx context.Context, path string, onLines LinesFunc) context.CancelFunc {
	return t.Run(ctx, NewFollower(path, onLines))
}

// Run polls f on the tailer's interval. Callers that keep f may Poll it
// themselves, for example once more after the writer has exited.
func (t *Tailer) Run(ctx context.Context, f *Follower) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				f.Stop()
				return
			case <-ticker.C:
				if err := f.Poll(); err != nil {
					t.logger.Warn("log tail poll failed", "path", f.path, "error", err)
				}
			}
		}
	}()

	t.logger.Debug("log tail started", "path", f.path, "interval", t.interval)
	return func() {
		f.Stop()
		cancel()
	}
}

// Follower tracks the read offset of one file. Lines are split on each poll
// without carrying a partial trailing line over to the next poll, so a line
// written across two polls is delivered as two fragments.
type Follower struct {
	path    string
	onLines LinesFunc

	mu      sync.Mutex
	offset  int64
	stopped atomic.Bool
	deliver sync.Mutex // held while onLines runs
}

// NewFollower creates a Follower starting at offset 0.
func NewFollower(path string, onLines LinesFunc) *Follower {
	return &Follower{path: path, onLines: onLines}
}

// Stop prevents further deliveries and waits for one in progress to return.
// It must not be called from onLines.
func (f *Follower) Stop() {
	f.stopped.Store(true)
	f.deliver.Lock()
	defer f.deliver.Unlock()
}

// Offset returns the number of bytes consumed so far.
func (f *Follower) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Poll runs one iteration: it reads exactly the bytes appended since the last
// poll and delivers them. A missing file is not an error. A file that shrank
// is read again from the start.
func (f *Follower) Poll() error {
	f.deliver.Lock()
	defer f.deliver.Unlock()
	if f.stopped.Load() {
		return nil
	}

	f.mu.Lock()
	lines, err := f.readNew()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if len(lines) > 0 && !f.stopped.Load() {
		f.onLines(lines)
	}
	return nil
}

// readNew must be called with f.mu held.
func (f *Follower) readNew() ([]domain.ClassifiedLine, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < f.offset {
		f.offset = 0
	}
	if size == f.offset {
		return nil, nil
	}

	buf := make([]byte, size-f.offset)
	n, err := file.ReadAt(buf, f.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	f.offset += int64(n)
	return Classify(string(buf[:n])), nil
}

// Classify splits text into lines and classifies every non-blank one.
func Classify(text string) []domain.ClassifiedLine {
	var out []domain.ClassifiedLine
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, domain.ClassifiedLine{Severity: domain.ClassifyLine(line), Text: line})
	}
	return out
}
