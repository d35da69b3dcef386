// Package task runs composed commands as named, tracked subprocesses.
package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"uetools/internal/domain"
)

// DefaultOutputLimit is the default number of lines returned by Output.
const DefaultOutputLimit = 100

// killWaitDelay bounds how long Wait keeps copying output after the process
// has been killed.
const killWaitDelay = 2 * time.Second

// Config holds configuration for the Coordinator.
type Config struct {
	OutputBufferMax int       // max bytes of output kept per task (default: 1MB)
	Mirror          io.Writer // optional live copy of every task's output
}

type entry struct {
	record domain.TaskRecord
	cmd    *exec.Cmd
	cancel context.CancelFunc
	output *outputBuffer
	handle *Handle
}

// Handle tracks one submission. It stays valid after the record has been
// superseded or removed.
type Handle struct {
	ID   string
	Name string

	done     chan domain.TaskResult
	finished chan struct{}
	result   domain.TaskResult
}

func newHandle(id, name string) *Handle {
	return &Handle{
		ID:       id,
		Name:     name,
		done:     make(chan domain.TaskResult, 1),
		finished: make(chan struct{}),
	}
}

// Done delivers the terminal result exactly once.
func (h *Handle) Done() <-chan domain.TaskResult { return h.done }

// Finished is closed once the task has reached a terminal status.
func (h *Handle) Finished() <-chan struct{} { return h.finished }

// Wait blocks until the task finishes or ctx is done. It can be called any
// number of times and does not consume the Done value.
func (h *Handle) Wait(ctx context.Context) (domain.TaskResult, error) {
	select {
	case <-h.finished:
		return h.result, nil
	case <-ctx.Done():
		return domain.TaskResult{}, ctx.Err()
	}
}

func (h *Handle) complete(res domain.TaskResult) {
	h.result = res
	close(h.finished)
	h.done <- res
}

// Coordinator starts external processes and tracks them by task name.
// At most one record exists per name; resubmitting a name replaces the record
// without terminating the process it pointed to.
type Coordinator struct {
	mu     sync.Mutex
	active map[string]*entry
	config Config
	bus    domain.EventBus
	logger *slog.Logger

	beforeStart func(name string) // test hook, runs while the record is pending
}

// NewCoordinator creates a Coordinator. bus may be nil.
func NewCoordinator(cfg Config, bus domain.EventBus, logger *slog.Logger) *Coordinator {
	if cfg.OutputBufferMax <= 0 {
		cfg.OutputBufferMax = 1024 * 1024
	}
	return &Coordinator{
		active: make(map[string]*entry),
		config: cfg,
		bus:    bus,
		logger: logger,
	}
}

// Submit starts cmd as the task called name and returns immediately.
// The record is tracked as pending until the process has started. If it
// cannot be started, the record it replaced is restored.
func (c *Coordinator) Submit(ctx context.Context, name string, cmd domain.ComposedCommand) (*Handle, error) {
	if name == "" {
		return nil, domain.NewSubSystemError("task", "Coordinator.Submit", domain.ErrInvalidInput, "empty task name")
	}
	if cmd.Executable == "" {
		return nil, domain.NewSubSystemError("task", "Coordinator.Submit", domain.ErrInvalidInput, "empty executable")
	}

	// Detached so the process outlives the request.
	procCtx, cancel := context.WithCancel(context.Background())
	proc := exec.CommandContext(procCtx, cmd.Executable, cmd.Argv()...)
	proc.Dir = cmd.WorkingDirectory
	proc.WaitDelay = killWaitDelay
	killTree(proc)

	out := newOutputBuffer(c.config.OutputBufferMax)
	var w io.Writer = out
	if c.config.Mirror != nil {
		w = io.MultiWriter(out, c.config.Mirror)
	}
	proc.Stdout = w
	proc.Stderr = w

	id := ulid.Make().String()
	e := &entry{
		record: domain.TaskRecord{
			ID:        id,
			Name:      name,
			Command:   cmd,
			Status:    domain.TaskStatusPending,
			StartedAt: time.Now(),
		},
		cmd:    proc,
		cancel: cancel,
		output: out,
		handle: newHandle(id, name),
	}

	c.mu.Lock()
	prev, superseded := c.active[name]
	var prevRec domain.TaskRecord
	if superseded {
		prevRec = prev.record
	}
	c.active[name] = e
	c.mu.Unlock()

	if c.beforeStart != nil {
		c.beforeStart(name)
	}

	if err := proc.Start(); err != nil {
		cancel()
		c.mu.Lock()
		if c.active[name] == e {
			if superseded {
				c.active[name] = prev
			} else {
				delete(c.active, name)
			}
		}
		c.mu.Unlock()
		e.handle.complete(domain.TaskResult{ID: id, Name: name, Status: domain.TaskStatusFailed, ExitCode: -1, Err: err})
		return nil, domain.WrapOp("Coordinator.Submit", err)
	}

	c.mu.Lock()
	e.record.Status = domain.TaskStatusRunning
	e.record.StartedAt = time.Now()
	rec := e.record
	c.mu.Unlock()

	if superseded {
		c.logger.Info("task superseded", "name", name, "previous_id", prevRec.ID, "id", id)
		c.emit(ctx, domain.EventTaskSuperseded, prevRec, 0)
	}

	c.emit(ctx, domain.EventTaskStarted, rec, 0)
	go c.waitForCompletion(e)

	c.logger.Info("task started", "name", name, "id", id, "command", cmd.ShellLine())
	return e.handle, nil
}

// List returns a copy of every tracked record, ordered by start time.
func (c *Coordinator) List() []domain.TaskRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.TaskRecord, 0, len(c.active))
	for _, e := range c.active {
		out = append(out, e.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Get returns the record currently tracked under name.
func (c *Coordinator) Get(name string) (domain.TaskRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.active[name]
	if !ok {
		return domain.TaskRecord{}, domain.NewSubSystemError("task", "Coordinator.Get", domain.ErrNotFound, name)
	}
	return e.record, nil
}

// Output returns captured output of the named task with line-based
// offset/limit pagination.
func (c *Coordinator) Output(name string, offset, limit int) (*domain.TaskOutput, error) {
	c.mu.Lock()
	e, ok := c.active[name]
	c.mu.Unlock()
	if !ok {
		return nil, domain.NewSubSystemError("task", "Coordinator.Output", domain.ErrNotFound, name)
	}

	text := strings.TrimRight(e.output.String(), "\n")
	dropped := e.output.Dropped()
	if text == "" {
		return &domain.TaskOutput{Name: name, DroppedBytes: dropped}, nil
	}

	lines := strings.Split(text, "\n")
	total := len(lines)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	end := min(offset+limit, total)

	return &domain.TaskOutput{
		Name:       name,
		Output:     strings.Join(lines[offset:end], "\n"),
		TotalLines: total,
		Offset:     offset,
		HasMore:    end < total,

		DroppedBytes: dropped,
	}, nil
}

// Remove forgets the named record. A running process is terminated first.
func (c *Coordinator) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	e, ok := c.active[name]
	if !ok {
		c.mu.Unlock()
		return domain.NewSubSystemError("task", "Coordinator.Remove", domain.ErrNotFound, name)
	}
	delete(c.active, name)
	running := !e.record.Status.Terminal()
	c.mu.Unlock()

	if running {
		e.cancel()
		if _, err := e.handle.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes all finished records and returns how many were removed.
func (c *Coordinator) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for name, e := range c.active {
		if e.record.Status.Terminal() {
			delete(c.active, name)
			removed++
		}
	}
	return removed
}

// Stop terminates every tracked running process and waits for them to exit
// or for ctx to be done.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	var running []*entry
	for _, e := range c.active {
		if !e.record.Status.Terminal() {
			running = append(running, e)
		}
	}
	c.mu.Unlock()

	for _, e := range running {
		c.logger.Info("stopping task", "name", e.handle.Name, "id", e.handle.ID)
		e.cancel()
	}
	for _, e := range running {
		if _, err := e.handle.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) waitForCompletion(e *entry) {
	err := e.cmd.Wait()
	e.cancel()

	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	now := time.Now()
	res := domain.TaskResult{ID: e.handle.ID, Name: e.handle.Name, ExitCode: code}
	c.mu.Lock()
	e.record.EndedAt = &now
	e.record.ExitCode = &code
	if code == 0 {
		e.record.Status = domain.TaskStatusSucceeded
	} else {
		e.record.Status = domain.TaskStatusFailed
		if err != nil {
			e.record.Error = err.Error()
		}
	}
	rec := e.record
	c.mu.Unlock()

	res.Status = rec.Status
	if code != 0 {
		res.Err = &domain.ProcessExitError{Task: rec.Name, Code: code}
	}

	c.emit(context.Background(), domain.EventTaskCompleted, rec, now.Sub(rec.StartedAt))
	c.logger.Info("task finished", "name", rec.Name, "id", rec.ID, "status", rec.Status, "exit_code", code)
	e.handle.complete(res)
}

func (c *Coordinator) emit(ctx context.Context, t domain.EventType, rec domain.TaskRecord, took time.Duration) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, domain.NewEvent(t, domain.TaskEventPayload{
		ID:          rec.ID,
		Name:        rec.Name,
		Command:     rec.Command,
		CommandLine: rec.Command.ShellLine(),
		Status:      rec.Status,
		ExitCode:    rec.ExitCode,
		DurationMs:  took.Milliseconds(),
		Error:       rec.Error,
	}))
}
