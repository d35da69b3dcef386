// Package session holds the detected project and engine context shared by
// all operations.
package session

import (
	"sync"

	"uetools/internal/domain"
)

// Snapshot is a consistent copy of the session fields.
type Snapshot struct {
	Project      *domain.ProjectDescriptor
	Installation *domain.EngineInstallation
	Paths        *domain.ToolPaths
	MajorVersion int
}

// Require returns a MissingFieldError for the first absent engine field.
func (s Snapshot) Require() error {
	switch {
	case s.Project == nil:
		return &domain.MissingFieldError{Field: "project"}
	case s.Installation == nil:
		return &domain.MissingFieldError{Field: "engine installation"}
	case s.Paths == nil:
		return &domain.MissingFieldError{Field: "tool paths"}
	}
	return nil
}

// State is the goroutine-safe session store.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New returns an empty State.
func New() *State { return &State{} }

// Snapshot returns the current fields. Readers never observe a project from
// one detection paired with an installation from another.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetProject replaces the project and clears the engine fields derived from
// the previous one.
func (s *State) SetProject(p *domain.ProjectDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{Project: p}
}

// SetEngine records the located installation and its tool paths.
func (s *State) SetEngine(inst *domain.EngineInstallation, paths *domain.ToolPaths, major int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Installation = inst
	s.snap.Paths = paths
	s.snap.MajorVersion = major
}

// Set replaces every field at once.
func (s *State) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

// Reset forgets everything.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
}
