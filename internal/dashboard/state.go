// Package dashboard holds the application state shared by the CLI and the
// server: the single latest-snapshot slot, the busy gates that stop a query
// from being submitted twice, the view model renderers bind to, and the
// Service that runs queries against the backend.
package dashboard

import (
	"sync"
	"sync/atomic"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// Gate is a busy flag for one kind of query.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire marks the gate busy. It returns false if it already was.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release clears the busy flag.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a query holds the gate.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}

// State is the dashboard's mutable state. The snapshot slot holds at most
// one snapshot; each Replace overwrites it whole.
type State struct {
	Current Gate
	History Gate

	mu      sync.RWMutex
	latest  *model.MetricSnapshot
	message string
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Replace stores snap as the latest snapshot and clears any message.
func (s *State) Replace(snap *model.MetricSnapshot) {
	var cp *model.MetricSnapshot
	if snap != nil {
		c := *snap
		cp = &c
	}
	s.mu.Lock()
	s.latest = cp
	s.message = ""
	s.mu.Unlock()
}

// Latest returns a copy of the latest snapshot, or nil.
func (s *State) Latest() *model.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	c := *s.latest
	return &c
}

// SetMessage records a user-visible status or error message.
func (s *State) SetMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}

// Message returns the last recorded message.
func (s *State) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}
