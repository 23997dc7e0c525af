package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/explainforge/internal/agent"
)

// Step is one entry in a session's stage history.
type Step struct {
	Stage      string    `json:"stage"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	HasError   bool      `json:"has_error"`
}

// State is the in-memory state of one pipeline session. It is created by
// Init, mutated only through the registry, and discarded when a new session
// starts or the process exits. Completed and Terminated are mutually
// exclusive; once either is set the session is frozen.
type State struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	Completed         bool      `json:"completed"`
	Terminated        bool      `json:"terminated"`
	TerminationReason string    `json:"termination_reason,omitempty"`
	Errored           bool      `json:"errored"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Steps             []Step    `json:"steps"`
}

// Frozen reports whether the session accepts no further stage execution.
func (s *State) Frozen() bool {
	return s.Completed || s.Terminated || s.Errored
}

// Registry tracks the single active session and the full ordered history of
// its stage results. A new Init call implicitly discards prior in-memory state.
type Registry struct {
	mu      sync.Mutex
	state   *State
	history []*agent.StageResult
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Init starts a new session, discarding any prior one.
func (r *Registry) Init() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = &State{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Steps:     []Step{},
	}
	r.history = nil
	return r.snapshotLocked()
}

// Active returns the current session state, or an error if none exists or
// the id does not match the active session.
func (r *Registry) Active(sessionID string) (*State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, fmt.Errorf("no active session")
	}
	if r.state.ID != sessionID {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return r.snapshotLocked(), nil
}

// Snapshot returns a copy of the current session state regardless of its
// frozen status, or nil if no session was ever started.
func (r *Registry) Snapshot() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil
	}
	return r.snapshotLocked()
}

// RecordStep appends a stage result to the session history. Recording
// against a frozen session is refused.
func (r *Registry) RecordStep(sessionID string, res *agent.StageResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil || r.state.ID != sessionID {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if r.state.Frozen() {
		return fmt.Errorf("session %s is frozen", sessionID)
	}
	r.state.Steps = append(r.state.Steps, Step{
		Stage:      res.Stage,
		Timestamp:  res.StartedAt,
		DurationMs: res.DurationMs,
		Success:    res.Processed,
		HasError:   res.Error != "",
	})
	r.history = append(r.history, res.Clone())
	return nil
}

// Complete freezes the session as successfully completed.
func (r *Registry) Complete(sessionID string) error {
	return r.freeze(sessionID, func(s *State) {
		s.Completed = true
	})
}

// Terminate freezes the session as user-terminated with the given reason.
func (r *Registry) Terminate(sessionID string, reason string) error {
	return r.freeze(sessionID, func(s *State) {
		s.Terminated = true
		s.TerminationReason = reason
	})
}

// Fail freezes the session as errored. Distinct from Terminate so observers
// can tell "user stopped it" from "it broke".
func (r *Registry) Fail(sessionID string, msg string) error {
	return r.freeze(sessionID, func(s *State) {
		s.Errored = true
		s.ErrorMessage = msg
	})
}

func (r *Registry) freeze(sessionID string, mark func(*State)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil || r.state.ID != sessionID {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if r.state.Frozen() {
		return fmt.Errorf("session %s is already frozen", sessionID)
	}
	mark(r.state)
	return nil
}

// History returns copies of all stage results recorded for the session, in order.
func (r *Registry) History(sessionID string) []*agent.StageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil || r.state.ID != sessionID {
		return nil
	}
	out := make([]*agent.StageResult, len(r.history))
	for i, res := range r.history {
		out[i] = res.Clone()
	}
	return out
}

// snapshotLocked returns a copy of the state so callers cannot mutate
// registry internals. Caller must hold r.mu.
func (r *Registry) snapshotLocked() *State {
	s := *r.state
	s.Steps = make([]Step, len(r.state.Steps))
	copy(s.Steps, r.state.Steps)
	return &s
}
