package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lucasnoah/explainforge/internal/agent"
)

// Mode controls which stages require human sign-off.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeNone   Mode = "none"
	ModeSubset Mode = "subset"
)

// Policy decides whether a stage's result is gated.
type Policy struct {
	Mode   Mode
	Stages map[string]bool
}

// NewPolicy builds a Policy. stages is only consulted in subset mode.
func NewPolicy(mode string, stages []string) Policy {
	set := make(map[string]bool, len(stages))
	for _, s := range stages {
		set[s] = true
	}
	return Policy{Mode: Mode(mode), Stages: set}
}

// Required reports whether the named stage needs approval under this policy.
func (p Policy) Required(stage string) bool {
	switch p.Mode {
	case ModeNone:
		return false
	case ModeSubset:
		return p.Stages[stage]
	default:
		return true
	}
}

// RejectionError is the distinguished termination signal raised when a human
// rejects a pending approval. It is a normal termination path, not a system error.
type RejectionError struct {
	SessionID string
	Stage     string
	Reason    string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("stage %q rejected", e.Stage)
	}
	return fmt.Sprintf("stage %q rejected: %s", e.Stage, e.Reason)
}

// IsRejection reports whether err carries a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// ErrNoPending is returned when settling a key that has no live continuation.
// First settlement removes the key, so a double resolve or a resolve after
// reject lands here instead of reaching the waiter twice.
var ErrNoPending = errors.New("no pending approval")

type key struct {
	session string
	stage   string
}

type settlement struct {
	result    *agent.StageResult
	wasEdited bool
	err       error
}

type pending struct {
	original *agent.StageResult
	done     chan settlement
}

// Decision is what Request returns once the gate settles.
type Decision struct {
	Result    *agent.StageResult
	WasEdited bool
}

// Gate suspends gated stages on a per-(session, stage) one-shot continuation.
// The continuations are exclusively owned here; callers never see the raw
// settle channel.
type Gate struct {
	policy Policy

	mu      sync.Mutex
	pending map[key]*pending
}

// NewGate creates a Gate with the given policy.
func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy, pending: make(map[key]*pending)}
}

// Request routes a stage result through the gate. When the active policy does
// not gate the stage it resolves immediately with the original result — a
// data-dependent fast path, not a caller special case. Otherwise it blocks
// until Approve, Reject, or context cancellation.
func (g *Gate) Request(ctx context.Context, sessionID string, result *agent.StageResult) (Decision, error) {
	if !g.policy.Required(result.Stage) {
		return Decision{Result: result}, nil
	}

	k := key{session: sessionID, stage: result.Stage}
	p := &pending{original: result, done: make(chan settlement, 1)}

	g.mu.Lock()
	if _, exists := g.pending[k]; exists {
		g.mu.Unlock()
		return Decision{}, fmt.Errorf("approval already pending for session %s stage %s", sessionID, result.Stage)
	}
	g.pending[k] = p
	g.mu.Unlock()

	select {
	case s := <-p.done:
		if s.err != nil {
			return Decision{}, s.err
		}
		return Decision{Result: s.result, WasEdited: s.wasEdited}, nil
	case <-ctx.Done():
		g.remove(k)
		return Decision{}, ctx.Err()
	}
}

// Approve settles the pending approval for (sessionID, stage). A non-empty
// editedText produces a field-replaced copy of the original result; the
// stored original is never mutated.
func (g *Gate) Approve(sessionID string, stage string, editedText string) error {
	p, err := g.take(sessionID, stage)
	if err != nil {
		return err
	}

	s := settlement{result: p.original}
	if editedText != "" && editedText != p.original.Output {
		s.result = MergeEdited(p.original, editedText)
		s.wasEdited = true
	}
	p.done <- s
	return nil
}

// Reject settles the pending approval with a RejectionError, which unwinds
// the awaiting pipeline as a termination signal.
func (g *Gate) Reject(sessionID string, stage string, reason string) error {
	p, err := g.take(sessionID, stage)
	if err != nil {
		return err
	}
	p.done <- settlement{err: &RejectionError{SessionID: sessionID, Stage: stage, Reason: reason}}
	return nil
}

// MergeEdited returns a copy of original whose text fields carry the human
// edit. Name and timing are preserved. The merged result is always usable:
// when the original stage failed, the human edit supplies the output it
// could not produce, so the failure is cleared rather than carried forward.
// Applying the same edit twice yields the same value.
func MergeEdited(original *agent.StageResult, editedText string) *agent.StageResult {
	merged := original.Clone()
	merged.Output = editedText
	merged.TruncatedOutput = agent.Truncate(editedText, agent.DefaultWordCap)
	merged.Processed = true
	merged.Error = ""
	return merged
}

// Pending lists the stage names with a live continuation for the session,
// in stable order.
func (g *Gate) Pending(sessionID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var stages []string
	for k := range g.pending {
		if k.session == sessionID {
			stages = append(stages, k.stage)
		}
	}
	sort.Strings(stages)
	return stages
}

// Original returns the stored original result for a pending approval.
func (g *Gate) Original(sessionID string, stage string) (*agent.StageResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[key{session: sessionID, stage: stage}]
	if !ok {
		return nil, false
	}
	return p.original, true
}

// take removes and returns the pending entry, or ErrNoPending.
func (g *Gate) take(sessionID string, stage string) (*pending, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key{session: sessionID, stage: stage}
	p, ok := g.pending[k]
	if !ok {
		return nil, fmt.Errorf("session %s stage %s: %w", sessionID, stage, ErrNoPending)
	}
	delete(g.pending, k)
	return p, nil
}

func (g *Gate) remove(k key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, k)
}
