package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Generator is the external text-generation call. It is fallible and
// latency-bearing; no retries are attempted — failures propagate to the
// caller as-is.
type Generator interface {
	Generate(ctx context.Context, prompt string, payload string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, payload string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, payload string) (string, error) {
	return f(ctx, prompt, payload)
}

// StageResult captures the outcome of one stage run.
// Invariant: Processed is true iff Error is empty. TruncatedOutput is derived
// deterministically from Output and is the only form shown to a human;
// Output is retained untruncated for stage chaining.
type StageResult struct {
	Stage           string    `json:"stage"`
	Processed       bool      `json:"processed"`
	Output          string    `json:"output,omitempty"`
	TruncatedOutput string    `json:"truncated_output,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationMs      int64     `json:"duration_ms"`
}

// Succeeded reports whether the stage produced usable output.
func (r *StageResult) Succeeded() bool {
	return r.Processed && r.Error == ""
}

// Clone returns a structural copy of the result. Used wherever an edited
// variant is produced so the original is never mutated.
func (r *StageResult) Clone() *StageResult {
	c := *r
	return &c
}

// Status is a lightweight projection of an agent's state for the health
// monitor. It carries no output bodies.
type Status struct {
	Stage          string    `json:"stage"`
	Processed      int       `json:"processed"`
	Errors         int       `json:"errors"`
	LastDurationMs int64     `json:"last_duration_ms"`
	LastRunAt      time.Time `json:"last_run_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Agent wraps one pipeline stage backed by a Generator call.
// Run never returns an error: all failures are captured on the StageResult
// so the pipeline can still offer the (empty) output for human review.
type Agent struct {
	stage   string
	prompt  string
	wordCap int
	timeout time.Duration
	gen     Generator

	mu             sync.Mutex
	processed      int
	errors         int
	lastDurationMs int64
	lastRunAt      time.Time
	lastError      string
}

// New creates an Agent for the named stage.
func New(stage string, prompt string, wordCap int, timeout time.Duration, gen Generator) *Agent {
	if wordCap <= 0 {
		wordCap = DefaultWordCap
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Agent{stage: stage, prompt: prompt, wordCap: wordCap, timeout: timeout, gen: gen}
}

// Stage returns the stage name this agent runs.
func (a *Agent) Stage() string {
	return a.stage
}

// Run executes the stage against the given input.
func (a *Agent) Run(ctx context.Context, input string) *StageResult {
	start := time.Now()
	res := &StageResult{Stage: a.stage, StartedAt: start.UTC()}

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	output, err := a.gen.Generate(genCtx, a.prompt, input)
	res.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		res.Error = fmt.Sprintf("generate %s: %v", a.stage, err)
	} else if output == "" {
		res.Error = fmt.Sprintf("generate %s: empty response", a.stage)
	} else {
		res.Processed = true
		res.Output = output
		res.TruncatedOutput = Truncate(output, a.wordCap)
	}

	a.record(res)
	return res
}

func (a *Agent) record(res *StageResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if res.Processed {
		a.processed++
	} else {
		a.errors++
	}
	a.lastDurationMs = res.DurationMs
	a.lastRunAt = res.StartedAt
	a.lastError = res.Error
}

// Reset clears transient counters so the same instance is reusable across sessions.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processed = 0
	a.errors = 0
	a.lastDurationMs = 0
	a.lastRunAt = time.Time{}
	a.lastError = ""
}

// Status returns the current projection for health-monitor consumption.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Stage:          a.stage,
		Processed:      a.processed,
		Errors:         a.errors,
		LastDurationMs: a.lastDurationMs,
		LastRunAt:      a.lastRunAt,
		LastError:      a.lastError,
	}
}
