package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lucasnoah/explainforge/internal/agent"
	"github.com/lucasnoah/explainforge/internal/approval"
	"github.com/lucasnoah/explainforge/internal/config"
	"github.com/lucasnoah/explainforge/internal/events"
	"github.com/lucasnoah/explainforge/internal/journal"
	"github.com/lucasnoah/explainforge/internal/prompt"
	"github.com/lucasnoah/explainforge/internal/provision"
	"github.com/lucasnoah/explainforge/internal/repomon"
	"github.com/lucasnoah/explainforge/internal/session"
)

// RepoStageID is the stage injected by the repository poll loop when new
// commits are detected during a live session.
const RepoStageID = "repositoryAnalysis"

// Orchestrator drives one analysis workflow at a time: the fixed stage
// sequence, the approval gate, and the two background loops (health monitor
// and repository poller). It owns the per-session run context so Terminate
// can stop a workflow that is not parked at a gate.
type Orchestrator struct {
	cfg      *config.Config
	gen      agent.Generator
	registry *session.Registry
	gate     *approval.Gate
	policy   approval.Policy
	monitor  *repomon.Monitor
	prov     *provision.Provisioner
	bus      *events.Bus
	jour     *journal.DB
	logger   *slog.Logger

	order     []string
	agents    map[string]*agent.Agent
	repoAgent *agent.Agent

	mu           sync.Mutex
	runCancel    context.CancelFunc
	termReason   map[string]string
	repoFindings string
}

// New creates an Orchestrator. monitor, prov, and jour may be nil, which
// disables repository polling, scan bookkeeping, and journaling respectively.
func New(
	cfg *config.Config,
	gen agent.Generator,
	registry *session.Registry,
	gate *approval.Gate,
	monitor *repomon.Monitor,
	prov *provision.Provisioner,
	bus *events.Bus,
	jour *journal.DB,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:        cfg,
		gen:        gen,
		registry:   registry,
		gate:       gate,
		policy:     approval.NewPolicy(cfg.Approval.Mode, cfg.Approval.Stages),
		monitor:    monitor,
		prov:       prov,
		bus:        bus,
		jour:       jour,
		logger:     logger,
		agents:     make(map[string]*agent.Agent),
		termReason: make(map[string]string),
	}

	stages := cfg.Pipeline.Stages
	if len(stages) == 0 {
		for _, id := range config.DefaultStageIDs {
			stages = append(stages, config.Stage{ID: id})
		}
	}
	for _, s := range stages {
		if s.Disabled {
			continue
		}
		p, err := o.stagePrompt(s)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.ID, err)
		}
		wordCap := s.WordCap
		if wordCap == 0 {
			wordCap = cfg.Pipeline.Defaults.WordCap
		}
		o.order = append(o.order, s.ID)
		o.agents[s.ID] = agent.New(s.ID, p, wordCap, cfg.StageTimeout(), gen)
	}
	if len(o.order) == 0 {
		return nil, fmt.Errorf("no enabled stages configured")
	}

	repoPrompt, err := o.stagePrompt(config.Stage{ID: RepoStageID})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", RepoStageID, err)
	}
	o.repoAgent = agent.New(RepoStageID, repoPrompt, cfg.Pipeline.Defaults.WordCap, cfg.StageTimeout(), gen)

	return o, nil
}

// stagePrompt resolves and renders the prompt for a stage. Project-level
// template files win over built-ins; the stage input itself is delivered as
// the generation payload, not substituted into the prompt.
func (o *Orchestrator) stagePrompt(s config.Stage) (string, error) {
	var tmpl string
	if s.PromptTemplate != "" {
		loaded, err := prompt.LoadTemplate(s.PromptTemplate)
		if err != nil {
			return "", err
		}
		tmpl = loaded
	} else if builtin, ok := prompt.Builtin(s.ID + ".md"); ok {
		tmpl = builtin
	} else {
		return fmt.Sprintf("# %s\n\nProcess the input provided below.\n", s.ID), nil
	}
	return prompt.Render(tmpl, prompt.StageVars())
}

// StageOrder returns the configured stage sequence.
func (o *Orchestrator) StageOrder() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// RunWorkflow executes the full stage sequence against the input and returns
// the frozen session state. Background loops are started on entry and
// cancelled on every exit path. A rejection at the gate is not an error: the
// returned state is terminated with the rejection reason.
func (o *Orchestrator) RunWorkflow(ctx context.Context, input string) (*session.State, error) {
	sid, runCtx, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	return o.run(runCtx, sid, input)
}

// StartWorkflow begins a workflow in the background and returns its session
// id immediately. Progress is observable through the event bus and journal.
func (o *Orchestrator) StartWorkflow(ctx context.Context, input string) (string, error) {
	sid, runCtx, err := o.begin(ctx)
	if err != nil {
		return "", err
	}
	go func() {
		if _, err := o.run(runCtx, sid, input); err != nil {
			o.logger.Error("workflow failed", "session", sid, "error", err)
		}
	}()
	return sid, nil
}

// begin starts a fresh session and claims the single-run slot.
func (o *Orchestrator) begin(ctx context.Context) (string, context.Context, error) {
	o.mu.Lock()
	if o.runCancel != nil {
		o.mu.Unlock()
		return "", nil, fmt.Errorf("a workflow is already running")
	}
	st := o.registry.Init()
	runCtx, cancel := context.WithCancel(ctx)
	o.runCancel = cancel
	o.repoFindings = ""
	o.mu.Unlock()
	return st.ID, runCtx, nil
}

func (o *Orchestrator) run(runCtx context.Context, sid, input string) (*session.State, error) {
	o.mu.Lock()
	cancel := o.runCancel
	o.mu.Unlock()

	var loops sync.WaitGroup
	defer func() {
		cancel()
		loops.Wait()
		o.mu.Lock()
		o.runCancel = nil
		o.mu.Unlock()
	}()

	loops.Add(1)
	go func() {
		defer loops.Done()
		o.healthLoop(runCtx, sid)
	}()
	if o.monitor != nil && o.monitor.State() != repomon.StateDisconnected {
		loops.Add(1)
		go func() {
			defer loops.Done()
			o.repoLoop(runCtx, sid)
		}()
	}

	o.journalEvent(sid, "workflowStarted", "", "")
	o.bus.Emit(sid, events.TypeStateUpdate, map[string]any{"status": "running", "stages": o.order})

	current := input
	for _, stageID := range o.order {
		if stageID == "analogyGeneration" {
			if findings := o.takeRepoFindings(); findings != "" {
				current = current + "\n\n## Repository Findings\n" + findings
			}
		}

		res, err := o.runStage(runCtx, sid, o.agents[stageID], current)
		if err != nil {
			return o.handleStageError(sid, stageID, err)
		}
		if !res.Succeeded() {
			return o.handleStageError(sid, stageID, fmt.Errorf("%s", res.Error))
		}
		current = res.Output
	}

	o.finishSummary(runCtx, sid, current, false)
	if err := o.registry.Complete(sid); err != nil {
		return nil, err
	}
	o.journalEvent(sid, "workflowCompleted", "", "")
	o.bus.Emit(sid, events.TypeStateUpdate, map[string]any{"status": "completed"})

	return o.frozenState(sid), nil
}

// runStage executes one agent, routes the result through the gate, and
// records the settled (possibly edited) result in session history.
func (o *Orchestrator) runStage(ctx context.Context, sid string, ag *agent.Agent, input string) (*agent.StageResult, error) {
	stageID := ag.Stage()
	res := ag.Run(ctx, input)
	if ctx.Err() != nil {
		// Cancelled mid-stage: the in-flight result is discarded without
		// gating or recording.
		return nil, ctx.Err()
	}

	o.bus.Emit(sid, events.TypeProcessingStep, map[string]any{
		"stage":             stageID,
		"processed":         res.Processed,
		"truncated_output":  res.TruncatedOutput,
		"error":             res.Error,
		"awaiting_approval": o.policy.Required(stageID),
	})

	dec, err := o.gate.Request(ctx, sid, res)
	if err != nil {
		return nil, err
	}
	settled := dec.Result

	if err := o.registry.RecordStep(sid, settled); err != nil {
		return nil, err
	}
	if o.policy.Required(stageID) {
		o.bus.Emit(sid, events.TypeStepApproved, map[string]any{
			"stage":  stageID,
			"edited": dec.WasEdited,
		})
	}
	o.journalStageRun(sid, settled, dec.WasEdited)
	return settled, nil
}

// handleStageError classifies a stage failure: gate rejection and requested
// termination freeze the session as terminated; anything else is errored.
func (o *Orchestrator) handleStageError(sid, stageID string, err error) (*session.State, error) {
	if approval.IsRejection(err) {
		reason := err.Error()
		_ = o.registry.Terminate(sid, reason)
		o.finishSummary(context.Background(), sid, "", true)
		o.journalEvent(sid, "workflowTerminated", stageID, reason)
		o.bus.Emit(sid, events.TypeWorkflowTerminated, map[string]any{
			"stage":  stageID,
			"reason": reason,
		})
		return o.frozenState(sid), nil
	}

	if reason, ok := o.takeTermination(sid); ok {
		_ = o.registry.Terminate(sid, reason)
		o.journalEvent(sid, "workflowTerminated", stageID, reason)
		o.bus.Emit(sid, events.TypeWorkflowTerminated, map[string]any{
			"stage":  stageID,
			"reason": reason,
		})
		return o.frozenState(sid), nil
	}

	msg := fmt.Sprintf("stage %s: %v", stageID, err)
	_ = o.registry.Fail(sid, msg)
	o.journalEvent(sid, "workflowError", stageID, msg)
	o.bus.Emit(sid, events.TypeError, map[string]any{"stage": stageID, "message": msg})
	return o.frozenState(sid), fmt.Errorf("%s", msg)
}

// finishSummary synthesizes a closing summary from the final output. On the
// completed path it is recorded as a history step before the freeze; after a
// termination it is emitted only. Summary failures never fail the workflow.
func (o *Orchestrator) finishSummary(ctx context.Context, sid, finalOutput string, terminated bool) {
	content := finalOutput
	if content == "" {
		var parts []string
		for _, r := range o.registry.History(sid) {
			if r.Succeeded() {
				parts = append(parts, r.Stage+": "+r.TruncatedOutput)
			}
		}
		content = strings.Join(parts, "\n\n")
	}
	if content == "" {
		return
	}

	tmpl, _ := prompt.Builtin("workflowSummary.md")
	p, err := prompt.Render(tmpl, prompt.Vars{"content": "(provided below)"})
	if err != nil {
		return
	}

	summaryCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout())
	defer cancel()
	ag := agent.New("summary", p, o.cfg.Pipeline.Defaults.WordCap, o.cfg.StageTimeout(), o.gen)
	res := ag.Run(summaryCtx, content)
	if !res.Succeeded() {
		o.logger.Warn("summary stage failed", "session", sid, "error", res.Error)
		return
	}
	if !terminated {
		_ = o.registry.RecordStep(sid, res)
	}
	o.journalStageRun(sid, res, false)
	o.bus.Emit(sid, events.TypeProcessingStep, map[string]any{
		"stage":            "summary",
		"processed":        true,
		"truncated_output": res.TruncatedOutput,
	})
}

// Approve settles a pending approval, optionally with edited output text.
func (o *Orchestrator) Approve(sessionID, stage, editedText string) error {
	return o.gate.Approve(sessionID, stage, editedText)
}

// Reject settles a pending approval as rejected, terminating the workflow.
func (o *Orchestrator) Reject(sessionID, stage, reason string) error {
	return o.gate.Reject(sessionID, stage, reason)
}

// Terminate stops the running workflow for the session. A workflow parked at
// a gate is rejected there; otherwise the run context is cancelled and the
// in-flight stage result is discarded without gating.
func (o *Orchestrator) Terminate(sessionID, reason string) error {
	if reason == "" {
		reason = "terminated by user"
	}

	pending := o.gate.Pending(sessionID)
	if len(pending) > 0 {
		var firstErr error
		for _, stage := range pending {
			if err := o.gate.Reject(sessionID, stage, reason); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	o.mu.Lock()
	cancel := o.runCancel
	if cancel != nil {
		o.termReason[sessionID] = reason
	}
	o.mu.Unlock()
	if cancel == nil {
		return fmt.Errorf("no running workflow for session %s", sessionID)
	}
	cancel()
	return nil
}

// Feedback runs the feedback-incorporation stage over the given explanation
// text. The result is never gated; recording into a frozen session is a
// silent no-op so feedback still works after completion.
func (o *Orchestrator) Feedback(ctx context.Context, sessionID, explanation, feedback string) (*agent.StageResult, error) {
	tmpl, _ := prompt.Builtin("feedbackIncorporation.md")
	p, err := prompt.Render(tmpl, prompt.Vars{
		"content":  "(provided below)",
		"feedback": feedback,
	})
	if err != nil {
		return nil, err
	}
	ag := agent.New("feedbackIncorporation", p, o.cfg.Pipeline.Defaults.WordCap, o.cfg.StageTimeout(), o.gen)
	res := ag.Run(ctx, explanation)
	_ = o.registry.RecordStep(sessionID, res)
	o.journalStageRun(sessionID, res, false)
	return res, nil
}

// PendingApprovals returns the stages currently parked at the gate.
func (o *Orchestrator) PendingApprovals(sessionID string) []string {
	return o.gate.Pending(sessionID)
}

// PendingResult returns the un-edited stage result awaiting approval.
func (o *Orchestrator) PendingResult(sessionID, stage string) (*agent.StageResult, bool) {
	return o.gate.Original(sessionID, stage)
}

// AgentStatuses returns the health projection for every stage agent.
func (o *Orchestrator) AgentStatuses() []agent.Status {
	out := make([]agent.Status, 0, len(o.order)+1)
	for _, id := range o.order {
		out = append(out, o.agents[id].Status())
	}
	out = append(out, o.repoAgent.Status())
	return out
}

func (o *Orchestrator) takeTermination(sid string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reason, ok := o.termReason[sid]
	if ok {
		delete(o.termReason, sid)
	}
	return reason, ok
}

func (o *Orchestrator) takeRepoFindings() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.repoFindings
	o.repoFindings = ""
	return f
}

func (o *Orchestrator) setRepoFindings(report string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.repoFindings = report
}

// frozenState reads the session state after freeze.
func (o *Orchestrator) frozenState(sid string) *session.State {
	st := o.registry.Snapshot()
	if st == nil || st.ID != sid {
		return &session.State{ID: sid}
	}
	return st
}

func (o *Orchestrator) journalEvent(sid, event, stage, detail string) {
	if o.jour == nil {
		return
	}
	if err := o.jour.LogWorkflowEvent(sid, event, stage, detail); err != nil {
		o.logger.Warn("journal write failed", "event", event, "error", err)
	}
}

func (o *Orchestrator) journalStageRun(sid string, res *agent.StageResult, edited bool) {
	if o.jour == nil {
		return
	}
	summary := res.TruncatedOutput
	if res.Error != "" {
		summary = res.Error
	}
	if err := o.jour.LogStageRun(sid, res.Stage, res.Succeeded(), edited, int(res.DurationMs), summary); err != nil {
		o.logger.Warn("journal write failed", "stage", res.Stage, "error", err)
	}
}
