package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/explainforge/internal/events"
	"github.com/lucasnoah/explainforge/internal/prompt"
	"github.com/lucasnoah/explainforge/internal/repomon"
	"github.com/lucasnoah/explainforge/internal/scan"
)

// anomalyKeywords are the markers a health summary must lead with for the
// monitor to surface it. A summary starting with "ok" stays silent.
var anomalyKeywords = []string{"stalled", "error", "anomaly", "stuck", "degraded", "failing"}

// healthLoop periodically summarizes agent health and emits an
// orchestratorUpdate only when the summary signals an anomaly.
func (o *Orchestrator) healthLoop(ctx context.Context, sid string) {
	tick := time.NewTicker(o.cfg.HealthInterval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			o.healthCheck(ctx, sid)
		}
	}
}

func (o *Orchestrator) healthCheck(ctx context.Context, sid string) {
	snapshot := o.healthSnapshot()

	summary, err := o.healthSummary(ctx, snapshot)
	if err != nil {
		// Generator unavailable: fall back to a local reading of the counters.
		summary = localHealthSummary(snapshot)
	}

	if !isAnomaly(summary) {
		return
	}
	o.logger.Warn("health anomaly", "session", sid, "summary", summary)
	o.journalEvent(sid, "healthAnomaly", "", summary)
	o.bus.Emit(sid, events.TypeOrchestratorUpdate, map[string]any{"summary": summary})
}

func (o *Orchestrator) healthSnapshot() string {
	var b strings.Builder
	for _, st := range o.AgentStatuses() {
		fmt.Fprintf(&b, "%s: processed=%d errors=%d", st.Stage, st.Processed, st.Errors)
		if st.LastError != "" {
			fmt.Fprintf(&b, " last_error=%q", st.LastError)
		}
		if !st.LastRunAt.IsZero() {
			fmt.Fprintf(&b, " last_run=%s ago", time.Since(st.LastRunAt).Round(time.Second))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (o *Orchestrator) healthSummary(ctx context.Context, snapshot string) (string, error) {
	tmpl, _ := prompt.Builtin("healthSummary.md")
	p, err := prompt.Render(tmpl, prompt.Vars{"content": "(provided below)"})
	if err != nil {
		return "", err
	}
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout())
	defer cancel()
	out, err := o.gen.Generate(genCtx, p, snapshot)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("empty health summary")
	}
	return strings.TrimSpace(out), nil
}

// localHealthSummary derives a one-line assessment directly from the counter
// snapshot when the generator cannot be reached.
func localHealthSummary(snapshot string) string {
	for _, line := range strings.Split(snapshot, "\n") {
		if strings.Contains(line, "last_error=") {
			return "error: " + line
		}
	}
	return "ok: all agents nominal"
}

func isAnomaly(summary string) bool {
	lower := strings.ToLower(summary)
	for _, kw := range anomalyKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// repoLoop polls the monitored repository. The first tick establishes the
// baseline; connection failures abort the cycle and retry next tick.
func (o *Orchestrator) repoLoop(ctx context.Context, sid string) {
	tick := time.NewTicker(o.cfg.RepoInterval())
	defer tick.Stop()

	firstRun := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			firstRun = o.repoTick(ctx, sid, firstRun)
		}
	}
}

// repoTick runs one poll cycle and returns whether the next cycle is still a
// first run (true only when this cycle failed before establishing a baseline).
func (o *Orchestrator) repoTick(ctx context.Context, sid string, firstRun bool) bool {
	cs, err := o.monitor.CheckForChanges(ctx, firstRun)
	if err != nil {
		o.logger.Warn("repository poll failed", "session", sid, "error", err)
		return firstRun
	}
	if !cs.HasChanges {
		return false
	}

	issues := o.monitor.Scan(ctx, cs.ChangedFiles)
	report := repomon.FormatReport(cs, issues)
	o.recordScan(sid, cs, issues, report)

	st, err := o.registry.Active(sid)
	live := err == nil && !st.Frozen()
	if !live {
		o.bus.Emit(sid, events.TypeRepoChanges, map[string]any{
			"summary":      repomon.ChangeSummary(cs),
			"commit_range": cs.CommitRange,
			"files":        cs.ChangedFiles,
			"issues":       len(issues),
		})
		return false
	}

	// Live session: run the analysis stage through the same gate and history
	// path as a pipeline stage. Rejection here terminates the repo stage only.
	res, err := o.runStage(ctx, sid, o.repoAgent, report)
	if err != nil {
		o.logger.Warn("repository analysis stage not recorded", "session", sid, "error", err)
		return false
	}
	o.setRepoFindings(res.Output)
	return false
}

// recordScan persists the scan outcome and advances the last-scanned commit
// for the monitor's session config. Both are best effort.
func (o *Orchestrator) recordScan(sid string, cs *repomon.ChangeSet, issues []scan.Issue, report string) {
	sev := scan.CountBySeverity(issues)
	if o.jour != nil {
		_, err := o.jour.RecordScanRun(sid, cs.CommitRange, len(cs.ChangedFiles), len(issues),
			sev[scan.SeverityHigh], sev[scan.SeverityMedium], sev[scan.SeverityLow],
			repomon.ChangeSummary(cs))
		if err != nil {
			o.logger.Warn("scan journal write failed", "session", sid, "error", err)
		}
	}
	if o.prov != nil {
		if idx := strings.LastIndex(cs.CommitRange, ".."); idx >= 0 {
			o.prov.UpdateScanCommit(o.monitor.Config().SessionID, cs.CommitRange[idx+2:])
		}
	}
}
