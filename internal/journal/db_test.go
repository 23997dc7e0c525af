package journal

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Verify all tables exist
	tables := []string{"schema_version", "workflow_events", "stage_runs", "scan_runs"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	// Migrate again should be idempotent
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestWorkflowEvents(t *testing.T) {
	d := testDB(t)

	events := []struct {
		event, stage, detail string
	}{
		{"workflowStarted", "", ""},
		{"stageCompleted", "contentAnalysis", "ok"},
		{"approvalRequested", "analogyGeneration", ""},
		{"workflowCompleted", "", ""},
	}
	for _, e := range events {
		if err := d.LogWorkflowEvent("s1", e.event, e.stage, e.detail); err != nil {
			t.Fatalf("log %s: %v", e.event, err)
		}
	}
	if err := d.LogWorkflowEvent("s2", "workflowStarted", "", ""); err != nil {
		t.Fatalf("log other session: %v", err)
	}

	history, err := d.WorkflowHistory("s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 events, got %d", len(history))
	}
	// Newest first
	if history[0].Event != "workflowCompleted" {
		t.Errorf("expected workflowCompleted first, got %s", history[0].Event)
	}
	if history[1].Stage != "analogyGeneration" {
		t.Errorf("expected stage analogyGeneration, got %q", history[1].Stage)
	}

	recent, err := d.RecentEvents(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent events, got %d", len(recent))
	}
	if recent[0].SessionID != "s2" {
		t.Errorf("expected s2 event first, got %s", recent[0].SessionID)
	}
}

func TestStageRuns(t *testing.T) {
	d := testDB(t)

	if err := d.LogStageRun("s1", "contentAnalysis", true, false, 1200, "extracted concepts"); err != nil {
		t.Fatalf("log stage run: %v", err)
	}
	if err := d.LogStageRun("s1", "analogyGeneration", true, true, 2400, "edited by reviewer"); err != nil {
		t.Fatalf("log stage run: %v", err)
	}

	runs, err := d.StageHistory("s1")
	if err != nil {
		t.Fatalf("stage history: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Stage != "contentAnalysis" || !runs[0].Success || runs[0].Edited {
		t.Errorf("unexpected first run: %+v", runs[0])
	}
	if !runs[1].Edited {
		t.Errorf("expected second run edited")
	}
	if runs[1].DurationMs != 2400 {
		t.Errorf("expected duration 2400, got %d", runs[1].DurationMs)
	}
}

func TestScanRuns(t *testing.T) {
	d := testDB(t)

	id1, err := d.RecordScanRun("s1", "abc123..def456", 3, 5, 1, 2, 2, "5 issues across 3 files")
	if err != nil {
		t.Fatalf("record scan run: %v", err)
	}
	if id1 == "" {
		t.Fatal("expected non-empty scan run id")
	}
	id2, err := d.RecordScanRun("s1", "def456..aaa111", 1, 0, 0, 0, 0, "no issues")
	if err != nil {
		t.Fatalf("record second scan run: %v", err)
	}
	if id1 == id2 {
		t.Error("scan run ids should be unique")
	}

	runs, err := d.RecentScanRuns("s1", 10)
	if err != nil {
		t.Fatalf("recent scan runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 scan runs, got %d", len(runs))
	}

	last, err := d.LastScanRun("s1")
	if err != nil {
		t.Fatalf("last scan run: %v", err)
	}
	if last == nil {
		t.Fatal("expected a scan run")
	}
	if last.CommitRange != "def456..aaa111" {
		t.Errorf("expected latest range, got %s", last.CommitRange)
	}

	none, err := d.LastScanRun("missing")
	if err != nil {
		t.Fatalf("last scan run for missing session: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown session, got %+v", none)
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)

	if err := d.LogWorkflowEvent("s1", "workflowStarted", "", ""); err != nil {
		t.Fatalf("log event: %v", err)
	}

	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	history, err := d.WorkflowHistory("s1")
	if err != nil {
		t.Fatalf("history after reset: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history after reset, got %d events", len(history))
	}
}
