package journal

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// WorkflowEvent represents a row in the workflow_events table.
type WorkflowEvent struct {
	ID        int
	SessionID string
	Event     string
	Stage     string
	Detail    string
	Timestamp string
}

// StageRun represents a row in the stage_runs table.
type StageRun struct {
	ID         int
	SessionID  string
	Stage      string
	Success    bool
	Edited     bool
	DurationMs int
	Summary    string
	Timestamp  string
}

// ScanRun represents a row in the scan_runs table.
type ScanRun struct {
	ID           string
	SessionID    string
	CommitRange  string
	FilesChanged int
	IssueCount   int
	HighCount    int
	MediumCount  int
	LowCount     int
	Summary      string
	Timestamp    string
}

// LogWorkflowEvent inserts a workflow event.
func (d *DB) LogWorkflowEvent(sessionID, event, stage, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO workflow_events (session_id, event, stage, detail) VALUES (?, ?, ?, ?)`,
		sessionID, event, stage, detail,
	)
	if err != nil {
		return fmt.Errorf("log workflow event: %w", err)
	}
	return nil
}

// LogStageRun inserts a stage run record.
func (d *DB) LogStageRun(sessionID, stage string, success, edited bool, durationMs int, summary string) error {
	_, err := d.conn.Exec(
		`INSERT INTO stage_runs (session_id, stage, success, edited, duration_ms, summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, stage, success, edited, durationMs, summary,
	)
	if err != nil {
		return fmt.Errorf("log stage run: %w", err)
	}
	return nil
}

// RecordScanRun inserts a repository scan record and returns its id.
func (d *DB) RecordScanRun(sessionID, commitRange string, filesChanged, issueCount, high, medium, low int, summary string) (string, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	_, err := d.conn.Exec(
		`INSERT INTO scan_runs (id, session_id, commit_range, files_changed, issue_count, high_count, medium_count, low_count, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, commitRange, filesChanged, issueCount, high, medium, low, summary,
	)
	if err != nil {
		return "", fmt.Errorf("record scan run: %w", err)
	}
	return id, nil
}

// WorkflowHistory returns all workflow events for a session, newest first.
func (d *DB) WorkflowHistory(sessionID string) ([]WorkflowEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, event, stage, detail, timestamp
		 FROM workflow_events WHERE session_id = ? ORDER BY timestamp DESC, id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get workflow history: %w", err)
	}
	defer rows.Close()

	var events []WorkflowEvent
	for rows.Next() {
		var e WorkflowEvent
		var stage, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &stage, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		if stage.Valid {
			e.Stage = stage.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentEvents returns the most recent workflow events across all sessions.
func (d *DB) RecentEvents(limit int) ([]WorkflowEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, event, stage, detail, timestamp
		 FROM workflow_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	defer rows.Close()

	var events []WorkflowEvent
	for rows.Next() {
		var e WorkflowEvent
		var stage, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &stage, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		if stage.Valid {
			e.Stage = stage.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// StageHistory returns all stage runs for a session in execution order.
func (d *DB) StageHistory(sessionID string) ([]StageRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, stage, success, edited, duration_ms, summary, timestamp
		 FROM stage_runs WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage history: %w", err)
	}
	defer rows.Close()

	var runs []StageRun
	for rows.Next() {
		var r StageRun
		var durationMs sql.NullInt64
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Stage, &r.Success, &r.Edited, &durationMs, &summary, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if durationMs.Valid {
			r.DurationMs = int(durationMs.Int64)
		}
		if summary.Valid {
			r.Summary = summary.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecentScanRuns returns the most recent scan runs for a session.
func (d *DB) RecentScanRuns(sessionID string, limit int) ([]ScanRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, commit_range, files_changed, issue_count, high_count, medium_count, low_count, summary, timestamp
		 FROM scan_runs WHERE session_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent scan runs: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var r ScanRun
		var commitRange, summary sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &commitRange, &r.FilesChanged, &r.IssueCount, &r.HighCount, &r.MediumCount, &r.LowCount, &summary, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan scan run: %w", err)
		}
		if commitRange.Valid {
			r.CommitRange = commitRange.String
		}
		if summary.Valid {
			r.Summary = summary.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastScanRun returns the most recent scan run for a session, or nil if none.
func (d *DB) LastScanRun(sessionID string) (*ScanRun, error) {
	runs, err := d.RecentScanRuns(sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
