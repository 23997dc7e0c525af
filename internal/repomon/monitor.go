package repomon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lucasnoah/explainforge/internal/provision"
	"github.com/lucasnoah/explainforge/internal/scan"
)

// State describes where the monitor is in its lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateIdle         State = "idle"
	StateScanning     State = "scanning"
)

// ChangeSet is the result of one change-detection pass.
type ChangeSet struct {
	HasChanges   bool     `json:"has_changes"`
	Commits      []string `json:"commits,omitempty"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	CommitRange  string   `json:"commit_range,omitempty"`
}

// PathVerifier re-checks the sandbox invariant before filesystem operations.
type PathVerifier func(path string) error

// Monitor owns a single working-copy clone per session. It connects and
// initializes the clone, detects new remote commits, and hands changed files
// to the multi-strategy scanner. Local mutations are always discardable
// scratch; the remote is never written.
type Monitor struct {
	git     GitRunner
	scanner *scan.Scanner
	verify  PathVerifier
	logger  *slog.Logger

	mu    sync.Mutex
	cfg   provision.RepoConfig
	state State
}

// NewMonitor creates a disconnected Monitor.
func NewMonitor(git GitRunner, scanner *scan.Scanner, verify PathVerifier, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{git: git, scanner: scanner, verify: verify, logger: logger, state: StateDisconnected}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the connected repository config.
func (m *Monitor) Config() provision.RepoConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Connect validates the config, provisions the working copy, and leaves the
// monitor idle on the target branch. An existing clone is hard-reset and
// checked out; a missing one is cloned. A path-safety violation fails fast
// and is never silently corrected.
func (m *Monitor) Connect(ctx context.Context, cfg provision.RepoConfig) error {
	if cfg.RepoURL == "" {
		return fmt.Errorf("repository URL is required")
	}
	if cfg.RepoPath == "" {
		return fmt.Errorf("repository path is not derived")
	}
	if m.verify != nil {
		if err := m.verify(cfg.RepoPath); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.RepoPath, 0o755); err != nil {
		return fmt.Errorf("create repository dir: %w", err)
	}

	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}

	if m.isRepo(ctx, cfg.RepoPath) {
		// Scratch clone: discard any local mutation, then move to the branch.
		if _, err := m.git.Run(ctx, cfg.RepoPath, "reset", "--hard"); err != nil {
			return fmt.Errorf("reset working copy: %w", err)
		}
		if _, err := m.git.Run(ctx, cfg.RepoPath, "checkout", branch); err != nil {
			return fmt.Errorf("checkout %s: %w", branch, err)
		}
	} else {
		remote := authURL(cfg.RepoURL, cfg.Username, cfg.Token)
		if _, err := m.git.Run(ctx, "", "clone", "--branch", branch, remote, cfg.RepoPath); err != nil {
			return fmt.Errorf("clone %s: %w", cfg.RepoURL, err)
		}
	}

	m.mu.Lock()
	m.cfg = cfg
	m.state = StateIdle
	m.mu.Unlock()
	m.logger.Info("repository connected", "url", cfg.RepoURL, "branch", branch, "session", cfg.SessionID)
	return nil
}

// Disconnect drops the connection state. The working copy itself is owned by
// the provisioner's cleanup.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = provision.RepoConfig{}
	m.state = StateDisconnected
}

// CheckForChanges fetches the remote and compares heads. The first run
// always reports changes with the full tracked-file set as baseline, even
// when the remote has nothing new; later runs report a commit-range diff.
func (m *Monitor) CheckForChanges(ctx context.Context, firstRun bool) (*ChangeSet, error) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil, fmt.Errorf("monitor is not connected")
	}
	cfg := m.cfg
	m.mu.Unlock()

	if m.verify != nil {
		if err := m.verify(cfg.RepoPath); err != nil {
			return nil, err
		}
	}

	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}

	if _, err := m.git.Run(ctx, cfg.RepoPath, "fetch", "origin", branch); err != nil {
		return nil, fmt.Errorf("fetch origin %s: %w", branch, err)
	}

	local, err := m.git.Run(ctx, cfg.RepoPath, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve local HEAD: %w", err)
	}
	remote, err := m.git.Run(ctx, cfg.RepoPath, "rev-parse", "origin/"+branch)
	if err != nil {
		return nil, fmt.Errorf("resolve remote HEAD: %w", err)
	}

	if firstRun {
		// Baseline scan: the whole tracked tree, regardless of new commits.
		// Treating the first run as incremental would silently skip every
		// pre-existing issue in a freshly connected repository.
		if local != remote {
			if _, err := m.git.Run(ctx, cfg.RepoPath, "reset", "--hard", "origin/"+branch); err != nil {
				return nil, fmt.Errorf("advance to remote: %w", err)
			}
		}
		files, err := m.git.Run(ctx, cfg.RepoPath, "ls-files")
		if err != nil {
			return nil, fmt.Errorf("list tracked files: %w", err)
		}
		return &ChangeSet{
			HasChanges:   true,
			ChangedFiles: splitLines(files),
			CommitRange:  "baseline.." + short(remote),
		}, nil
	}

	if local == remote {
		return &ChangeSet{HasChanges: false}, nil
	}

	commitRange := local + ".." + remote
	log, err := m.git.Run(ctx, cfg.RepoPath, "log", "--oneline", commitRange)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", commitRange, err)
	}
	files, err := m.git.Run(ctx, cfg.RepoPath, "diff", "--name-only", local, remote)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", commitRange, err)
	}
	if _, err := m.git.Run(ctx, cfg.RepoPath, "reset", "--hard", "origin/"+branch); err != nil {
		return nil, fmt.Errorf("advance to remote: %w", err)
	}

	return &ChangeSet{
		HasChanges:   true,
		Commits:      splitLines(log),
		ChangedFiles: splitLines(files),
		CommitRange:  short(local) + ".." + short(remote),
	}, nil
}

// Scan runs the multi-strategy scan over the changed files.
func (m *Monitor) Scan(ctx context.Context, files []string) []scan.Issue {
	m.mu.Lock()
	cfg := m.cfg
	m.state = StateScanning
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.state == StateScanning {
			m.state = StateIdle
		}
		m.mu.Unlock()
	}()

	return m.scanner.Scan(ctx, cfg.RepoPath, files)
}

// isRepo reports whether the path already holds a git working copy.
func (m *Monitor) isRepo(ctx context.Context, path string) bool {
	_, err := m.git.Run(ctx, path, "rev-parse", "--git-dir")
	return err == nil
}

func splitLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
