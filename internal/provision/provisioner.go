package provision

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ErrUnsafePath is returned when a derived repository path would escape the
// repositories root or land inside the host application's own source tree.
// It signals a configuration defect and must never be caught and ignored.
var ErrUnsafePath = errors.New("repository path violates sandbox invariant")

// DefaultSessionID is the session id carried by the defaults config.
const DefaultSessionID = "default"

// RepoConfig is the per-session repository configuration. RepoPath is always
// derived from the session id; caller-supplied paths are never trusted.
type RepoConfig struct {
	SessionID      string    `json:"session_id"`
	RepoURL        string    `json:"repo_url"`
	Branch         string    `json:"branch"`
	Username       string    `json:"username,omitempty"`
	Token          string    `json:"token,omitempty"`
	RepoPath       string    `json:"repo_path"`
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
	LastScanCommit string    `json:"last_scan_commit,omitempty"`
}

// Overrides are the caller-settable fields merged onto an existing-or-default
// config. Empty fields keep the current value.
type Overrides struct {
	RepoURL  string
	Branch   string
	Username string
	Token    string
}

// Provisioner maps session ids to isolated repository directories under a
// dedicated root, caps the number of concurrently provisioned sessions, and
// schedules delayed directory deletion on teardown.
type Provisioner struct {
	fs       afero.Fs
	root     string
	appRoot  string
	defaults RepoConfig
	max      int
	delay    time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	configs map[string]*RepoConfig

	deletions sync.WaitGroup
}

// New creates a Provisioner. root is the repositories root; appRoot is the
// host application's source root, which no derived path may fall inside.
// A root that itself violates the sandbox invariant aborts startup.
func New(fs afero.Fs, root string, appRoot string, defaults RepoConfig, max int, delay time.Duration, logger *slog.Logger) (*Provisioner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root = filepath.Clean(root)
	appRoot = filepath.Clean(appRoot)
	if appRoot != "" && insideTree(appRoot, root) {
		return nil, fmt.Errorf("repositories root %s is inside application root %s: %w", root, appRoot, ErrUnsafePath)
	}
	if max <= 0 {
		max = 5
	}
	defaults.SessionID = DefaultSessionID
	defaults.Username = ""
	defaults.Token = ""
	return &Provisioner{
		fs:       fs,
		root:     root,
		appRoot:  appRoot,
		defaults: defaults,
		max:      max,
		delay:    delay,
		logger:   logger,
		configs:  make(map[string]*RepoConfig),
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// RepoPath derives the isolated directory for a session id. Adversarial ids
// ("../../", absolute paths) are flattened by sanitization, and the result is
// re-verified against the sandbox invariant before being returned.
func (p *Provisioner) RepoPath(sessionID string) (string, error) {
	id := unsafeChars.ReplaceAllString(sessionID, "-")
	id = strings.Trim(id, "-")
	if id == "" {
		return "", fmt.Errorf("session id %q sanitizes to nothing", sessionID)
	}
	if len(id) > 64 {
		id = id[:64]
	}
	path := filepath.Join(p.root, "repo-"+id)
	if err := p.verify(path); err != nil {
		return "", err
	}
	return path, nil
}

// VerifyPath enforces the sandbox invariant on a path for callers that hold
// a derived path across operations (the repository monitor re-checks before
// every filesystem operation).
func (p *Provisioner) VerifyPath(path string) error {
	return p.verify(path)
}

// verify enforces the sandbox invariant on a path. It is called before every
// filesystem operation, not just at derivation time.
func (p *Provisioner) verify(path string) error {
	path = filepath.Clean(path)
	if !insideTree(p.root, path) {
		return fmt.Errorf("path %s escapes repositories root %s: %w", path, p.root, ErrUnsafePath)
	}
	if p.appRoot != "" && insideTree(p.appRoot, path) {
		return fmt.Errorf("path %s resolves inside application root %s: %w", path, p.appRoot, ErrUnsafePath)
	}
	return nil
}

// insideTree reports whether path is root itself or a descendant of root.
func insideTree(root string, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// GetConfig returns the session-specific config if present, else a copy of
// the defaults (no credentials).
func (p *Provisioner) GetConfig(sessionID string) RepoConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg, ok := p.configs[sessionID]; ok {
		return *cfg
	}
	return p.defaults
}

// SetConfig merges overrides onto the existing-or-default config for the
// session, recomputing RepoPath from the session id. When the session cap is
// exceeded the single oldest-created config is evicted and its directory
// scheduled for deletion before the new one is admitted.
func (p *Provisioner) SetConfig(sessionID string, ov Overrides) (RepoConfig, error) {
	path, err := p.RepoPath(sessionID)
	if err != nil {
		return RepoConfig{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	cfg, exists := p.configs[sessionID]
	if !exists {
		base := p.defaults
		base.SessionID = sessionID
		base.CreatedAt = now
		cfg = &base
	}

	if ov.RepoURL != "" {
		cfg.RepoURL = ov.RepoURL
	}
	if ov.Branch != "" {
		cfg.Branch = ov.Branch
	}
	if ov.Username != "" {
		cfg.Username = ov.Username
	}
	if ov.Token != "" {
		cfg.Token = ov.Token
	}
	cfg.RepoPath = path
	cfg.LastModified = now

	if !exists {
		if len(p.configs) >= p.max {
			p.evictOldestLocked()
		}
		p.configs[sessionID] = cfg
	}
	return *cfg, nil
}

// UpdateScanCommit records the commit a scan last ran against.
func (p *Provisioner) UpdateScanCommit(sessionID string, commit string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg, ok := p.configs[sessionID]; ok {
		cfg.LastScanCommit = commit
		cfg.LastModified = time.Now().UTC()
	}
}

// ClearConfig removes the config entry immediately and schedules the
// directory removal after the configured delay, off the request path.
func (p *Provisioner) ClearConfig(sessionID string) {
	p.mu.Lock()
	cfg, ok := p.configs[sessionID]
	if ok {
		delete(p.configs, sessionID)
	}
	p.mu.Unlock()
	if ok && cfg.RepoPath != "" {
		p.scheduleDelete(cfg.RepoPath)
	}
}

// Sessions returns the provisioned session ids, oldest first.
func (p *Provisioner) Sessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.configs))
	for id := range p.configs {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if p.configs[ids[j]].CreatedAt.Before(p.configs[ids[i]].CreatedAt) {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return ids
}

// evictOldestLocked drops the oldest-created config and schedules its
// directory for deletion. Caller must hold p.mu.
func (p *Provisioner) evictOldestLocked() {
	var oldest *RepoConfig
	for _, cfg := range p.configs {
		if oldest == nil || cfg.CreatedAt.Before(oldest.CreatedAt) {
			oldest = cfg
		}
	}
	if oldest == nil {
		return
	}
	p.logger.Info("evicting oldest repository session",
		"session", oldest.SessionID, "created_at", oldest.CreatedAt)
	delete(p.configs, oldest.SessionID)
	if oldest.RepoPath != "" {
		p.scheduleDelete(oldest.RepoPath)
	}
}

// scheduleDelete removes a directory after the cleanup delay. Deletion is
// always deferred and asynchronous; failures are logged, not escalated.
func (p *Provisioner) scheduleDelete(path string) {
	if err := p.verify(path); err != nil {
		p.logger.Error("refusing to delete unsafe path", "path", path, "error", err)
		return
	}
	p.deletions.Add(1)
	go func() {
		defer p.deletions.Done()
		time.Sleep(p.delay)
		if err := p.fs.RemoveAll(path); err != nil {
			p.logger.Warn("repository cleanup failed", "path", path, "error", err)
		}
	}()
}

// WaitDeletions blocks until all scheduled deletions have run. Used by tests
// and graceful shutdown.
func (p *Provisioner) WaitDeletions() {
	p.deletions.Wait()
}
