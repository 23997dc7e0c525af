package repomon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasnoah/explainforge/internal/provision"
	"github.com/lucasnoah/explainforge/internal/scan"
)

// mockGit answers git invocations from a canned response table keyed by the
// joined argument string. Unlisted invocations succeed with empty output.
type mockGit struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func newMockGit() *mockGit {
	return &mockGit{responses: make(map[string]string), errs: make(map[string]error)}
}

func (m *mockGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	m.calls = append(m.calls, key)
	if err, ok := m.errs[key]; ok {
		return "", err
	}
	return m.responses[key], nil
}

func (m *mockGit) called(key string) bool {
	for _, c := range m.calls {
		if c == key {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) provision.RepoConfig {
	return provision.RepoConfig{
		SessionID: "s1",
		RepoURL:   "https://example.com/org/app.git",
		Branch:    "main",
		RepoPath:  filepath.Join(t.TempDir(), "repo-s1"),
	}
}

func newTestMonitor(git GitRunner) *Monitor {
	runner := scan.NewRunner(&scan.ExecRunner{})
	scanner := scan.NewScanner(runner, nil, nil, 3, nil)
	return NewMonitor(git, scanner, nil, nil)
}

func TestConnectRequiresURL(t *testing.T) {
	m := newTestMonitor(newMockGit())
	err := m.Connect(context.Background(), provision.RepoConfig{RepoPath: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "URL is required") {
		t.Fatalf("expected URL error, got %v", err)
	}
	if m.State() != StateDisconnected {
		t.Error("failed connect must leave monitor disconnected")
	}
}

func TestConnectFailsFastOnUnsafePath(t *testing.T) {
	verify := func(path string) error {
		return fmt.Errorf("path %s: %w", path, provision.ErrUnsafePath)
	}
	m := NewMonitor(newMockGit(), nil, verify, nil)

	err := m.Connect(context.Background(), testConfig(t))
	if !errors.Is(err, provision.ErrUnsafePath) {
		t.Fatalf("expected safety violation, got %v", err)
	}
}

func TestConnectClonesFreshDirectory(t *testing.T) {
	git := newMockGit()
	// rev-parse --git-dir fails → not a repo yet
	git.errs["rev-parse --git-dir"] = errors.New("not a git repo")
	m := newTestMonitor(git)
	cfg := testConfig(t)

	if err := m.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("connect: %v", err)
	}
	want := "clone --branch main " + cfg.RepoURL + " " + cfg.RepoPath
	if !git.called(want) {
		t.Errorf("expected %q, calls: %v", want, git.calls)
	}
	if m.State() != StateIdle {
		t.Errorf("expected idle after connect, got %s", m.State())
	}
}

func TestConnectResetsExistingClone(t *testing.T) {
	git := newMockGit()
	m := newTestMonitor(git)

	if err := m.Connect(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !git.called("reset --hard") || !git.called("checkout main") {
		t.Errorf("expected reset+checkout for existing clone, calls: %v", git.calls)
	}
	for _, c := range git.calls {
		if strings.HasPrefix(c, "clone") {
			t.Error("existing clone must not be re-cloned")
		}
	}
}

func TestConnectEmbedsCredentials(t *testing.T) {
	git := newMockGit()
	git.errs["rev-parse --git-dir"] = errors.New("not a repo")
	m := newTestMonitor(git)

	cfg := testConfig(t)
	cfg.Username = "bot"
	cfg.Token = "tok123"
	if err := m.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var cloned bool
	for _, c := range git.calls {
		if strings.HasPrefix(c, "clone") && strings.Contains(c, "bot:tok123@example.com") {
			cloned = true
		}
	}
	if !cloned {
		t.Errorf("expected credentialed clone URL, calls: %v", git.calls)
	}
}

func TestCheckForChangesFirstRunIsAlwaysBaseline(t *testing.T) {
	git := newMockGit()
	// local == remote: no new commits since clone
	git.responses["rev-parse HEAD"] = "aaa111"
	git.responses["rev-parse origin/main"] = "aaa111"
	git.responses["ls-files"] = "main.go\nlib/util.py\n"
	m := newTestMonitor(git)
	if err := m.Connect(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}

	cs, err := m.CheckForChanges(context.Background(), true)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !cs.HasChanges {
		t.Fatal("first run must always report changes")
	}
	if len(cs.ChangedFiles) != 2 {
		t.Errorf("expected full tracked-file baseline, got %v", cs.ChangedFiles)
	}
	if !strings.HasPrefix(cs.CommitRange, "baseline..") {
		t.Errorf("expected baseline range, got %q", cs.CommitRange)
	}
}

func TestCheckForChangesNoNewCommits(t *testing.T) {
	git := newMockGit()
	git.responses["rev-parse HEAD"] = "aaa111"
	git.responses["rev-parse origin/main"] = "aaa111"
	m := newTestMonitor(git)
	if err := m.Connect(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}

	cs, err := m.CheckForChanges(context.Background(), false)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if cs.HasChanges {
		t.Error("identical heads must report no changes")
	}
}

func TestCheckForChangesCommitRangeDiff(t *testing.T) {
	git := newMockGit()
	git.responses["rev-parse HEAD"] = "aaa111"
	git.responses["rev-parse origin/main"] = "bbb222"
	git.responses["log --oneline aaa111..bbb222"] = "bbb222 fix thing\nabc000 add thing"
	git.responses["diff --name-only aaa111 bbb222"] = "src/app.js\nREADME.md"
	m := newTestMonitor(git)
	if err := m.Connect(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}

	cs, err := m.CheckForChanges(context.Background(), false)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !cs.HasChanges {
		t.Fatal("diverged heads must report changes")
	}
	if len(cs.Commits) != 2 || len(cs.ChangedFiles) != 2 {
		t.Errorf("unexpected change set: %+v", cs)
	}
	if cs.CommitRange != "aaa111..bbb222" {
		t.Errorf("unexpected commit range %q", cs.CommitRange)
	}
	if !git.called("reset --hard origin/main") {
		t.Error("working copy must advance to the remote head")
	}
}

func TestCheckForChangesFetchFailureAborts(t *testing.T) {
	git := newMockGit()
	git.errs["fetch origin main"] = errors.New("network down")
	m := newTestMonitor(git)
	if err := m.Connect(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, err := m.CheckForChanges(context.Background(), false)
	if err == nil || !strings.Contains(err.Error(), "fetch") {
		t.Fatalf("expected fetch error, got %v", err)
	}
	// monitor stays usable for the next poll tick
	if m.State() != StateIdle {
		t.Errorf("expected idle after failed poll, got %s", m.State())
	}
}

func TestCheckForChangesRequiresConnection(t *testing.T) {
	m := newTestMonitor(newMockGit())
	if _, err := m.CheckForChanges(context.Background(), true); err == nil {
		t.Fatal("expected error when disconnected")
	}
}

func TestChangeSummaryAndReport(t *testing.T) {
	cs := &ChangeSet{
		HasChanges:   true,
		Commits:      []string{"bbb222 fix thing"},
		ChangedFiles: []string{"a.py"},
		CommitRange:  "aaa..bbb",
	}
	if got := ChangeSummary(cs); !strings.Contains(got, "1 new commits") {
		t.Errorf("unexpected summary %q", got)
	}

	issues := []scan.Issue{{
		File: "a.py", Line: 3, Severity: scan.SeverityHigh,
		Category: scan.CategorySecurity, Message: "hardcoded password", Tool: "pattern",
	}}
	report := FormatReport(cs, issues)
	for _, want := range []string{"aaa..bbb", "a.py:3", "high/security", "hardcoded password"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	if got := FormatReport(cs, nil); !strings.Contains(got, "No issues found") {
		t.Errorf("expected empty-issues note, got %q", got)
	}
}
