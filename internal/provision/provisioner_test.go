package provision

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(t *testing.T, max int) (*Provisioner, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	p, err := New(fs, "/var/forge/repos", "/opt/explainforge/src", RepoConfig{
		RepoURL: "https://example.com/default.git",
		Branch:  "main",
	}, max, 0, slog.Default())
	require.NoError(t, err)
	return p, fs
}

func TestRootInsideAppRootAbortsStartup(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := New(fs, "/opt/explainforge/src/repos", "/opt/explainforge/src", RepoConfig{}, 5, 0, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsafePath))
}

func TestRepoPathStaysInsideRoot(t *testing.T) {
	p, _ := newTestProvisioner(t, 5)

	cases := []string{
		"session-1",
		"../../etc/passwd",
		"../../../opt/explainforge/src",
		"..",
		"a/b/c",
		"weird id with spaces",
	}
	for _, id := range cases {
		path, err := p.RepoPath(id)
		require.NoError(t, err, "id %q", id)
		assert.True(t, strings.HasPrefix(path, "/var/forge/repos/"), "id %q derived %q", id, path)
		assert.False(t, strings.Contains(path, ".."), "id %q derived %q", id, path)
		assert.False(t, strings.HasPrefix(path, "/opt/explainforge/src"), "id %q derived %q", id, path)
	}
}

func TestRepoPathRejectsUnsanitizableID(t *testing.T) {
	p, _ := newTestProvisioner(t, 5)
	_, err := p.RepoPath("///")
	require.Error(t, err)
}

func TestGetConfigReturnsDefaultsCopy(t *testing.T) {
	p, _ := newTestProvisioner(t, 5)

	cfg := p.GetConfig("unknown-session")
	assert.Equal(t, DefaultSessionID, cfg.SessionID)
	assert.Equal(t, "https://example.com/default.git", cfg.RepoURL)
	assert.Empty(t, cfg.Username)
	assert.Empty(t, cfg.Token)

	// mutating the returned value must not leak into the provisioner
	cfg.RepoURL = "tampered"
	assert.Equal(t, "https://example.com/default.git", p.GetConfig("unknown-session").RepoURL)
}

func TestSetConfigMergesAndDerivesPath(t *testing.T) {
	p, _ := newTestProvisioner(t, 5)

	cfg, err := p.SetConfig("s1", Overrides{RepoURL: "https://example.com/org/app.git", Username: "bot"})
	require.NoError(t, err)
	assert.Equal(t, "s1", cfg.SessionID)
	assert.Equal(t, "https://example.com/org/app.git", cfg.RepoURL)
	assert.Equal(t, "main", cfg.Branch, "default branch kept")
	assert.Equal(t, "/var/forge/repos/repo-s1", cfg.RepoPath)

	// second set keeps createdAt, merges only what's given
	created := cfg.CreatedAt
	cfg2, err := p.SetConfig("s1", Overrides{Branch: "develop"})
	require.NoError(t, err)
	assert.Equal(t, "develop", cfg2.Branch)
	assert.Equal(t, "https://example.com/org/app.git", cfg2.RepoURL)
	assert.Equal(t, created, cfg2.CreatedAt)
}

func TestCapacityEvictsOldest(t *testing.T) {
	p, _ := newTestProvisioner(t, 2)

	_, err := p.SetConfig("oldest", Overrides{})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = p.SetConfig("middle", Overrides{})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = p.SetConfig("newest", Overrides{})
	require.NoError(t, err)

	ids := p.Sessions()
	require.Len(t, ids, 2)
	assert.Equal(t, []string{"middle", "newest"}, ids)

	// evicted session falls back to defaults
	assert.Equal(t, DefaultSessionID, p.GetConfig("oldest").SessionID)
}

func TestEvictionDeletesDirectory(t *testing.T) {
	p, fs := newTestProvisioner(t, 1)

	cfg, err := p.SetConfig("victim", Overrides{})
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(cfg.RepoPath, 0o755))

	_, err = p.SetConfig("survivor", Overrides{})
	require.NoError(t, err)
	p.WaitDeletions()

	exists, _ := afero.DirExists(fs, cfg.RepoPath)
	assert.False(t, exists, "evicted directory should be removed")
}

func TestClearConfigSchedulesDeletion(t *testing.T) {
	p, fs := newTestProvisioner(t, 5)

	cfg, err := p.SetConfig("s1", Overrides{})
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(cfg.RepoPath, 0o755))

	p.ClearConfig("s1")

	// config entry is gone immediately
	assert.Equal(t, DefaultSessionID, p.GetConfig("s1").SessionID)

	p.WaitDeletions()
	exists, _ := afero.DirExists(fs, cfg.RepoPath)
	assert.False(t, exists)
}

func TestClearUnknownSessionIsNoop(t *testing.T) {
	p, _ := newTestProvisioner(t, 5)
	p.ClearConfig("never-existed")
	p.WaitDeletions()
}

func TestUpdateScanCommit(t *testing.T) {
	p, _ := newTestProvisioner(t, 5)
	_, err := p.SetConfig("s1", Overrides{})
	require.NoError(t, err)

	p.UpdateScanCommit("s1", "abc123")
	assert.Equal(t, "abc123", p.GetConfig("s1").LastScanCommit)
}
