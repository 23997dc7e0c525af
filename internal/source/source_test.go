package source

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_FiltersByKind(t *testing.T) {
	f := NewStatic([]Item{
		{ID: "a", Kind: "article"},
		{ID: "b", Kind: "notes"},
		{ID: "c", Kind: "article"},
	})

	items, err := f.FetchItems(context.Background(), "article", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)
}

func TestStatic_MaxResults(t *testing.T) {
	f := NewStatic(Samples())
	items, err := f.FetchItems(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(nil).FetchItems(ctx, "article", 0)
	assert.Error(t, err)
}

func TestDir_ReadsMarkdownItems(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sources/article/b-second.md", []byte("# Second\n\nbody two"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/sources/article/a-first.md", []byte("# First\n\nbody one"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/sources/article/ignore.txt", []byte("nope"), 0o644))

	items, err := NewDir(fs, "/sources").FetchItems(context.Background(), "article", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Name-sorted, not write-ordered.
	assert.Equal(t, "a-first", items[0].ID)
	assert.Equal(t, "First", items[0].Title)
	assert.Equal(t, "article", items[0].Kind)
	assert.Contains(t, items[0].Content, "body one")
}

func TestDir_MissingKindDir(t *testing.T) {
	_, err := NewDir(afero.NewMemMapFs(), "/sources").FetchItems(context.Background(), "article", 0)
	assert.Error(t, err)
}

func TestDir_KindRequired(t *testing.T) {
	_, err := NewDir(afero.NewMemMapFs(), "/sources").FetchItems(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestCombine(t *testing.T) {
	combined := Combine([]Item{
		{Title: "One", Content: "alpha"},
		{Content: "beta"},
	})
	assert.Contains(t, combined, "# One")
	assert.Contains(t, combined, "alpha")
	assert.Contains(t, combined, "---")
	assert.Contains(t, combined, "beta")
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "Title", firstHeading("intro\n## Title\nbody"))
	assert.Equal(t, "", firstHeading("no headings here"))
}
