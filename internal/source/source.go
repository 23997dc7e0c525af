package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Item is one piece of input material for an analysis run.
type Item struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Fetcher retrieves input items of a given kind. Implementations talk to an
// external collaborator; Static and Dir cover local runs and tests.
type Fetcher interface {
	FetchItems(ctx context.Context, kind string, maxResults int) ([]Item, error)
}

// Static serves a fixed in-memory item set.
type Static struct {
	items []Item
}

// NewStatic creates a Static fetcher over the given items.
func NewStatic(items []Item) *Static {
	return &Static{items: items}
}

// FetchItems returns up to maxResults items of the given kind, in input order.
func (s *Static) FetchItems(ctx context.Context, kind string, maxResults int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range s.items {
		if kind != "" && it.Kind != kind {
			continue
		}
		out = append(out, it)
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

// Dir reads items from <root>/<kind>/*.md on the given filesystem. The file
// name (without extension) is the item id; the first markdown heading, if
// present, becomes the title.
type Dir struct {
	fs   afero.Fs
	root string
}

// NewDir creates a Dir fetcher rooted at the given directory.
func NewDir(fs afero.Fs, root string) *Dir {
	return &Dir{fs: fs, root: root}
}

func (d *Dir) FetchItems(ctx context.Context, kind string, maxResults int) ([]Item, error) {
	if kind == "" {
		return nil, fmt.Errorf("item kind is required")
	}
	dir := filepath.Join(d.root, kind)
	entries, err := afero.ReadDir(d.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []Item
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := afero.ReadFile(d.fs, filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read item %s: %w", name, err)
		}
		content := string(data)
		out = append(out, Item{
			ID:      strings.TrimSuffix(name, ".md"),
			Kind:    kind,
			Title:   firstHeading(content),
			Content: content,
		})
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

// firstHeading returns the text of the first markdown heading, or "".
func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}

// Combine joins fetched items into one pipeline input document.
func Combine(items []Item) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if it.Title != "" {
			fmt.Fprintf(&b, "# %s\n\n", it.Title)
		}
		b.WriteString(strings.TrimSpace(it.Content))
	}
	return b.String()
}

// Samples returns a small built-in corpus for local one-shot runs.
func Samples() []Item {
	return []Item{
		{
			ID:    "raft-overview",
			Kind:  "article",
			Title: "Consensus in Distributed Systems",
			Content: "# Consensus in Distributed Systems\n\n" +
				"Raft elects a leader which replicates a log to followers. " +
				"An entry is committed once a majority of nodes have stored it.",
		},
		{
			ID:    "gc-notes",
			Kind:  "notes",
			Title: "Garbage Collection Notes",
			Content: "# Garbage Collection Notes\n\n" +
				"Tracing collectors find live objects by walking references " +
				"from roots; everything unreached is reclaimed.",
		},
	}
}
