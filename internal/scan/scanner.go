package scan

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// scanConcurrency bounds how many files are scanned at once.
const scanConcurrency = 4

// Scanner runs the multi-strategy scan: external tools matched by extension,
// the built-in pattern rule set, and context-window extraction.
type Scanner struct {
	runner       *Runner
	tools        []ToolConfig
	rules        []Rule
	contextLines int
	logger       *slog.Logger
}

// NewScanner creates a Scanner. A nil rules slice selects DefaultRules.
func NewScanner(runner *Runner, tools []ToolConfig, rules []Rule, contextLines int, logger *slog.Logger) *Scanner {
	if rules == nil {
		rules = DefaultRules
	}
	if contextLines <= 0 {
		contextLines = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{runner: runner, tools: tools, rules: rules, contextLines: contextLines, logger: logger}
}

// Scan runs every strategy over the changed files and returns a fresh issue
// list in file-then-line order with context windows attached. A failing or
// missing tool is skipped, never fatal; unreadable files are skipped too.
func (s *Scanner) Scan(ctx context.Context, dir string, files []string) []Issue {
	var mu sync.Mutex
	var all []Issue
	contents := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(dir, file))
			if err != nil {
				s.logger.Warn("skipping unreadable file", "file", file, "error", err)
				return nil
			}
			content := string(data)

			issues := PatternScan(file, content, s.rules)
			issues = append(issues, s.runTools(gctx, dir, file)...)

			mu.Lock()
			contents[file] = content
			all = append(all, issues...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sortIssues(all)
	for i := range all {
		all[i].Context = contextWindow(contents[all[i].File], all[i].Line, s.contextLines)
	}
	return all
}

// runTools runs every configured tool whose extensions match the file.
func (s *Scanner) runTools(ctx context.Context, dir string, file string) []Issue {
	var issues []Issue
	for _, tool := range s.tools {
		if !tool.Matches(file) {
			continue
		}
		found, err := s.runner.RunTool(ctx, dir, file, tool)
		if err != nil {
			var unavailable *ToolUnavailableError
			if errors.As(err, &unavailable) {
				s.logger.Debug("scanner tool unavailable, degrading to pattern scan",
					"tool", tool.Name, "file", file)
			} else {
				s.logger.Warn("scanner tool failed, skipping", "tool", tool.Name, "file", file, "error", err)
			}
			continue
		}
		issues = append(issues, found...)
	}
	return issues
}

// sortIssues orders the report by file then line. Severity only annotates.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].File != issues[j].File {
			return issues[i].File < issues[j].File
		}
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		return issues[i].Tool < issues[j].Tool
	})
}

// contextWindow extracts n lines either side of the issue line, marking the
// issue line itself.
func contextWindow(content string, line int, n int) []ContextLine {
	if content == "" || line <= 0 {
		return nil
	}
	lines := strings.Split(content, "\n")
	if line > len(lines) {
		return nil
	}

	start := line - n
	if start < 1 {
		start = 1
	}
	end := line + n
	if end > len(lines) {
		end = len(lines)
	}

	window := make([]ContextLine, 0, end-start+1)
	for i := start; i <= end; i++ {
		window = append(window, ContextLine{
			LineNumber:  i,
			Content:     lines[i-1],
			IsIssueLine: i == line,
		})
	}
	return window
}
