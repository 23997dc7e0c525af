package scan

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// ToolUnavailableError marks a named external tool as missing. The scan
// degrades to the remaining strategies; it never surfaces as a user failure.
type ToolUnavailableError struct {
	Tool string
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("scanner tool %q not available", e.Tool)
}

// ToolConfig describes one external scanner.
type ToolConfig struct {
	Name       string
	Command    string
	Parser     string
	Extensions []string
	Timeout    time.Duration
}

// Matches reports whether the tool applies to the given file path.
func (t ToolConfig) Matches(file string) bool {
	for _, ext := range t.Extensions {
		if strings.HasSuffix(file, ext) {
			return true
		}
	}
	return false
}

// Runner executes external scanner tools and parses their output into issues.
type Runner struct {
	cmd     CommandRunner
	parsers map[string]Parser
	look    func(string) (string, error)
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	r := &Runner{
		cmd:     cmd,
		parsers: make(map[string]Parser),
		look:    exec.LookPath,
	}
	r.parsers["eslint"] = &ESLintParser{}
	r.parsers["pylint"] = &PylintParser{}
	r.parsers["generic"] = &GenericParser{}
	return r
}

// SetLookPath overrides binary resolution (for testing).
func (r *Runner) SetLookPath(fn func(string) (string, error)) {
	r.look = fn
}

// RunTool executes one tool against one file and parses its findings.
// A missing binary returns ToolUnavailableError so the caller can degrade.
func (r *Runner) RunTool(ctx context.Context, dir string, file string, cfg ToolConfig) ([]Issue, error) {
	binary := firstWord(cfg.Command)
	if binary == "" {
		return nil, fmt.Errorf("tool %q has no command", cfg.Name)
	}
	if _, err := r.look(binary); err != nil {
		return nil, &ToolUnavailableError{Tool: cfg.Name}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := fmt.Sprintf("%s %q", cfg.Command, file)
	stdout, stderr, exitCode, err := r.cmd.Run(runCtx, dir, command)
	if err != nil {
		return nil, fmt.Errorf("run tool %q: %w", cfg.Name, err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("tool %q timed out after %s", cfg.Name, timeout)
	}

	parser, ok := r.parsers[cfg.Parser]
	if !ok {
		parser = r.parsers["generic"]
	}

	issues := parser.Parse(file, stdout, stderr, exitCode)
	for i := range issues {
		issues[i].Tool = cfg.Name
	}
	return issues, nil
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
