package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for scanner tools.
var recognizedParsers = map[string]bool{
	"eslint":  true,
	"pylint":  true,
	"generic": true,
}

// recognizedApprovalModes is the set of valid approval gating modes.
var recognizedApprovalModes = map[string]bool{
	"all":    true,
	"none":   true,
	"subset": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if len(p.Stages) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.stages", Message: "at least one stage is required"})
	}

	stageIDs := make(map[string]bool)
	for i, s := range p.Stages {
		if s.ID == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.stages[%d].id", i),
				Message: "is required",
			})
			continue
		}
		if stageIDs[s.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.stages[%d].id", i),
				Message: fmt.Sprintf("duplicate stage ID %q", s.ID),
			})
		}
		stageIDs[s.ID] = true

		// Truncation keeps cap-10 words, so tiny caps would truncate to nothing.
		if s.WordCap != 0 && s.WordCap <= 10 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.stages[%d].word_cap", i),
				Message: "must be greater than 10",
			})
		}
	}

	if !recognizedApprovalModes[cfg.Approval.Mode] {
		errs = append(errs, ValidationError{
			Field:   "approval.mode",
			Message: fmt.Sprintf("unknown mode %q (expected all, none, or subset)", cfg.Approval.Mode),
		})
	}
	if cfg.Approval.Mode == "subset" {
		for _, id := range cfg.Approval.Stages {
			if !stageIDs[id] {
				errs = append(errs, ValidationError{
					Field:   "approval.stages",
					Message: fmt.Sprintf("references undefined stage %q", id),
				})
			}
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"monitor.health_interval", cfg.Monitor.HealthInterval},
		{"monitor.repo_interval", cfg.Monitor.RepoInterval},
		{"repository.cleanup_delay", cfg.Repository.CleanupDelay},
		{"pipeline.defaults.timeout", cfg.Pipeline.Defaults.Timeout},
		{"generator.timeout", cfg.Generator.Timeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, ValidationError{
				Field:   field.name,
				Message: fmt.Sprintf("invalid duration %q", field.value),
			})
		}
	}

	for name, tool := range cfg.Repository.Tools {
		prefix := fmt.Sprintf("repository.tools.%s", name)
		if tool.Command == "" {
			errs = append(errs, ValidationError{Field: prefix + ".command", Message: "is required"})
		}
		if tool.Parser != "" && !recognizedParsers[tool.Parser] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".parser",
				Message: fmt.Sprintf("unknown parser %q", tool.Parser),
			})
		}
		if len(tool.Extensions) == 0 {
			errs = append(errs, ValidationError{Field: prefix + ".extensions", Message: "at least one extension is required"})
		}
	}

	if cfg.Repository.MaxSessions < 0 {
		errs = append(errs, ValidationError{Field: "repository.max_sessions", Message: "must not be negative"})
	}

	return errs
}
