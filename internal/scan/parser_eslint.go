package scan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ESLintParser parses ESLint JSON output.
type ESLintParser struct{}

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"` // 1=warning, 2=error
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// securityRules are ESLint rule ids that indicate a security concern rather
// than a code-quality one.
var securityRules = map[string]bool{
	"no-eval":              true,
	"no-implied-eval":      true,
	"no-new-func":          true,
	"no-script-url":        true,
	"security/detect-eval": true,
}

func (p *ESLintParser) Parse(file string, stdout string, stderr string, exitCode int) []Issue {
	var files []eslintFile
	if err := json.Unmarshal([]byte(stdout), &files); err != nil {
		// Tool ran but produced no parseable report; a non-zero exit without
		// JSON is still worth a single finding rather than silence.
		if exitCode == 0 {
			return nil
		}
		return []Issue{{
			File:     file,
			Line:     1,
			Severity: SeverityLow,
			Category: CategoryEnvironmental,
			Message:  fmt.Sprintf("eslint exited %d without parseable output", exitCode),
		}}
	}

	var issues []Issue
	for _, f := range files {
		for _, m := range f.Messages {
			sev := SeverityLow
			if m.Severity == 2 {
				sev = SeverityMedium
			}
			cat := CategoryEnvironmental
			if securityRules[m.RuleID] || strings.HasPrefix(m.RuleID, "security/") {
				cat = CategorySecurity
				sev = SeverityHigh
			}
			issues = append(issues, Issue{
				File:     file,
				Line:     m.Line,
				Severity: sev,
				Category: cat,
				Message:  fmt.Sprintf("%s (%s)", m.Message, m.RuleID),
			})
		}
	}
	return issues
}
