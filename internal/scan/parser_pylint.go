package scan

import (
	"encoding/json"
	"fmt"
)

// PylintParser parses pylint --output-format=json reports.
type PylintParser struct{}

type pylintMessage struct {
	Type    string `json:"type"` // error, warning, convention, refactor
	Line    int    `json:"line"`
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

func (p *PylintParser) Parse(file string, stdout string, stderr string, exitCode int) []Issue {
	var messages []pylintMessage
	if err := json.Unmarshal([]byte(stdout), &messages); err != nil {
		return nil
	}

	var issues []Issue
	for _, m := range messages {
		sev := SeverityLow
		if m.Type == "error" {
			sev = SeverityMedium
		}
		issues = append(issues, Issue{
			File:     file,
			Line:     m.Line,
			Severity: sev,
			Category: CategoryEnvironmental,
			Message:  fmt.Sprintf("%s (%s)", m.Message, m.Symbol),
		})
	}
	return issues
}
