package repomon

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/explainforge/internal/scan"
)

// ChangeSummary is the one-line form used in change-detected notifications.
func ChangeSummary(cs *ChangeSet) string {
	if cs == nil || !cs.HasChanges {
		return "no changes"
	}
	if len(cs.Commits) == 0 {
		return fmt.Sprintf("baseline scan of %d tracked files (%s)", len(cs.ChangedFiles), cs.CommitRange)
	}
	return fmt.Sprintf("%d new commits, %d files changed (%s)", len(cs.Commits), len(cs.ChangedFiles), cs.CommitRange)
}

// FormatReport renders a change set and its scan findings as the text block
// consumed by the repository-analysis stage.
func FormatReport(cs *ChangeSet, issues []scan.Issue) string {
	var b strings.Builder

	b.WriteString("Repository change report\n")
	fmt.Fprintf(&b, "Range: %s\n", cs.CommitRange)
	if len(cs.Commits) > 0 {
		b.WriteString("Commits:\n")
		for _, c := range cs.Commits {
			fmt.Fprintf(&b, "  %s\n", c)
		}
	}
	fmt.Fprintf(&b, "Files changed: %d\n", len(cs.ChangedFiles))

	if len(issues) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	bySev := scan.CountBySeverity(issues)
	fmt.Fprintf(&b, "Issues: %d (high %d, medium %d, low %d)\n",
		len(issues), bySev[scan.SeverityHigh], bySev[scan.SeverityMedium], bySev[scan.SeverityLow])

	for _, is := range issues {
		fmt.Fprintf(&b, "- %s:%d [%s/%s] %s (%s)\n", is.File, is.Line, is.Severity, is.Category, is.Message, is.Tool)
	}
	return b.String()
}
