package scan

import (
	"fmt"
	"strings"
)

// GenericParser is the fallback for tools without a structured format. A
// clean exit yields nothing; a non-zero exit yields one finding carrying the
// output tail, where error summaries usually are.
type GenericParser struct{}

// maxOutputLen caps how much tool output the generic parser retains.
const maxOutputLen = 2000

func (p *GenericParser) Parse(file string, stdout string, stderr string, exitCode int) []Issue {
	if exitCode == 0 {
		return nil
	}

	combined := stdout
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr
	}
	combined = strings.TrimSpace(combined)
	if len(combined) > maxOutputLen {
		combined = "…" + combined[len(combined)-maxOutputLen:]
	}

	return []Issue{{
		File:     file,
		Line:     1,
		Severity: SeverityMedium,
		Category: CategoryEnvironmental,
		Message:  fmt.Sprintf("exit code %d: %s", exitCode, combined),
	}}
}
