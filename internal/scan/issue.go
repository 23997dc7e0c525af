package scan

// Severity annotates how serious a finding is. It never reorders the report.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Category classifies what kind of concern a finding raises.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryEnvironmental Category = "environmental"
	CategoryInclusivity   Category = "inclusivity"
	CategoryEthical       Category = "ethical"
)

// ContextLine is one line of the code window surrounding a finding.
type ContextLine struct {
	LineNumber  int    `json:"line_number"`
	Content     string `json:"content"`
	IsIssueLine bool   `json:"is_issue_line"`
}

// Issue is a single finding from a scan. Issues are immutable once produced;
// a scan run builds a fresh set, never mutates a prior one.
type Issue struct {
	File     string        `json:"file"`
	Line     int           `json:"line"`
	Severity Severity      `json:"severity"`
	Category Category      `json:"category"`
	Message  string        `json:"message"`
	Tool     string        `json:"tool"`
	Context  []ContextLine `json:"context,omitempty"`
}

// CountBySeverity tallies issues per severity tier.
func CountBySeverity(issues []Issue) map[Severity]int {
	counts := make(map[Severity]int)
	for _, is := range issues {
		counts[is.Severity]++
	}
	return counts
}

// CountByCategory tallies issues per category.
func CountByCategory(issues []Issue) map[Category]int {
	counts := make(map[Category]int)
	for _, is := range issues {
		counts[is.Category]++
	}
	return counts
}
