package scan

import (
	"regexp"
	"strings"
)

// PatternTool is the tool name recorded on issues found by the built-in rules.
const PatternTool = "pattern"

// Rule is one declarative pattern check. New rules are data, not code.
type Rule struct {
	Pattern  *regexp.Regexp
	Severity Severity
	Category Category
	Message  string
}

// DefaultRules is the built-in rule set, categorized into severity tiers and
// issue categories. Matching is per line.
var DefaultRules = []Rule{
	// security
	{regexp.MustCompile(`password\s*=\s*['"][^'"]+['"]`), SeverityHigh, CategorySecurity, "hardcoded password"},
	{regexp.MustCompile(`(?i)(api_?key|secret|auth_?token)\s*=\s*['"][^'"]+['"]`), SeverityHigh, CategorySecurity, "hardcoded credential"},
	{regexp.MustCompile(`\beval\s*\(`), SeverityHigh, CategorySecurity, "dynamic code evaluation"},
	{regexp.MustCompile(`shell\s*=\s*True`), SeverityHigh, CategorySecurity, "subprocess with shell=True"},
	{regexp.MustCompile(`(?i)(select|insert|update|delete)\b[^\n]*["']\s*\+`), SeverityMedium, CategorySecurity, "SQL built by string concatenation"},
	{regexp.MustCompile(`http://[^\s'"]+`), SeverityMedium, CategorySecurity, "insecure http transport"},
	{regexp.MustCompile(`verify\s*=\s*False`), SeverityMedium, CategorySecurity, "TLS verification disabled"},

	// environmental (resource / performance)
	{regexp.MustCompile(`while\s*(\(\s*)?[Tt]rue\b`), SeverityMedium, CategoryEnvironmental, "potentially unbounded loop"},
	{regexp.MustCompile(`\.readlines\(\)`), SeverityLow, CategoryEnvironmental, "reads entire file into memory"},
	{regexp.MustCompile(`(?i)select\s+\*\s+from`), SeverityLow, CategoryEnvironmental, "unbounded select-all query"},
	{regexp.MustCompile(`time\.sleep\(\s*0?\.?0+[0-9]*\s*\)`), SeverityLow, CategoryEnvironmental, "busy-wait polling"},

	// inclusivity
	{regexp.MustCompile(`(?i)\b(whitelist|blacklist)\b`), SeverityLow, CategoryInclusivity, "non-inclusive terminology (allowlist/denylist preferred)"},
	{regexp.MustCompile(`(?i)\b(master|slave)\b`), SeverityLow, CategoryInclusivity, "non-inclusive terminology (primary/replica preferred)"},
	{regexp.MustCompile(`(?i)\bsanity[- _]check\b`), SeverityLow, CategoryInclusivity, "non-inclusive terminology (confidence check preferred)"},

	// ethical / privacy
	{regexp.MustCompile(`(?i)\b(ssn|social_security)\b`), SeverityHigh, CategoryEthical, "handles social security data"},
	{regexp.MustCompile(`(?i)\b(fingerprint(ing)?|track_?user)\b`), SeverityMedium, CategoryEthical, "user tracking or fingerprinting"},
	{regexp.MustCompile(`(?i)\b(latitude|longitude|geolocation)\b`), SeverityLow, CategoryEthical, "handles location data"},
}

// PatternScan runs the rule set over file content and returns one issue per
// (rule, line) match, in line order.
func PatternScan(file string, content string, rules []Rule) []Issue {
	var issues []Issue
	for i, line := range strings.Split(content, "\n") {
		for _, rule := range rules {
			if rule.Pattern.MatchString(line) {
				issues = append(issues, Issue{
					File:     file,
					Line:     i + 1,
					Severity: rule.Severity,
					Category: rule.Category,
					Message:  rule.Message,
					Tool:     PatternTool,
				})
			}
		}
	}
	return issues
}
