package scan

import (
	"testing"
)

func TestPasswordRuleProducesSingleHighSecurityIssue(t *testing.T) {
	content := "package main\n\nvar x = 1\npassword = \"hunter2\"\nvar y = 2\n"

	issues := PatternScan("cfg/settings.py", content, DefaultRules)

	if len(issues) != 1 {
		t.Fatalf("expected exactly 1 issue, got %d: %v", len(issues), issues)
	}
	is := issues[0]
	if is.File != "cfg/settings.py" || is.Line != 4 {
		t.Errorf("expected cfg/settings.py:4, got %s:%d", is.File, is.Line)
	}
	if is.Severity != SeverityHigh || is.Category != CategorySecurity {
		t.Errorf("expected high/security, got %s/%s", is.Severity, is.Category)
	}
	if is.Tool != PatternTool {
		t.Errorf("expected pattern tool, got %q", is.Tool)
	}
}

func TestRuleCategories(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		severity Severity
		category Category
	}{
		{"credential", `api_key = "abc123"`, SeverityHigh, CategorySecurity},
		{"eval", "result = eval(userInput)", SeverityHigh, CategorySecurity},
		{"shell", "subprocess.run(cmd, shell=True)", SeverityHigh, CategorySecurity},
		{"http", `fetch("http://example.com/api")`, SeverityMedium, CategorySecurity},
		{"unbounded loop", "while True:", SeverityMedium, CategoryEnvironmental},
		{"readlines", "data = f.readlines()", SeverityLow, CategoryEnvironmental},
		{"select star", "SELECT * FROM users", SeverityLow, CategoryEnvironmental},
		{"terminology", "whitelist = load()", SeverityLow, CategoryInclusivity},
		{"ssn", "user.ssn = form.value", SeverityHigh, CategoryEthical},
		{"tracking", "enableFingerprinting()", SeverityMedium, CategoryEthical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issues := PatternScan("f.txt", tc.line, DefaultRules)
			if len(issues) == 0 {
				t.Fatalf("expected a match for %q", tc.line)
			}
			if issues[0].Severity != tc.severity || issues[0].Category != tc.category {
				t.Errorf("expected %s/%s, got %s/%s", tc.severity, tc.category, issues[0].Severity, issues[0].Category)
			}
		})
	}
}

func TestCleanContentYieldsNoIssues(t *testing.T) {
	content := "func add(a, b int) int {\n\treturn a + b\n}\n"
	if issues := PatternScan("ok.go", content, DefaultRules); len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}
}

func TestMultipleMatchesReportLineOrder(t *testing.T) {
	content := "eval(a)\nclean line\npassword = \"x\"\n"
	issues := PatternScan("f.js", content, DefaultRules)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Line != 1 || issues[1].Line != 3 {
		t.Errorf("expected line order 1,3, got %d,%d", issues[0].Line, issues[1].Line)
	}
}
