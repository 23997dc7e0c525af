package scan

import (
	"strings"
	"testing"
)

func TestESLintParserMapsSeverity(t *testing.T) {
	stdout := `[{"filePath":"/tmp/app.js","messages":[
		{"ruleId":"no-unused-vars","severity":1,"message":"x is unused","line":3},
		{"ruleId":"eqeqeq","severity":2,"message":"use ===","line":7},
		{"ruleId":"no-eval","severity":2,"message":"eval is harmful","line":9}
	]}]`

	issues := (&ESLintParser{}).Parse("src/app.js", stdout, "", 1)
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	if issues[0].Severity != SeverityLow || issues[0].Line != 3 {
		t.Errorf("warning should map to low, got %+v", issues[0])
	}
	if issues[1].Severity != SeverityMedium || issues[1].Category != CategoryEnvironmental {
		t.Errorf("error should map to medium/environmental, got %+v", issues[1])
	}
	if issues[2].Severity != SeverityHigh || issues[2].Category != CategorySecurity {
		t.Errorf("no-eval should map to high/security, got %+v", issues[2])
	}
	if issues[0].File != "src/app.js" {
		t.Errorf("issues must reference the scanned file, got %q", issues[0].File)
	}
}

func TestESLintParserUnparseableOutput(t *testing.T) {
	issues := (&ESLintParser{}).Parse("a.js", "not json", "", 2)
	if len(issues) != 1 || !strings.Contains(issues[0].Message, "exited 2") {
		t.Errorf("expected single fallback finding, got %v", issues)
	}
	if issues := (&ESLintParser{}).Parse("a.js", "not json", "", 0); len(issues) != 0 {
		t.Errorf("clean exit without JSON should yield nothing, got %v", issues)
	}
}

func TestPylintParser(t *testing.T) {
	stdout := `[
		{"type":"error","line":12,"symbol":"undefined-variable","message":"Undefined variable 'x'"},
		{"type":"convention","line":1,"symbol":"missing-docstring","message":"Missing module docstring"}
	]`

	issues := (&PylintParser{}).Parse("lib/util.py", stdout, "", 2)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Severity != SeverityMedium {
		t.Errorf("pylint error should map to medium, got %s", issues[0].Severity)
	}
	if issues[1].Severity != SeverityLow {
		t.Errorf("pylint convention should map to low, got %s", issues[1].Severity)
	}
}

func TestPylintParserBadJSON(t *testing.T) {
	if issues := (&PylintParser{}).Parse("a.py", "****", "", 1); issues != nil {
		t.Errorf("expected nil for unparseable output, got %v", issues)
	}
}

func TestGenericParser(t *testing.T) {
	if issues := (&GenericParser{}).Parse("a.sh", "all good", "", 0); len(issues) != 0 {
		t.Errorf("clean exit must yield nothing, got %v", issues)
	}

	issues := (&GenericParser{}).Parse("a.sh", "", "line 3: syntax error", 2)
	if len(issues) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(issues))
	}
	if !strings.Contains(issues[0].Message, "syntax error") {
		t.Errorf("expected stderr tail in message, got %q", issues[0].Message)
	}
}

func TestGenericParserTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", 5000)
	issues := (&GenericParser{}).Parse("a.sh", long, "", 1)
	if len(issues[0].Message) > maxOutputLen+100 {
		t.Errorf("expected truncated message, got %d bytes", len(issues[0].Message))
	}
}
