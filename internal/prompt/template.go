package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Vars maps template variable names to their values.
type Vars map[string]string

// StageVars is the canonical variable set stage templates render against.
// The stage input travels separately as the generation payload, so content
// only points the model at it and the optional sections collapse.
func StageVars() Vars {
	return Vars{
		"content":  "(provided below)",
		"audience": "",
		"sources":  "",
		"feedback": "",
	}
}

const (
	openDelim  = "{{"
	closeDelim = "}}"
	endIfTag   = "/if"
	ifPrefix   = "#if "
)

// Render expands a template. {{name}} substitutes the variable's value;
// {{#if name}}...{{/if}} sections, which may nest, are kept only when the
// variable is set and non-empty. Variables referenced in kept output must all
// be present in vars; suppressed sections are never checked. Brace pairs that
// do not form a recognized tag pass through as literal text.
func Render(tmpl string, vars Vars) (string, error) {
	r := &renderer{src: tmpl, vars: vars}
	out, err := r.block(true, false)
	if err != nil {
		return "", err
	}
	if len(r.missing) > 0 {
		names := make([]string, 0, len(r.missing))
		for name := range r.missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing template variables: %s", strings.Join(names, ", "))
	}
	return out, nil
}

// renderer is a single-pass scanner over the template source. Conditional
// sections recurse; pos always sits at the next unconsumed byte.
type renderer struct {
	src     string
	pos     int
	vars    Vars
	missing map[string]bool
}

// block renders until end of input, or until the matching {{/if}} when nested.
// With emit false the structure is still parsed and validated but nothing is
// kept and variable references go unchecked.
func (r *renderer) block(emit bool, nested bool) (string, error) {
	var b strings.Builder
	for r.pos < len(r.src) {
		rel := strings.Index(r.src[r.pos:], openDelim)
		if rel < 0 {
			if emit {
				b.WriteString(r.src[r.pos:])
			}
			r.pos = len(r.src)
			break
		}
		if emit {
			b.WriteString(r.src[r.pos : r.pos+rel])
		}
		r.pos += rel

		tag, width := scanTag(r.src[r.pos:])
		if width == 0 {
			if emit {
				b.WriteString(openDelim)
			}
			r.pos += len(openDelim)
			continue
		}
		r.pos += width

		switch {
		case tag == endIfTag:
			if !nested {
				return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
			}
			return b.String(), nil
		case strings.HasPrefix(tag, ifPrefix):
			name := tag[len(ifPrefix):]
			keep := emit && r.vars[name] != ""
			inner, err := r.block(keep, true)
			if err != nil {
				return "", err
			}
			if keep {
				b.WriteString(inner)
			}
		default:
			if !emit {
				continue
			}
			if val, ok := r.vars[tag]; ok {
				b.WriteString(val)
			} else {
				if r.missing == nil {
					r.missing = make(map[string]bool)
				}
				r.missing[tag] = true
			}
		}
	}
	if nested {
		return "", fmt.Errorf("unclosed conditional block")
	}
	return b.String(), nil
}

// scanTag reads a tag at the start of s, which begins with "{{". It returns
// the normalized tag body and its total width, or width 0 when the braces do
// not form a recognized tag.
func scanTag(s string) (string, int) {
	end := strings.Index(s, closeDelim)
	if end < 0 {
		return "", 0
	}
	body := strings.TrimSpace(s[len(openDelim):end])
	width := end + len(closeDelim)

	switch {
	case body == endIfTag:
		return body, width
	case strings.HasPrefix(body, ifPrefix):
		name := strings.TrimSpace(body[len(ifPrefix):])
		if isIdent(name) {
			return ifPrefix + name, width
		}
	case isIdent(body):
		return body, width
	}
	return "", 0
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// LoadTemplate resolves a template override from the pipeline config. A path
// naming a readable file wins; otherwise its base name is looked up among the
// installed copies under the template directory, then among the compiled-in
// templates. The base-name lookup cannot escape the template directory.
func LoadTemplate(name string) (string, error) {
	if data, err := os.ReadFile(name); err == nil {
		return string(data), nil
	}
	base := filepath.Base(name)
	if dir := templateDir(); dir != "" {
		if data, err := os.ReadFile(filepath.Join(dir, base)); err == nil {
			return string(data), nil
		}
	}
	if tmpl, ok := Builtin(base); ok {
		return tmpl, nil
	}
	return "", fmt.Errorf("template %q not found", name)
}

// templateDir is where `templates install` materializes the compiled-in
// templates for operator editing.
func templateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".explainforge", "templates")
}

// InstallBuiltinTemplates copies the compiled-in templates into the template
// directory so an operator can edit them. Existing files are left alone.
func InstallBuiltinTemplates() error {
	dir := templateDir()
	if dir == "" {
		return fmt.Errorf("could not determine home directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	for name, content := range builtinTemplates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("install template %s: %w", name, err)
		}
	}
	return nil
}
