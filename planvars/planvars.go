// Package planvars implements the placeholder substitution engine shared by
// the plan runner's variable handshake: placeholder collection, textual
// substitution, runtime-value coercion, and missing-variable diagnosis.
package planvars

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// singleBrace matches {name} with no nested braces; doubleBrace matches
// {{ name }}, trimming internal whitespace around name.
var (
	singleBrace = regexp.MustCompile(`\{([^{}]+)\}`)
	doubleBrace = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
)

// Value is a plan variable's value: string, int, int64, or float64. A nil
// Value means the variable is missing.
type Value any

// Step is the minimal view of a plan step this package needs: title and
// instructions are the only free-text fields placeholders can appear in.
type Step struct {
	ID           string
	Title        string
	Instructions string
}

// Plan is the minimal view of a plan this package needs.
type Plan struct {
	Name  string
	Vars  map[string]Value
	Steps []Step
}

// CollectPlaceholders scans the plan name and every step's title and
// instructions for {name} and {{ name }} placeholders, returning the
// deduplicated set of names found, insertion order preserved.
func CollectPlaceholders(p Plan) []string {
	seen := make(map[string]bool)
	var order []string
	add := func(text string) {
		for _, name := range extractNames(text) {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}
	add(p.Name)
	for _, s := range p.Steps {
		add(s.Title)
		add(s.Instructions)
	}
	return order
}

func extractNames(text string) []string {
	if text == "" {
		return nil
	}
	var names []string
	for _, m := range doubleBrace.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name != "" {
			names = append(names, name)
		}
	}
	for _, m := range singleBrace.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Normalize inserts an empty-string entry for every placeholder not already
// a key of p.Vars, and reports whether any placeholder exists at all
// (HasVariables). A non-nil p.Vars map is updated in place, so the caller's
// Plan sees the new entries; a nil Vars is replaced by a fresh map that only
// the returned Plan carries. The placeholder set is returned alongside it.
func Normalize(p Plan) (Plan, []string, bool) {
	if p.Vars == nil {
		p.Vars = make(map[string]Value)
	}
	placeholders := CollectPlaceholders(p)
	for _, name := range placeholders {
		if _, ok := p.Vars[name]; !ok {
			p.Vars[name] = ""
		}
	}
	return p, placeholders, len(placeholders) > 0
}

// Apply substitutes every placeholder present in vars with its string
// representation, leaving placeholders absent from vars untouched. Passing
// an empty vars map returns text unchanged (P2: substitution identity).
func Apply(text string, vars map[string]Value) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	text = doubleBrace.ReplaceAllStringFunc(text, func(m string) string {
		name := strings.TrimSpace(doubleBrace.FindStringSubmatch(m)[1])
		if v, ok := vars[name]; ok {
			return stringify(v)
		}
		return m
	})
	text = singleBrace.ReplaceAllStringFunc(text, func(m string) string {
		name := strings.TrimSpace(singleBrace.FindStringSubmatch(m)[1])
		if v, ok := vars[name]; ok {
			return stringify(v)
		}
		return m
	})
	return text
}

func stringify(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Coerce implements the runtime coercion rule an operator's reply to a
// variable prompt is put through: nil stays nil, bool becomes the literal
// string "true"/"false" (checked before numeric, mirroring the source this
// was ported from, where bool is a numeric subtype), numbers pass through
// as numbers, everything else becomes a trimmed string, and an
// empty-after-trim string coerces to nil (missing), not "".
func Coerce(value Value) Value {
	if value == nil {
		return nil
	}
	if b, ok := value.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	switch value.(type) {
	case int, int64, float64:
		return value
	}
	text := strings.TrimSpace(stringify(value))
	if text == "" {
		return nil
	}
	return text
}

// DiagnoseMissing returns the subset of placeholders that are missing from
// vars: absent entirely, nil, or an empty-after-trim string.
func DiagnoseMissing(vars map[string]Value, placeholders []string) []string {
	var missing []string
	for _, name := range placeholders {
		v, ok := vars[name]
		if !ok || isMissing(v) {
			missing = append(missing, name)
		}
	}
	return missing
}

func isMissing(v Value) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
