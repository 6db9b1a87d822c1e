// Package template renders task arguments and conditions with a Jinja2-style
// engine, resolves loop sources, and coerces rendered text back into typed
// values.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/flosch/pongo2/v6"
	"gopkg.in/yaml.v3"

	"github.com/opsailor/opsail/pkg/telemetry"
)

// maxRenderPasses bounds the fixed-point rendering loop. Values that embed
// other template expressions re-render until the output stabilizes.
const maxRenderPasses = 10

// builtinVariables are always available or injected late, so the pre-render
// scan never flags them.
var builtinVariables = map[string]struct{}{
	"inventory_hostname": {},
	"ansible_hostname":   {},
	"ansible_host":       {},
	"ansible_port":       {},
	"ansible_ssh_user":   {},
	"ansible_user":       {},
	"group_names":        {},
	"groups":             {},
	"ansible_date_time":  {},
}

var bareVariableRe = regexp.MustCompile(`^\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}$`)

// Renderer renders values against a variable context.
type Renderer struct {
	log *telemetry.Logger
}

// NewRenderer creates a renderer. Custom filters are registered once per
// process on first use.
func NewRenderer(log *telemetry.Logger) *Renderer {
	RegisterFilters()
	return &Renderer{log: log.NewComponentLogger("template")}
}

// RenderValue renders a value recursively. Strings go through the template
// engine, maps and lists render element-wise, other scalars pass through.
// With forceString set, string results are returned verbatim without type
// coercion.
func (r *Renderer) RenderValue(v any, ctx map[string]any, forceString bool) (any, error) {
	switch val := v.(type) {
	case string:
		return r.renderStringValue(val, ctx, forceString)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rendered, err := r.RenderValue(item, ctx, forceString)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rendered, err := r.RenderValue(item, ctx, forceString)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// RenderString renders a template string and returns the raw string result.
func (r *Renderer) RenderString(s string, ctx map[string]any) (string, error) {
	v, err := r.renderStringValue(s, ctx, true)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Renderer) renderStringValue(s string, ctx map[string]any, forceString bool) (any, error) {
	if !hasTemplate(s) {
		return s, nil
	}

	// A bare variable reference resolves by direct lookup so structured
	// values survive without a stringify/reparse round trip. String values
	// still go through coercion, and templated string values fall through
	// to the fixed-point render below.
	if !forceString {
		if name, ok := bareVariable(s); ok {
			if val, found := LookupNested(ctx, name); found {
				str, isString := val.(string)
				if !isString {
					return val, nil
				}
				if !hasTemplate(str) {
					return coerceRendered(s, str), nil
				}
			}
		}
	}

	if err := r.checkVariables(s, ctx); err != nil {
		return nil, err
	}

	out, err := r.renderFixedPoint(s, ctx)
	if err != nil {
		return nil, err
	}
	if forceString {
		return out, nil
	}
	return coerceRendered(s, out), nil
}

// renderFixedPoint renders repeatedly until the output stops changing or the
// pass limit runs out. Exceeding the limit is not fatal: the current best
// effort string is returned with a warning.
func (r *Renderer) renderFixedPoint(s string, ctx map[string]any) (string, error) {
	current := s
	for pass := 0; pass < maxRenderPasses; pass++ {
		tpl, err := pongo2.FromString(current)
		if err != nil {
			return "", NewSyntaxError(fmt.Sprintf("invalid template %q", current), err)
		}
		out, err := tpl.Execute(pongo2.Context(ctx))
		if err != nil {
			return "", NewSyntaxError(fmt.Sprintf("failed to render %q", current), err)
		}
		if out == current {
			return out, nil
		}
		current = out
		if !hasTemplate(current) {
			return current, nil
		}
	}
	r.log.Warnf("template did not stabilize after %d passes, using best-effort result", maxRenderPasses)
	return current, nil
}

// checkVariables scans expression spans before rendering. An undefined
// variable piped into a filter is fatal; a plain undefined variable only
// warns and renders best-effort.
func (r *Renderer) checkVariables(s string, ctx map[string]any) error {
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			return nil
		}
		rest = rest[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return nil
		}
		inner := strings.TrimSpace(rest[:end])
		rest = rest[end+2:]

		if inner == "" {
			continue
		}
		// Literals and non-identifier expressions are left to the engine.
		first := inner[0]
		if first == '\'' || first == '"' || !isIdentStart(first) {
			continue
		}

		ident := inner
		for i := 0; i < len(inner); i++ {
			c := inner[i]
			if c == ' ' || c == '\t' || c == '|' {
				ident = inner[:i]
				break
			}
		}
		root := ident
		if j := strings.IndexAny(ident, ".["); j >= 0 {
			root = ident[:j]
		}
		if root == "" {
			continue
		}
		if _, ok := builtinVariables[root]; ok {
			continue
		}
		if _, ok := ctx[root]; ok {
			continue
		}
		if strings.Contains(inner, "|") {
			return NewUndefinedVariableError(
				fmt.Sprintf("undefined variable '%s' used with a filter", root), nil)
		}
		r.log.Warnf("undefined variable '%s' in template", root)
	}
}

// EvaluateCondition renders a when-expression and applies truthiness to the
// result. An empty expression is true.
func (r *Renderer) EvaluateCondition(expr string, ctx map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	wrapped := expr
	if !hasTemplate(expr) {
		wrapped = "{{ " + expr + " }}"
	}
	val, err := r.RenderValue(wrapped, ctx, false)
	if err != nil {
		return false, err
	}
	return Truthy(val), nil
}

// ResolveLoopItems turns a loop source into the list of items to iterate.
// Literal lists pass through so each item can render per iteration. A string
// that is a bare variable reference resolves by direct lookup; anything else
// renders fully and must produce a list. A plain non-template string becomes
// a single-item list.
func (r *Renderer) ResolveLoopItems(loop any, ctx map[string]any) ([]any, error) {
	switch v := loop.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case string:
		if name, ok := bareVariable(v); ok {
			if val, found := LookupNested(ctx, name); found {
				if list, ok := val.([]any); ok {
					return list, nil
				}
			}
		}
		rendered, err := r.RenderValue(v, ctx, false)
		if err != nil {
			return nil, err
		}
		if list, ok := rendered.([]any); ok {
			return list, nil
		}
		if !hasTemplate(v) {
			return []any{v}, nil
		}
		return nil, NewLoopResolutionError(
			fmt.Sprintf("loop source %q did not resolve to a list", v), nil)
	default:
		return nil, NewLoopResolutionError(
			fmt.Sprintf("unsupported loop source of type %T", loop), nil)
	}
}

// Truthy reports template truthiness: false, zero numbers, empty strings,
// empty collections, and nil are false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case map[any]any:
		return len(val) > 0
	default:
		return true
	}
}

// coerceRendered turns rendered text back into a typed value. Output equal
// to the input stays a string. A single-line string containing spaces that
// does not look like a YAML collection is never reinterpreted, which keeps
// sentences like "role: admin user" from becoming mappings.
func coerceRendered(input, out string) any {
	if out == input {
		return out
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return out
	}

	singleLine := !strings.Contains(trimmed, "\n")
	if singleLine && strings.Contains(trimmed, " ") {
		switch trimmed[0] {
		case '-', '{', '[':
		default:
			return out
		}
	}

	var js any
	if err := json.Unmarshal([]byte(trimmed), &js); err == nil {
		return js
	}

	var y any
	if err := yaml.Unmarshal([]byte(trimmed), &y); err == nil {
		// YAML turns bare words like "null" into nil; rendered text that
		// was not empty stays a string instead.
		if y == nil {
			return out
		}
		return y
	}
	return out
}

func hasTemplate(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

func bareVariable(s string) (string, bool) {
	m := bareVariableRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
