package modules

import (
	"fmt"
	"sort"
	"strings"
)

// DebugModule prints a message or a variable value. The orchestrator
// resolves a "var" argument and passes the value in as _var_value.
type DebugModule struct{}

func (m *DebugModule) Name() string { return "debug" }

func (m *DebugModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	if name, ok := stringArg(args, "var"); ok {
		value, resolved := args["_var_value"]
		if !resolved {
			return okf(false, "%s: VARIABLE IS NOT DEFINED!", name), nil
		}
		return okf(false, "%s: %s", name, FormatValue(value)), nil
	}

	msg, ok := stringArg(args, "msg")
	if !ok {
		msg = "Hello world!"
	}
	return okf(false, "%s", msg), nil
}

// FormatValue pretty-prints a value for debug output. Maps and lists indent
// one level; scalars print plainly.
func FormatValue(v any) string {
	return formatValue(v, 0)
}

func formatValue(v any, depth int) string {
	indent := strings.Repeat("  ", depth)
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any:
		if len(val) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			b.WriteString("\n")
			b.WriteString(indent)
			b.WriteString("  ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(formatValue(val[k], depth+1))
		}
		return b.String()
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		var b strings.Builder
		for _, item := range val {
			b.WriteString("\n")
			b.WriteString(indent)
			b.WriteString("  - ")
			b.WriteString(formatValue(item, depth+1))
		}
		return b.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
