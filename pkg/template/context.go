package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/opsailor/opsail/pkg/inventory"
)

// BuildContext assembles the rendering context for a host. Precedence from
// lowest to highest: host inherited vars, host explicit vars, play vars,
// injected facts, registered vars. The caller layers loop variables on top.
func BuildContext(host *inventory.Host, playVars map[string]any, registered map[string]any, groupNames []string) map[string]any {
	ctx := map[string]any{}

	for k, v := range host.Inherited {
		ctx[k] = v
	}
	for k, v := range host.Variables {
		ctx[k] = v
	}
	for k, v := range playVars {
		ctx[k] = v
	}

	ctx["inventory_hostname"] = host.Name
	ctx["ansible_hostname"] = host.Name
	ctx["ansible_host"] = host.Hostname
	ctx["ansible_port"] = host.Port
	if len(groupNames) > 0 {
		ctx["group_names"] = groupNames
	}
	ctx["ansible_date_time"] = DateTimeFacts(time.Now())

	for k, v := range registered {
		ctx[k] = v
	}

	return ctx
}

// DateTimeFacts builds the ansible_date_time fact map.
func DateTimeFacts(now time.Time) map[string]any {
	return map[string]any{
		"date":          now.Format("2006-01-02"),
		"time":          now.Format("15:04:05"),
		"year":          now.Format("2006"),
		"month":         now.Format("01"),
		"day":           now.Format("02"),
		"hour":          now.Format("15"),
		"minute":        now.Format("04"),
		"second":        now.Format("05"),
		"weekday":       now.Weekday().String(),
		"weekday_short": now.Format("Mon"),
		"epoch":         strconv.FormatInt(now.Unix(), 10),
		"iso8601":       now.UTC().Format(time.RFC3339),
	}
}

// LookupNested resolves a dotted path like "result.values.port" against the
// context, descending through nested maps.
func LookupNested(ctx map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = ctx
	for _, part := range parts {
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[any]any:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}
