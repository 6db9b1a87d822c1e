package playbook

import (
	"context"
	"fmt"

	"github.com/opsailor/opsail/pkg/inventory"
	"github.com/opsailor/opsail/pkg/modules"
)

// RunAdhoc executes a single module across every host matching the pattern,
// the way ansible's ad-hoc mode does. The args string holds key=value pairs
// and bare words that become _raw_params.
func (r *Runner) RunAdhoc(ctx context.Context, inv *inventory.Inventory, pattern, module, argsString string, opts Options) (*RunSummary, error) {
	if _, err := r.registry.Get(module); err != nil {
		return nil, NewModuleError(err.Error(), nil)
	}

	task := &Task{
		Name:       module,
		Module:     module,
		Args:       modules.ParseAdhocArgs(argsString),
		BecomeUser: "root",
		LoopVar:    "item",
	}
	play := &Play{
		Name:  fmt.Sprintf("ad-hoc %s", module),
		Hosts: pattern,
		Tasks: []*Task{task},
	}

	summary := newRunSummary()
	hosts := r.matchHosts(play, inv, opts.Limit)
	if len(hosts) == 0 {
		r.log.Warnf("no hosts matched pattern %q", pattern)
		return summary, nil
	}

	for _, h := range hosts {
		st := &hostState{
			host:       h,
			registered: map[string]any{},
			notified:   map[string]struct{}{},
		}
		res := r.executeTask(ctx, play, task, inv, opts, st)
		line := summary.line(h.Name)

		switch {
		case res.Unreachable:
			line.Unreachable++
			fmt.Fprintf(r.out, "%s | UNREACHABLE! => %s\n", h.Name, res.Msg)
		case res.Failed:
			line.Failed++
			fmt.Fprintf(r.out, "%s | FAILED! => %s\n", h.Name, res.Msg)
		case res.Changed:
			line.OK++
			line.Changed++
			fmt.Fprintf(r.out, "%s | CHANGED => %s\n", h.Name, adhocMsg(res))
		default:
			line.OK++
			fmt.Fprintf(r.out, "%s | SUCCESS => %s\n", h.Name, adhocMsg(res))
		}
	}

	summary.Print(r.out)
	return summary, nil
}

func adhocMsg(res *Result) string {
	if stdout, ok := res.Values["stdout"].(string); ok && stdout != "" {
		return stdout
	}
	return res.Msg
}
