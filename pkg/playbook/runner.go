package playbook

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/opsailor/opsail/pkg/inventory"
	"github.com/opsailor/opsail/pkg/modules"
	"github.com/opsailor/opsail/pkg/telemetry"
	"github.com/opsailor/opsail/pkg/template"
)

// ConnectFunc opens a connection to a host. The runner calls it lazily, once
// per host, the first time a task needs to execute there.
type ConnectFunc func(ctx context.Context, host *inventory.Host) (modules.Conn, error)

// HistoryRecorder persists run and task outcomes. Implemented by the sqlite
// history store; nil disables recording.
type HistoryRecorder interface {
	StartRun(playbook string) (string, error)
	RecordTask(runID, host, task, status, msg string) error
	FinishRun(runID string, totals RecapLine) error
}

// Options controls a playbook run.
type Options struct {
	// Limit restricts matched hosts to the intersection with this pattern.
	Limit string

	// CheckMode evaluates conditions and loops but skips module dispatch.
	CheckMode bool

	// Forks is the number of hosts a task runs on concurrently. Zero or one
	// means sequential execution.
	Forks int

	// Tags, when non-empty, restricts execution to tasks carrying at least
	// one of them.
	Tags []string

	// History records run outcomes when non-nil.
	History HistoryRecorder
}

// Runner executes playbooks against an inventory.
type Runner struct {
	registry *modules.Registry
	renderer *template.Renderer
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
	out      io.Writer
	connect  ConnectFunc
}

// NewRunner creates a runner. The connect function opens SSH connections in
// production; tests substitute a fake.
func NewRunner(registry *modules.Registry, log *telemetry.Logger, metrics *telemetry.Metrics, connect ConnectFunc) *Runner {
	return &Runner{
		registry: registry,
		renderer: template.NewRenderer(log),
		log:      log.NewComponentLogger("runner"),
		metrics:  metrics,
		out:      os.Stdout,
		connect:  connect,
	}
}

// SetOutput redirects the human-readable play output.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// hostState is the per-host execution state carried across tasks and plays.
type hostState struct {
	host       *inventory.Host
	conn       modules.Conn
	registered map[string]any

	// fatal stops further task dispatch on this host.
	fatal       bool
	unreachable bool

	// notified collects handler names to fire after the play, deduplicated,
	// in handler declaration order.
	notified map[string]struct{}
}

// Run executes every play in the playbook and returns the recap summary.
// Host-level failures are reported through the summary, not as an error.
func (r *Runner) Run(ctx context.Context, pb *Playbook, inv *inventory.Inventory, opts Options) (*RunSummary, error) {
	summary := newRunSummary()
	states := map[string]*hostState{}

	var runID string
	if opts.History != nil {
		id, err := opts.History.StartRun(pb.Path)
		if err != nil {
			r.log.WithError(err).Warn("history recording disabled for this run")
			opts.History = nil
		} else {
			runID = id
		}
	}

	for _, play := range pb.Plays {
		aborted := r.runPlay(ctx, play, inv, opts, states, summary, runID)
		if aborted && pb.FailFast {
			r.log.WithPlay(play.Name).Warn("play failed, aborting remaining plays")
			break
		}
	}

	summary.Print(r.out)

	if opts.History != nil {
		if err := opts.History.FinishRun(runID, summary.Totals()); err != nil {
			r.log.WithError(err).Warn("could not finalize run history")
		}
	}
	return summary, nil
}

// runPlay executes one play. It reports whether the play aborted: a task
// failure that is not ignored stops the remaining tasks for every host and
// skips the play's handlers.
func (r *Runner) runPlay(ctx context.Context, play *Play, inv *inventory.Inventory, opts Options, states map[string]*hostState, summary *RunSummary, runID string) bool {
	hosts := r.matchHosts(play, inv, opts.Limit)
	if len(hosts) == 0 {
		r.log.WithPlay(play.Name).Warnf("no hosts matched pattern %q, skipping play", play.Hosts)
		fmt.Fprintf(r.out, "\nPLAY [%s] %s\nskipping: no hosts matched\n", play.Name, banner(len(play.Name)+7))
		return false
	}

	if r.metrics != nil {
		r.metrics.RecordPlayStarted(play.Name)
	}
	fmt.Fprintf(r.out, "\nPLAY [%s] %s\n", play.Name, banner(len(play.Name)+7))

	var active []*hostState
	for _, h := range hosts {
		st, ok := states[h.Name]
		if !ok {
			st = &hostState{
				host:       h,
				registered: map[string]any{},
				notified:   map[string]struct{}{},
			}
			states[h.Name] = st
		}
		summary.line(h.Name)
		active = append(active, st)
	}

	fatalBefore := map[string]bool{}
	for _, st := range active {
		fatalBefore[st.host.Name] = st.fatal
	}
	newFatalities := func() bool {
		for _, st := range active {
			if st.fatal && !fatalBefore[st.host.Name] {
				return true
			}
		}
		return false
	}

	aborted := false
	for _, task := range play.Tasks {
		if !r.tagMatch(play, task, opts.Tags) {
			continue
		}
		r.runTask(ctx, play, task, inv, opts, active, summary, runID, false)
		if newFatalities() {
			aborted = true
			break
		}
	}

	if aborted {
		// Handlers never run for an aborted play; pending notifications
		// must not leak into the next play.
		for _, st := range active {
			st.notified = map[string]struct{}{}
		}
	} else {
		r.runHandlers(ctx, play, inv, opts, active, summary, runID)
	}

	status := "ok"
	if aborted {
		status = "failed"
	}
	if r.metrics != nil {
		r.metrics.RecordPlayCompleted(play.Name, status)
	}
	return aborted
}

// matchHosts resolves the play pattern, intersected with --limit when set.
func (r *Runner) matchHosts(play *Play, inv *inventory.Inventory, limit string) []*inventory.Host {
	hosts := inv.FilterHosts(play.Hosts)
	if limit == "" {
		return hosts
	}
	limited := map[string]struct{}{}
	for _, h := range inv.FilterHosts(limit) {
		limited[h.Name] = struct{}{}
	}
	var out []*inventory.Host
	for _, h := range hosts {
		if _, ok := limited[h.Name]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (r *Runner) tagMatch(play *Play, task *Task, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, tags := range [][]string{task.Tags, play.Tags} {
		for _, t := range tags {
			for _, w := range want {
				if t == w {
					return true
				}
			}
		}
	}
	return false
}

// runTask executes one task across the active hosts, sequentially or through
// a worker pool, and applies results in the original host order.
func (r *Runner) runTask(ctx context.Context, play *Play, task *Task, inv *inventory.Inventory, opts Options, active []*hostState, summary *RunSummary, runID string, isHandler bool) {
	label := task.Name
	if label == "" {
		label = task.Module
	}
	heading := "TASK"
	if isHandler {
		heading = "RUNNING HANDLER"
	}
	fmt.Fprintf(r.out, "\n%s [%s] %s\n", heading, label, banner(len(heading)+len(label)+4))

	results := make([]*Result, len(active))
	forks := opts.Forks
	if forks <= 1 || len(active) == 1 {
		for i, st := range active {
			if st.fatal {
				continue
			}
			results[i] = r.executeTask(ctx, play, task, inv, opts, st)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, forks)
		for i, st := range active {
			if st.fatal {
				continue
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, st *hostState) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = r.executeTask(ctx, play, task, inv, opts, st)
			}(i, st)
		}
		wg.Wait()
	}

	for i, st := range active {
		res := results[i]
		if res == nil {
			continue
		}
		r.applyResult(play, task, st, res, summary, opts, runID, label, isHandler)
	}
}

// applyResult folds one host result into register state, notifications, the
// recap, and the output stream. Runs on the coordinating goroutine only.
func (r *Runner) applyResult(play *Play, task *Task, st *hostState, res *Result, summary *RunSummary, opts Options, runID, label string, isHandler bool) {
	line := summary.line(st.host.Name)
	status := "ok"

	switch {
	case res.Unreachable:
		st.fatal = true
		st.unreachable = true
		line.Unreachable++
		status = "unreachable"
		fmt.Fprintf(r.out, "fatal: [%s]: UNREACHABLE! => %s\n", st.host.Name, res.Msg)
	case res.Skipped:
		line.Skipped++
		status = "skipped"
		fmt.Fprintf(r.out, "skipping: [%s]\n", st.host.Name)
	case res.Failed && task.IgnoreErrors:
		line.OK++
		status = "ignored"
		fmt.Fprintf(r.out, "fatal: [%s]: FAILED! => %s\n...ignoring\n", st.host.Name, res.Msg)
	case res.Failed:
		if !isHandler {
			st.fatal = true
			line.Failed++
		}
		status = "failed"
		fmt.Fprintf(r.out, "fatal: [%s]: FAILED! => %s\n", st.host.Name, res.Msg)
		if isHandler {
			r.log.WithHost(st.host.Name).WithTask(label).Warnf("handler failed: %s", res.Msg)
		}
	case res.Changed:
		line.OK++
		line.Changed++
		status = "changed"
		fmt.Fprintf(r.out, "changed: [%s]%s\n", st.host.Name, resultSuffix(res))
	default:
		line.OK++
		fmt.Fprintf(r.out, "ok: [%s]%s\n", st.host.Name, resultSuffix(res))
	}

	if task.Register != "" {
		st.registered[task.Register] = res.RegisterValue()
	}

	if res.Changed && !res.Failed && len(task.Notify) > 0 {
		for _, name := range task.Notify {
			st.notified[name] = struct{}{}
		}
	}

	if r.metrics != nil {
		r.metrics.RecordTask(task.Module, status, 0)
	}
	if opts.History != nil {
		if err := opts.History.RecordTask(runID, st.host.Name, label, status, res.Msg); err != nil {
			r.log.WithError(err).Warn("could not record task history")
		}
	}
}

// resultSuffix shows a debug message inline the way ansible prints msg.
func resultSuffix(res *Result) string {
	if res.Msg == "" {
		return ""
	}
	return " => " + res.Msg
}

// runHandlers fires the handlers each host notified, in declaration order,
// once per host. Handler failures never mark a host fatal.
func (r *Runner) runHandlers(ctx context.Context, play *Play, inv *inventory.Inventory, opts Options, active []*hostState, summary *RunSummary, runID string) {
	for _, handler := range play.Handlers {
		var notified []*hostState
		for _, st := range active {
			if st.fatal {
				continue
			}
			if _, ok := st.notified[handler.Name]; ok {
				notified = append(notified, st)
			}
		}
		if len(notified) == 0 {
			continue
		}
		r.runTask(ctx, play, handler, inv, opts, notified, summary, runID, true)
	}
	for _, st := range active {
		st.notified = map[string]struct{}{}
	}
}

// executeTask runs one task on one host: condition, loop, render, dispatch.
// Safe to call concurrently for distinct hosts.
func (r *Runner) executeTask(ctx context.Context, play *Play, task *Task, inv *inventory.Inventory, opts Options, st *hostState) *Result {
	log := r.log.WithHost(st.host.Name).WithTask(task.Name).WithModule(task.Module)

	// A bad module id is a task failure, not a transport problem, so it
	// must respect ignore_errors and never mark the host unreachable.
	if _, err := r.registry.Get(task.Module); err != nil {
		return &Result{Failed: true, Msg: err.Error()}
	}

	tctx := r.buildContext(play, task, inv, st)

	if !task.HasLoop() {
		if task.When != "" {
			ok, err := r.renderer.EvaluateCondition(task.When, tctx)
			if err != nil {
				return &Result{Failed: true, Msg: fmt.Sprintf("error evaluating condition %q: %v", task.When, err)}
			}
			if !ok {
				return &Result{Skipped: true, Msg: "conditional result was false"}
			}
		}
		return r.executeOnce(ctx, play, task, tctx, st, opts, log)
	}

	items, err := r.renderer.ResolveLoopItems(task.Loop, tctx)
	if err != nil {
		return &Result{Failed: true, Msg: fmt.Sprintf("could not resolve loop: %v", err)}
	}
	if len(items) == 0 {
		return &Result{Skipped: true, Msg: "empty loop"}
	}

	var results []*Result
	for i, item := range items {
		iterCtx := make(map[string]any, len(tctx)+2)
		for k, v := range tctx {
			iterCtx[k] = v
		}
		iterCtx[task.LoopVar] = item
		if task.IndexVar != "" {
			iterCtx[task.IndexVar] = i
		}

		// The condition sees the loop variables, so it can filter
		// individual items.
		if task.When != "" {
			ok, err := r.renderer.EvaluateCondition(task.When, iterCtx)
			if err != nil {
				return &Result{Failed: true, Msg: fmt.Sprintf("error evaluating condition %q: %v", task.When, err)}
			}
			if !ok {
				results = append(results, &Result{Skipped: true, Msg: "conditional result was false"})
				continue
			}
		}

		res := r.executeOnce(ctx, play, task, iterCtx, st, opts, log)
		if res.Unreachable {
			return res
		}
		results = append(results, res)
	}
	return aggregateLoop(results)
}

// aggregateLoop folds per-iteration results into one. A single iteration
// passes its message and values through untouched so registered lookups like
// result.stdout keep working; more iterations get a count summary with
// values flattened under item_<i> keys.
func aggregateLoop(results []*Result) *Result {
	agg := &Result{Values: map[string]any{}}
	changedCount := 0
	for _, res := range results {
		if res.Changed {
			agg.Changed = true
			changedCount++
		}
		if res.Failed {
			agg.Failed = true
		}
	}

	if len(results) == 1 {
		agg.Msg = results[0].Msg
		for k, v := range results[0].Values {
			agg.Values[k] = v
		}
		return agg
	}

	okCount := len(results) - changedCount
	if changedCount > 0 {
		agg.Msg = fmt.Sprintf("changed=%d ok=%d iterations=%d", changedCount, okCount, len(results))
	} else {
		agg.Msg = fmt.Sprintf("ok=%d iterations=%d", okCount, len(results))
	}
	for i, res := range results {
		for k, v := range res.Values {
			agg.Values[fmt.Sprintf("item_%d.%s", i, k)] = v
		}
	}
	return agg
}

// executeOnce renders arguments and dispatches one module invocation.
func (r *Runner) executeOnce(ctx context.Context, play *Play, task *Task, tctx map[string]any, st *hostState, opts Options, log *telemetry.Logger) *Result {
	args, fatalErr := r.renderArgs(task, tctx, log)
	if fatalErr != nil {
		return &Result{Failed: true, Msg: fatalErr.Error()}
	}

	if task.Module == "debug" {
		injectDebugVar(args, tctx)
	}
	if err := r.loadFileSource(task, args, tctx); err != nil {
		return &Result{Failed: true, Msg: err.Error()}
	}

	if opts.CheckMode {
		return &Result{Msg: "check mode"}
	}

	if st.conn == nil {
		conn, err := r.openConn(ctx, st.host)
		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordConnection("ssh", "failed")
			}
			return &Result{Unreachable: true, Failed: true, Msg: err.Error()}
		}
		st.conn = conn
		if r.metrics != nil {
			r.metrics.RecordConnection(connKind(st.host), "ok")
		}
	}

	become, becomeUser := task.EffectiveBecome(play)
	ec := &modules.ExecContext{
		Conn:       st.conn,
		Become:     become,
		BecomeUser: becomeUser,
		Log:        log,
	}

	start := time.Now()
	res, err := r.registry.Execute(task.Module, ec, args)
	if err != nil {
		// Module errors returned as Go errors are transport failures.
		return &Result{Unreachable: true, Failed: true, Msg: err.Error()}
	}
	log.Debugf("module finished in %s", time.Since(start).Round(time.Millisecond))

	out := &Result{
		Changed: res.Changed,
		Failed:  res.Failed,
		Msg:     res.Msg,
		Values:  map[string]any{},
	}
	if res.Stdout != "" {
		out.Values["stdout"] = strings.TrimRight(res.Stdout, "\n")
	}
	if res.Stderr != "" {
		out.Values["stderr"] = strings.TrimRight(res.Stderr, "\n")
	}
	return out
}

// buildContext assembles the template context for one host: inventory vars,
// play vars, facts, registered results, then task vars on top.
func (r *Runner) buildContext(play *Play, task *Task, inv *inventory.Inventory, st *hostState) map[string]any {
	groups := inv.GroupsForHost(st.host.Name)
	tctx := template.BuildContext(st.host, play.Vars, st.registered, groups)
	for k, v := range task.Vars {
		tctx[k] = v
	}
	return tctx
}

// criticalArgs are arguments whose render failure fails the host instead of
// degrading to the raw value. Keyed by module then argument name.
var criticalArgs = map[string]map[string]bool{
	"user":     {"password": true},
	"copy":     {"content": true},
	"template": {"content": true},
}

// forceStringArgs keep their rendered form as text even when it looks like a
// number or a YAML literal.
var forceStringArgs = map[string]map[string]bool{
	"debug":    {"msg": true, "var": true},
	"copy":     {"content": true},
	"template": {"content": true},
}

// renderArgs renders every module argument. Critical argument failures are
// returned as an error; anything else warns and keeps the raw value.
func (r *Runner) renderArgs(task *Task, tctx map[string]any, log *telemetry.Logger) (map[string]any, error) {
	args := make(map[string]any, len(task.Args))
	for key, raw := range task.Args {
		forceString := forceStringArgs[task.Module][key]
		rendered, err := r.renderer.RenderValue(raw, tctx, forceString)
		if err != nil {
			if criticalArgs[task.Module][key] {
				return nil, fmt.Errorf("could not render %s.%s: %v", task.Module, key, err)
			}
			log.Warnf("could not render argument %s, keeping raw value: %v", key, err)
			args[key] = raw
			continue
		}
		args[key] = rendered
	}
	return args, nil
}

// injectDebugVar resolves debug's var argument against the context so the
// module can print the value without knowing about templating.
func injectDebugVar(args map[string]any, tctx map[string]any) {
	name, ok := args["var"].(string)
	if !ok || name == "" {
		return
	}
	if val, found := template.LookupNested(tctx, name); found {
		args["_var_value"] = val
	}
}

// loadFileSource turns a local src argument into content for the copy and
// template modules. Template sources render; copy sources transfer verbatim.
func (r *Runner) loadFileSource(task *Task, args map[string]any, tctx map[string]any) error {
	if task.Module != "copy" && task.Module != "template" {
		return nil
	}
	src, ok := args["src"].(string)
	if !ok || src == "" {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("could not read src %s: %v", src, err)
	}
	content := string(data)
	if task.Module == "template" {
		rendered, err := r.renderer.RenderString(content, tctx)
		if err != nil {
			return fmt.Errorf("could not render template %s: %v", src, err)
		}
		content = rendered
	}
	delete(args, "src")
	args["content"] = content
	return nil
}

// openConn picks the local executor for loopback targets and SSH otherwise.
func (r *Runner) openConn(ctx context.Context, host *inventory.Host) (modules.Conn, error) {
	if isLoopback(host) {
		sudoPassword, _ := host.SudoPassword()
		return modules.NewLocalConn(sudoPassword), nil
	}
	return r.connect(ctx, host)
}

func isLoopback(host *inventory.Host) bool {
	return host.Hostname == "localhost" || host.Hostname == "127.0.0.1"
}

func connKind(host *inventory.Host) string {
	if isLoopback(host) {
		return "local"
	}
	return "ssh"
}

func banner(used int) string {
	const width = 79
	if used >= width {
		return ""
	}
	return strings.Repeat("*", width-used)
}
