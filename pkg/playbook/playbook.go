package playbook

// Playbook is an ordered list of plays loaded from one YAML file.
type Playbook struct {
	Path  string
	Plays []*Play

	// FailFast aborts the whole run when a play fails instead of moving on
	// to the next play. Set by the caller, not the document.
	FailFast bool
}

// Play targets a host pattern with an ordered task list, optional variables,
// and handlers that run when notified. Become settings are defaults that
// individual tasks may override.
type Play struct {
	Name     string
	Hosts    string
	Vars     map[string]any
	Tasks    []*Task
	Handlers []*Task

	Become     bool
	BecomeUser string
	Tags       []string
}

// Task is a single unit of work. The module id is the first mapping key that
// is not one of the reserved task keywords, so document order matters.
type Task struct {
	Name   string
	Module string
	Args   map[string]any

	Become     bool
	BecomeUser string
	// becomeSet records that the document set become explicitly, so a
	// task-level false can override a play-level true.
	becomeSet bool

	Register string
	When     string
	Notify   []string
	Tags     []string
	Vars     map[string]any

	IgnoreErrors bool

	// Loop holds the raw loop source: a list, a template string, or nil.
	Loop     any
	LoopVar  string
	IndexVar string
}

// HasLoop reports whether the task iterates.
func (t *Task) HasLoop() bool {
	return t.Loop != nil
}

// EffectiveBecome merges the task's escalation with the play default. A
// task-level true always escalates; an explicit task-level false overrides a
// play-level true. The user defaults to root.
func (t *Task) EffectiveBecome(p *Play) (bool, string) {
	become := t.Become || (p.Become && !t.becomeSet)
	user := t.BecomeUser
	if user == "" {
		user = p.BecomeUser
	}
	if user == "" {
		user = "root"
	}
	return become, user
}

// Result is the outcome of one task execution on one host.
type Result struct {
	Changed     bool
	Failed      bool
	Skipped     bool
	Unreachable bool
	Msg         string
	Values      map[string]any
}

// RegisterValue builds the map stored under a register name: the outcome
// flags plus any module-provided values flattened alongside.
func (r *Result) RegisterValue() map[string]any {
	out := map[string]any{
		"changed": r.Changed,
		"failed":  r.Failed,
		"skipped": r.Skipped,
		"msg":     r.Msg,
	}
	for k, v := range r.Values {
		out[k] = v
	}
	return out
}
