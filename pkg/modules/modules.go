// Package modules implements the execution modules and the registry the
// orchestrator dispatches through. Modules run commands through a Conn, so
// the same implementations work over SSH and on localhost.
package modules

import (
	"fmt"
	"sort"

	"github.com/opsailor/opsail/pkg/telemetry"
)

// Output is the raw outcome of one command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports a zero exit code.
func (o *Output) Success() bool {
	return o.ExitCode == 0
}

// Conn abstracts a target host. Run executes as the login user,
// RunPrivileged escalates through sudo, WriteFile places file content.
// Errors are transport-level only; command failures come back as non-zero
// exit codes.
type Conn interface {
	Run(cmd string) (*Output, error)
	RunPrivileged(cmd, user string) (*Output, error)
	WriteFile(path string, content []byte, privileged bool) error
}

// ExecContext carries per-task execution state into a module.
type ExecContext struct {
	Conn       Conn
	Become     bool
	BecomeUser string
	Log        *telemetry.Logger
}

// Run executes a command, escalating when the task requested become.
func (e *ExecContext) Run(cmd string) (*Output, error) {
	if e.Become {
		return e.Conn.RunPrivileged(cmd, e.BecomeUser)
	}
	return e.Conn.Run(cmd)
}

// RunPrivileged escalates regardless of the task's become setting. Modules
// use it for operations that always need root, like package installs.
func (e *ExecContext) RunPrivileged(cmd string) (*Output, error) {
	user := e.BecomeUser
	if user == "" {
		user = "root"
	}
	return e.Conn.RunPrivileged(cmd, user)
}

// WriteFile writes content, escalating when the task requested become.
func (e *ExecContext) WriteFile(path string, content []byte) error {
	return e.Conn.WriteFile(path, content, e.Become)
}

// Result is what a module reports back for one invocation.
type Result struct {
	Stdout  string
	Stderr  string
	Changed bool
	Failed  bool
	Msg     string
}

// Module is a unit of target-side work.
type Module interface {
	// Name returns the module id used in playbooks.
	Name() string

	// Execute runs the module with rendered arguments.
	Execute(ec *ExecContext, args map[string]any) (*Result, error)
}

// Registry maps module ids to implementations.
type Registry struct {
	modules map[string]Module
	log     *telemetry.Logger
}

// NewRegistry creates a registry with all built-in modules installed.
func NewRegistry(log *telemetry.Logger) *Registry {
	r := &Registry{
		modules: map[string]Module{},
		log:     log.NewComponentLogger("modules"),
	}
	r.Register(&CommandModule{shell: false})
	r.Register(&CommandModule{shell: true})
	r.Register(&DebugModule{})
	r.Register(&CopyModule{})
	r.Register(&FileModule{})
	r.Register(&TemplateModule{})
	r.Register(&LineInFileModule{})
	r.Register(&PackageModule{})
	r.Register(&ServiceModule{})
	r.Register(&UserModule{})
	return r
}

// Register installs a module, replacing any previous one of the same name.
func (r *Registry) Register(m Module) {
	r.modules[m.Name()] = m
}

// Get looks up a module by id.
func (r *Registry) Get(name string) (Module, error) {
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("unknown module %q (available: %v)", name, r.Names())
	}
	return m, nil
}

// Names returns the registered module ids, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches one module invocation.
func (r *Registry) Execute(name string, ec *ExecContext, args map[string]any) (*Result, error) {
	m, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if ec.Log == nil {
		ec.Log = r.log
	}
	return m.Execute(ec, args)
}

func failf(format string, args ...any) *Result {
	return &Result{Failed: true, Msg: fmt.Sprintf(format, args...)}
}

func okf(changed bool, format string, args ...any) *Result {
	return &Result{Changed: changed, Msg: fmt.Sprintf(format, args...)}
}
