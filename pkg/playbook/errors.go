// Package playbook provides the play and task model, the order-sensitive
// YAML parser, and the orchestrator that executes plays against an inventory.
package playbook

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an execution error for handling and reporting.
type ErrorKind string

const (
	// ErrorKindParse indicates malformed playbook input.
	// Fatal for the whole load: nothing runs.
	ErrorKindParse ErrorKind = "parse"

	// ErrorKindConnection indicates the transport could not reach the host.
	// The host is reported unreachable, not failed.
	ErrorKindConnection ErrorKind = "connection"

	// ErrorKindModule indicates a module rejected its arguments or failed
	// during execution.
	ErrorKindModule ErrorKind = "module"

	// ErrorKindInventory indicates an inventory load or lookup problem.
	ErrorKindInventory ErrorKind = "inventory"
)

// Error represents a classified playbook error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Host is the target host involved, if applicable.
	Host string `json:"host,omitempty"`

	// Task is the task name involved, if applicable.
	Task string `json:"task,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Host != "" && e.Task != "":
		return fmt.Sprintf("[%s] %s (host=%s, task=%s)%s",
			e.Kind, e.Message, e.Host, e.Task, e.unwrapSuffix())
	case e.Host != "":
		return fmt.Sprintf("[%s] %s (host=%s)%s", e.Kind, e.Message, e.Host, e.unwrapSuffix())
	case e.Task != "":
		return fmt.Sprintf("[%s] %s (task=%s)%s", e.Kind, e.Message, e.Task, e.unwrapSuffix())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Kind, e.Message, e.unwrapSuffix())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewParseError creates a parse error.
func NewParseError(message string, err error) *Error {
	return &Error{Kind: ErrorKindParse, Message: message, Err: err}
}

// NewConnectionError creates a connection error.
func NewConnectionError(message string, err error) *Error {
	return &Error{Kind: ErrorKindConnection, Message: message, Err: err}
}

// NewModuleError creates a module error.
func NewModuleError(message string, err error) *Error {
	return &Error{Kind: ErrorKindModule, Message: message, Err: err}
}

// NewInventoryError creates an inventory error.
func NewInventoryError(message string, err error) *Error {
	return &Error{Kind: ErrorKindInventory, Message: message, Err: err}
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithHost adds host context to an error.
func (e *Error) WithHost(host string) *Error {
	e.Host = host
	return e
}

// WithTask adds task context to an error.
func (e *Error) WithTask(task string) *Error {
	e.Task = task
	return e
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	return isKind(err, ErrorKindParse)
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	return isKind(err, ErrorKindConnection)
}

// IsModuleError checks if an error is a module error.
func IsModuleError(err error) bool {
	return isKind(err, ErrorKindModule)
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
