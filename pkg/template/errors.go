package template

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rendering error.
type ErrorKind string

const (
	// ErrorKindUndefinedVariable indicates a template referenced a variable
	// that is not present in the rendering context.
	ErrorKindUndefinedVariable ErrorKind = "undefined_variable"

	// ErrorKindRecursionLimit indicates rendering did not reach a fixed
	// point within the pass limit.
	ErrorKindRecursionLimit ErrorKind = "recursion_limit"

	// ErrorKindLoopResolution indicates a loop source could not be resolved
	// to a list of items.
	ErrorKindLoopResolution ErrorKind = "loop_resolution"

	// ErrorKindSyntax indicates the template text could not be compiled.
	ErrorKindSyntax ErrorKind = "syntax"
)

// Error represents a classified rendering error.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewUndefinedVariableError creates an undefined-variable error.
func NewUndefinedVariableError(message string, err error) *Error {
	return &Error{Kind: ErrorKindUndefinedVariable, Message: message, Err: err}
}

// NewRecursionLimitError creates a recursion-limit error.
func NewRecursionLimitError(message string, err error) *Error {
	return &Error{Kind: ErrorKindRecursionLimit, Message: message, Err: err}
}

// NewLoopResolutionError creates a loop-resolution error.
func NewLoopResolutionError(message string, err error) *Error {
	return &Error{Kind: ErrorKindLoopResolution, Message: message, Err: err}
}

// NewSyntaxError creates a syntax error.
func NewSyntaxError(message string, err error) *Error {
	return &Error{Kind: ErrorKindSyntax, Message: message, Err: err}
}

// IsUndefinedVariable checks if an error is an undefined-variable error.
func IsUndefinedVariable(err error) bool {
	return isKind(err, ErrorKindUndefinedVariable)
}

// IsRecursionLimit checks if an error is a recursion-limit error.
func IsRecursionLimit(err error) bool {
	return isKind(err, ErrorKindRecursionLimit)
}

// IsLoopResolution checks if an error is a loop-resolution error.
func IsLoopResolution(err error) bool {
	return isKind(err, ErrorKindLoopResolution)
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
