package command

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegistrySealed is returned by Register once the registry is sealed.
	ErrRegistrySealed = errors.New("command registry is sealed")

	// ErrInvalidCommand is returned by Register for a command without a name.
	ErrInvalidCommand = errors.New("invalid command")
)

// DuplicateCommandError reports a second registration under an existing name.
type DuplicateCommandError struct {
	Name string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("command %q is already registered", e.Name)
}

// UnknownCommandError reports a lookup of a name that is not registered.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// Violation is one failed schema constraint.
type Violation struct {
	Param  string `json:"param"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	return v.Param + ": " + v.Reason
}

// InvalidArgumentsError lists every constraint an argument set violated.
type InvalidArgumentsError struct {
	Command    string
	Violations []Violation
}

func (e *InvalidArgumentsError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid arguments for %q: %s", e.Command, strings.Join(parts, "; "))
}

// ExecutionError is an unexpected fault raised while a command executed,
// as opposed to an expected failure reported through Result.
type ExecutionError struct {
	Command string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command %q faulted: %v", e.Command, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
