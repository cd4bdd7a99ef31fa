package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ParamType is the JSON type a parameter value must have.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one named argument of a command.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	// Constraint is an optional validator tag (e.g. "min=1,max=10",
	// "oneof=asc desc") checked once the value has the right type.
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// Descriptor is the serializable description of a command.
type Descriptor struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Params      []Param `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param returns the parameter with the given name.
func (d Descriptor) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Env is the read-only view of the running session handed to a command.
type Env interface {
	Goal() string
	Iteration() int
	Remaining() int
	// Transcript returns the rendered history the LLM currently sees.
	Transcript() string
}

// Command is a named unit of capability the agent can dispatch.
type Command interface {
	// Describe returns name, description and parameter schema. It must be pure.
	Describe() Descriptor

	// Validate checks args against the parameter schema and returns an
	// *InvalidArgumentsError listing every violated constraint.
	Validate(args Args) error

	// Execute performs the action. Expected failure modes are reported as a
	// Result with StatusFailure; a returned error signals an unexpected fault.
	Execute(ctx context.Context, args Args, env Env) (Result, error)
}

// Status is the outcome class of a command execution.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusFailure      Status = "failure"
	StatusGoalComplete Status = "goal_complete"
)

// Result is what a command reports back to the loop.
type Result struct {
	Status Status `json:"status" yaml:"status"`
	Output any    `json:"output,omitempty" yaml:"output,omitempty"`
	// Error is set iff Status is StatusFailure.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Success returns a successful Result carrying output.
func Success(output any) Result {
	return Result{Status: StatusSuccess, Output: output}
}

// GoalComplete returns a Result that ends the session successfully.
func GoalComplete(output any) Result {
	return Result{Status: StatusGoalComplete, Output: output}
}

// Failure returns a failed Result. A nil err still yields a non-empty detail.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("command failed")
	}
	return Result{Status: StatusFailure, Error: err.Error()}
}

// Failuref returns a failed Result with a formatted detail.
func Failuref(format string, a ...any) Result {
	return Failure(fmt.Errorf(format, a...))
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool { return r.Status == StatusFailure }

// OutputText renders Output for display. Strings are returned unchanged and
// other values are encoded as JSON, whose map keys are always sorted.
func (r Result) OutputText() string {
	switch v := r.Output.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprint(r.Output)
	}
	return string(data)
}

// Normalize checks a Result returned by a command. An unknown status is an
// error; a failure without detail gets a generic one.
func (r Result) Normalize() (Result, error) {
	switch r.Status {
	case StatusSuccess, StatusGoalComplete:
		r.Error = ""
		return r, nil
	case StatusFailure:
		if r.Error == "" {
			r.Error = "command failed"
		}
		return r, nil
	default:
		return r, fmt.Errorf("invalid result status %q", r.Status)
	}
}
