package command

import "context"

// Handler is the function signature for command execution.
type Handler func(ctx context.Context, args Args, env Env) (Result, error)

// Func pairs a Descriptor with a Handler. Validation is derived from the
// descriptor's parameter schema, optionally followed by Check for rules the
// schema cannot express (e.g. mutually exclusive parameters).
type Func struct {
	Descriptor Descriptor
	Handler    Handler
	Check      func(args Args) []Violation
}

var _ Command = (*Func)(nil)

func (f *Func) Describe() Descriptor {
	return f.Descriptor
}

func (f *Func) Validate(args Args) error {
	err := ValidateArgs(f.Descriptor, args)
	if f.Check == nil {
		return err
	}
	extra := f.Check(args)
	if len(extra) == 0 {
		return err
	}
	var violations []Violation
	if err != nil {
		violations = err.(*InvalidArgumentsError).Violations
	}
	violations = append(violations, extra...)
	sortViolations(violations)
	return &InvalidArgumentsError{Command: f.Descriptor.Name, Violations: violations}
}

func (f *Func) Execute(ctx context.Context, args Args, env Env) (Result, error) {
	if f.Handler == nil {
		return Failuref("command %q has no handler", f.Descriptor.Name), nil
	}
	return f.Handler(ctx, args, env)
}
