package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// constraints evaluates Param.Constraint tags. validator.Validate caches
// parsed tags and is safe for concurrent use.
var constraints = validator.New()

// ValidateArgs checks args against the parameter schema in d. It reports
// missing required parameters, values of the wrong type, parameters the schema
// does not declare, and failed constraints, all in one *InvalidArgumentsError.
// A null value counts as absent.
func ValidateArgs(d Descriptor, args Args) error {
	var violations []Violation

	for _, p := range d.Params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				violations = append(violations, Violation{Param: p.Name, Reason: "missing required parameter"})
			}
			continue
		}
		if !matchesType(v, p.Type) {
			violations = append(violations, Violation{
				Param:  p.Name,
				Reason: fmt.Sprintf("expected %s, got %s", p.Type, jsonTypeOf(v)),
			})
			continue
		}
		if p.Constraint != "" {
			if reason := checkConstraint(v, p); reason != "" {
				violations = append(violations, Violation{Param: p.Name, Reason: reason})
			}
		}
	}

	for name := range args {
		if _, ok := d.Param(name); !ok {
			violations = append(violations, Violation{Param: name, Reason: "unknown parameter"})
		}
	}

	if len(violations) == 0 {
		return nil
	}
	sortViolations(violations)
	return &InvalidArgumentsError{Command: d.Name, Violations: violations}
}

// sortViolations orders by parameter, then reason.
func sortViolations(vs []Violation) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Param != vs[j].Param {
			return vs[i].Param < vs[j].Param
		}
		return vs[i].Reason < vs[j].Reason
	})
}

func matchesType(v any, t ParamType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		_, ok := asInt(v)
		return ok
	case TypeNumber:
		_, ok := Args{"v": v}.Float("v")
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	default:
		// An undeclared type accepts anything.
		return true
	}
}

func jsonTypeOf(v any) string {
	switch n := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if _, ok := asInt(n); ok {
			return "integer"
		}
		return "number"
	case int, int64, json.Number:
		return "integer"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// checkConstraint returns a violation reason, or "" when v satisfies the tag.
// Integer parameters are validated as ints so numeric tags compare values.
func checkConstraint(v any, p Param) (reason string) {
	defer func() {
		// validator panics on unknown tags; surface that as a violation
		// instead of crashing the loop.
		if r := recover(); r != nil {
			reason = fmt.Sprintf("invalid constraint %q", p.Constraint)
		}
	}()

	value := v
	if p.Type == TypeInteger {
		n, _ := asInt(v)
		value = n
	}

	err := constraints.Var(value, p.Constraint)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed constraint %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed constraint %s", fe.Tag())
	}
	return err.Error()
}
