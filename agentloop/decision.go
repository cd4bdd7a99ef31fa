package agentloop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/thinkloop/command"
)

// Decision is the structured choice extracted from one LLM response. It is
// untrusted until the registry and the command's Validate accept it.
type Decision struct {
	Command   string       `json:"command" yaml:"command"`
	Args      command.Args `json:"args" yaml:"args"`
	Rationale string       `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Raw       string       `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// ParseError reports an LLM response that does not contain a decision.
type ParseError struct {
	Raw    string
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unparseable decision: %s: %v", e.Reason, e.Cause)
	}
	return "unparseable decision: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

type decisionEnvelope struct {
	Command   json.RawMessage `json:"command"`
	Args      json.RawMessage `json:"args"`
	Rationale string          `json:"rationale"`
	Thoughts  *struct {
		Reasoning string `json:"reasoning"`
		Text      string `json:"text"`
	} `json:"thoughts"`
}

type commandEnvelope struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ParseDecision extracts a Decision from raw LLM output. The JSON object is
// taken from the first '{' to the last '}', so surrounding prose and code
// fences are ignored. Two shapes are accepted:
//
//	{"command": {"name": "echo", "args": {"text": "hi"}}, "rationale": "..."}
//	{"command": "echo", "args": {"text": "hi"}}
func ParseDecision(raw string) (Decision, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Decision{}, &ParseError{Raw: raw, Reason: "no JSON object found"}
	}

	var env decisionEnvelope
	if err := json.Unmarshal([]byte(raw[start:end+1]), &env); err != nil {
		return Decision{}, &ParseError{Raw: raw, Reason: "invalid JSON", Cause: err}
	}

	d := Decision{Rationale: env.Rationale, Raw: raw}
	if d.Rationale == "" && env.Thoughts != nil {
		d.Rationale = env.Thoughts.Reasoning
		if d.Rationale == "" {
			d.Rationale = env.Thoughts.Text
		}
	}

	rawArgs := env.Args
	cmd := bytes.TrimSpace(env.Command)
	switch {
	case len(cmd) == 0 || bytes.Equal(cmd, []byte("null")):
		return Decision{}, &ParseError{Raw: raw, Reason: `missing "command"`}
	case cmd[0] == '"':
		if err := json.Unmarshal(cmd, &d.Command); err != nil {
			return Decision{}, &ParseError{Raw: raw, Reason: "invalid command name", Cause: err}
		}
	case cmd[0] == '{':
		var ce commandEnvelope
		if err := json.Unmarshal(cmd, &ce); err != nil {
			return Decision{}, &ParseError{Raw: raw, Reason: "invalid command object", Cause: err}
		}
		d.Command = ce.Name
		if len(ce.Args) > 0 {
			rawArgs = ce.Args
		}
	default:
		return Decision{}, &ParseError{Raw: raw, Reason: `"command" must be a string or an object`}
	}

	d.Command = strings.TrimSpace(d.Command)
	if d.Command == "" {
		return Decision{}, &ParseError{Raw: raw, Reason: "empty command name"}
	}

	args, err := command.ParseArgs(rawArgs)
	if err != nil {
		return Decision{}, &ParseError{Raw: raw, Reason: "arguments must be a JSON object", Cause: err}
	}
	d.Args = args
	return d, nil
}

// signature identifies a decision for loop detection.
func (d Decision) signature() string {
	args, _ := json.Marshal(d.Args)
	return decisionSignature(d.Command, args)
}
