package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/martinemde/thinkloop/command"
)

const (
	DefaultHistoryWindow = 20
	DefaultOutputLimit   = 2000
	DefaultLoopWindow    = 6
)

const defaultPreamble = `You are an autonomous agent working toward a goal. Each turn you choose exactly one command from the list below. ` +
	`You will see the result of every command you choose. Decide the single next command that makes the most progress. ` +
	`Use only the commands listed. When the goal is achieved, use the command that reports completion.`

const responseFooter = "RESPOND WITH ONLY VALID JSON CONFORMING TO THE FOLLOWING SCHEMA:"

// decisionResponse documents the JSON envelope the model must produce.
type decisionResponse struct {
	Command   decisionCommand `json:"command" jsonschema:"description=The single command to run next"`
	Rationale string          `json:"rationale,omitempty" jsonschema:"description=One or two sentences on why this command makes progress"`
}

type decisionCommand struct {
	Name string         `json:"name" jsonschema:"description=Name of a command from the COMMANDS section"`
	Args map[string]any `json:"args,omitempty" jsonschema:"description=Arguments matching the parameters of that command"`
}

// PromptBuilder renders command usage and decision prompts from a registry.
// Output is a pure function of registry contents and inputs.
type PromptBuilder struct {
	registry      *command.Registry
	preamble      string
	historyWindow int
	truncation    Truncation
	loopWindow    int
	schema        string
}

// PromptOption configures a PromptBuilder.
type PromptOption func(*PromptBuilder)

// WithHistoryWindow keeps only the last n entries in the prompt. Zero or
// less keeps every entry.
func WithHistoryWindow(n int) PromptOption {
	return func(b *PromptBuilder) { b.historyWindow = n }
}

// WithOutputLimit caps each entry's rendered output at n characters.
func WithOutputLimit(n int) PromptOption {
	return func(b *PromptBuilder) { b.truncation.MaxChars = n }
}

// WithOutputLines caps each entry's rendered output at n lines, overriding
// DefaultLineLimits.
func WithOutputLines(n int) PromptOption {
	return func(b *PromptBuilder) { b.truncation.MaxLines = n }
}

// WithLoopWindow sets how many recent decisions are checked for repetition.
// Values below 2 disable the loop warning.
func WithLoopWindow(n int) PromptOption {
	return func(b *PromptBuilder) { b.loopWindow = n }
}

// WithPreamble replaces the opening instructions.
func WithPreamble(text string) PromptOption {
	return func(b *PromptBuilder) { b.preamble = text }
}

// NewPromptBuilder creates a PromptBuilder over registry.
func NewPromptBuilder(registry *command.Registry, opts ...PromptOption) *PromptBuilder {
	b := &PromptBuilder{
		registry:      registry,
		preamble:      defaultPreamble,
		historyWindow: DefaultHistoryWindow,
		truncation:    Truncation{MaxChars: DefaultOutputLimit},
		loopWindow:    DefaultLoopWindow,
		schema:        decisionSchema(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// decisionSchema reflects decisionResponse into an indented JSON schema.
func decisionSchema() string {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&decisionResponse{})
	s.Version = ""
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("agentloop: decision schema: %v", err))
	}
	return string(data)
}

// CommandPrompt returns the usage block for name. For an unregistered name it
// returns the not-found text and false.
func (b *PromptBuilder) CommandPrompt(name string) (string, bool) {
	cmd, err := b.registry.Get(name)
	if err != nil {
		return NotFoundText(name), false
	}
	return RenderUsage(cmd.Describe()), true
}

// NotFoundText is the CommandPrompt result for an unregistered name.
func NotFoundText(name string) string {
	return fmt.Sprintf("command %q not found", name)
}

// RenderUsage renders a descriptor as a usage block.
func RenderUsage(d command.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command: %s\n", d.Name)
	fmt.Fprintf(&b, "Description: %s\n", d.Description)
	if len(d.Params) == 0 {
		b.WriteString("Arguments: None\n")
		return b.String()
	}
	b.WriteString("Arguments:\n")
	for _, p := range d.Params {
		attrs := []string{string(p.Type)}
		if p.Required {
			attrs = append(attrs, "required")
		}
		if p.Constraint != "" {
			attrs = append(attrs, p.Constraint)
		}
		fmt.Fprintf(&b, "  - %s (%s)", p.Name, strings.Join(attrs, ", "))
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DecisionPrompt renders the full prompt asking for the next decision. The
// sections always appear in this order: preamble, goal, history, commands,
// response format.
func (b *PromptBuilder) DecisionPrompt(dc DecisionContext) string {
	var sb strings.Builder

	sb.WriteString(b.preamble)
	sb.WriteString("\n\n")

	sb.WriteString("GOAL:\n")
	sb.WriteString(dc.Goal)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Iteration %d. Iterations remaining, including this one: %d\n\n", dc.Iteration, dc.Remaining)

	sb.WriteString("HISTORY:\n")
	b.writeHistory(&sb, dc.Entries)
	sb.WriteString("\n")

	sb.WriteString("COMMANDS:\n")
	first := true
	for d := range b.registry.Descriptors() {
		if !first {
			sb.WriteString("\n")
		}
		first = false
		sb.WriteString(RenderUsage(d))
	}
	if first {
		sb.WriteString("(no commands available)\n")
	}
	sb.WriteString("\n")

	sb.WriteString("RESPONSE FORMAT:\n")
	sb.WriteString(responseFooter)
	sb.WriteString("\n")
	sb.WriteString(b.schema)
	sb.WriteString("\n")
	return sb.String()
}

func (b *PromptBuilder) writeHistory(sb *strings.Builder, entries []Entry) {
	if len(entries) == 0 {
		sb.WriteString("(no commands have been run yet)\n")
		return
	}

	shown := entries
	if b.historyWindow > 0 && len(entries) > b.historyWindow {
		shown = entries[len(entries)-b.historyWindow:]
		fmt.Fprintf(sb, "(%d earlier entries omitted)\n", len(entries)-len(shown))
	}
	sb.WriteString(RenderTranscript(shown, b.truncation))

	if DetectLoop(entries, b.loopWindow) {
		fmt.Fprintf(sb, "WARNING: your last %d decisions repeat the same pattern. Choose a different command or different arguments.\n", b.loopWindow)
	}
}

// CorrectionPrompt appends a note about an unparseable response to prompt.
func (b *PromptBuilder) CorrectionPrompt(prompt string, perr error) string {
	return prompt + "\nYOUR PREVIOUS RESPONSE COULD NOT BE USED (" + perr.Error() + ").\n" + responseFooter + " ABOVE. NO PROSE, NO CODE FENCES.\n"
}

// Truncation returns the limits applied to each rendered entry.
func (b *PromptBuilder) Truncation() Truncation {
	return b.truncation
}

// LoopWindow returns the loop detection window.
func (b *PromptBuilder) LoopWindow() int {
	return b.loopWindow
}
