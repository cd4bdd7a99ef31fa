package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/martinemde/thinkloop/command"
)

// EntryKind discriminates how an iteration ended.
type EntryKind string

const (
	// EntryDispatched: the command ran and returned a Result.
	EntryDispatched EntryKind = "dispatched"
	// EntryRejected: the decision named an unknown command or invalid args.
	EntryRejected EntryKind = "rejected"
	// EntryFault: the command returned an error, panicked or timed out.
	EntryFault EntryKind = "fault"
)

// Entry records one iteration of the loop.
type Entry struct {
	Iteration int            `json:"iteration" yaml:"iteration"`
	Kind      EntryKind      `json:"kind" yaml:"kind"`
	Decision  Decision       `json:"decision" yaml:"decision"`
	Result    command.Result `json:"result" yaml:"result"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// History is the append-only, chronological record of a session. It is safe
// for concurrent readers while the owning session appends.
type History struct {
	entries []Entry
	mu      sync.RWMutex
}

// NewHistory creates a History seeded with entries.
func NewHistory(entries ...Entry) *History {
	h := &History{}
	h.entries = append(h.entries, entries...)
	return h
}

// Append adds e to the end of the history.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of all entries.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// DecisionContext is everything the prompt builder needs to ask for the next
// decision.
type DecisionContext struct {
	Goal string
	// Entries are chronological, oldest first.
	Entries []Entry
	// Remaining counts iterations left, including the one being decided.
	Remaining int
	// Iteration is the 1-based number of the iteration being decided.
	Iteration int
}

// RenderEntry renders one history entry as prompt text, shortening the
// command's output and error with t.
func RenderEntry(e Entry, t Truncation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s %s\n", e.Iteration, e.Decision.Command, renderArgs(e.Decision.Args))
	if e.Decision.Rationale != "" {
		writeField(&b, "rationale", e.Decision.Rationale)
	}
	status := string(e.Result.Status)
	if e.Kind != EntryDispatched {
		status += " (" + string(e.Kind) + ")"
	}
	writeField(&b, "status", status)
	if e.Result.Error != "" {
		writeField(&b, "error", TruncateOutput(e.Result.Error, t.MaxChars, TruncateHeadTail))
	}
	if out := e.Result.OutputText(); out != "" {
		writeField(&b, "output", t.Apply(e.Decision.Command, out))
	}
	return b.String()
}

// RenderTranscript renders every entry in order.
func RenderTranscript(entries []Entry, t Truncation) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(RenderEntry(e, t))
	}
	return b.String()
}

func renderArgs(args command.Args) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(args))
	}
	return string(data)
}

// writeField writes "    name: value", indenting continuation lines so
// multi-line values stay inside their entry.
func writeField(b *strings.Builder, name, value string) {
	value = strings.TrimRight(value, "\n")
	value = strings.ReplaceAll(value, "\n", "\n      ")
	fmt.Fprintf(b, "    %s: %s\n", name, value)
}
