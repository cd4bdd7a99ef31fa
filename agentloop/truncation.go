package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultTruncationModes picks the character truncation mode per command.
// Listings and search hits keep their end; unlisted commands keep head and
// tail.
var DefaultTruncationModes = map[string]TruncationMode{
	"list_files":   TruncateTail,
	"search_files": TruncateTail,
	"write_file":   TruncateTail,
}

// DefaultLineLimits caps rendered output lines per command, applied after
// character truncation.
var DefaultLineLimits = map[string]int{
	"run_shell":    256,
	"search_files": 200,
	"list_files":   500,
}

// Truncation limits the command output rendered for one history entry.
type Truncation struct {
	// MaxChars caps output characters. Zero or less disables all truncation.
	MaxChars int
	// MaxLines caps output lines for every command. Zero falls back to
	// DefaultLineLimits.
	MaxLines int
}

// Apply shortens the output of command: characters first, in the command's
// mode, then lines.
func (t Truncation) Apply(command, output string) string {
	if t.MaxChars <= 0 {
		return output
	}
	mode, ok := DefaultTruncationModes[command]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, t.MaxChars, mode)

	maxLines := t.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultLineLimits[command]
	}
	return TruncateLines(result, maxLines)
}

// TruncateOutput shortens output to at most maxChars bytes of content plus a
// marker saying how much was removed. Cuts fall on rune boundaries. A
// non-positive maxChars disables truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	switch mode {
	case TruncateTail:
		start := runeStartAfter(output, len(output)-maxChars)
		return fmt.Sprintf("[... first %d characters truncated ...]\n", start) + output[start:]
	default:
		head := runeStartBefore(output, maxChars/2)
		tail := runeStartAfter(output, len(output)-(maxChars-maxChars/2))
		return output[:head] +
			fmt.Sprintf("\n[... %d characters truncated ...]\n", tail-head) +
			output[tail:]
	}
}

// runeStartBefore moves i back to the start of the rune containing it.
func runeStartBefore(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeStartAfter moves i forward to the next rune start.
func runeStartAfter(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}
