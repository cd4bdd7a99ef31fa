package agentloop

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateOutput(t *testing.T) {
	short := "hello"
	if got := TruncateOutput(short, 10, TruncateHeadTail); got != short {
		t.Errorf("short output changed: %q", got)
	}
	if got := TruncateOutput(strings.Repeat("x", 50), 0, TruncateHeadTail); len(got) != 50 {
		t.Errorf("zero limit should disable truncation")
	}

	out := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := TruncateOutput(out, 20, TruncateHeadTail)
	if !strings.HasPrefix(got, strings.Repeat("a", 10)+"\n") {
		t.Errorf("head not kept: %q", got)
	}
	if !strings.HasSuffix(got, "\n"+strings.Repeat("b", 10)) {
		t.Errorf("tail not kept: %q", got)
	}
	if !strings.Contains(got, "[... 80 characters truncated ...]") {
		t.Errorf("missing marker: %q", got)
	}

	got = TruncateOutput(out, 20, TruncateTail)
	want := "[... first 80 characters truncated ...]\n" + strings.Repeat("b", 20)
	if got != want {
		t.Errorf("tail mode = %q, want %q", got, want)
	}
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, strings.Repeat("l", i+1))
	}
	input := strings.Join(lines, "\n")

	if got := TruncateLines(input, 20); got != input {
		t.Error("input under the limit changed")
	}
	got := TruncateLines(input, 4)
	want := "l\nll\n[... 6 lines omitted ...]\n" + lines[8] + "\n" + lines[9]
	if got != want {
		t.Errorf("TruncateLines = %q, want %q", got, want)
	}
}

func TestTruncateOutputKeepsRunesWhole(t *testing.T) {
	out := strings.Repeat("é", 30)
	for _, mode := range []TruncationMode{TruncateHeadTail, TruncateTail} {
		for limit := 1; limit < len(out); limit++ {
			got := TruncateOutput(out, limit, mode)
			if !utf8.ValidString(got) {
				t.Fatalf("%s limit %d split a rune: %q", mode, limit, got)
			}
		}
	}
	got := TruncateOutput(out, 21, TruncateTail)
	want := "[... first 40 characters truncated ...]\n" + strings.Repeat("é", 10)
	if got != want {
		t.Errorf("tail mode = %q, want %q", got, want)
	}
}

func TestTruncationApply(t *testing.T) {
	out := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	tr := Truncation{MaxChars: 20}

	if got := (Truncation{}).Apply("run_shell", out); got != out {
		t.Errorf("zero truncation changed output: %q", got)
	}
	for _, name := range []string{"list_files", "search_files"} {
		want := "[... first 80 characters truncated ...]\n" + strings.Repeat("b", 20)
		if got := tr.Apply(name, out); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if got := tr.Apply("read_file", out); !strings.HasPrefix(got, strings.Repeat("a", 10)+"\n[... 80") {
		t.Errorf("read_file should keep head and tail: %q", got)
	}

	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	long := strings.Join(lines, "\n")
	wide := Truncation{MaxChars: 1 << 20}
	if got := wide.Apply("run_shell", long); !strings.Contains(got, "[... 44 lines omitted ...]") {
		t.Errorf("run_shell default line limit not applied")
	}
	if got := wide.Apply("read_file", long); got != long {
		t.Errorf("read_file has no default line limit")
	}
	capped := Truncation{MaxChars: 1 << 20, MaxLines: 4}
	want := "line 0\nline 1\n[... 296 lines omitted ...]\nline 298\nline 299"
	if got := capped.Apply("read_file", long); got != want {
		t.Errorf("MaxLines = %q, want %q", got, want)
	}
}
