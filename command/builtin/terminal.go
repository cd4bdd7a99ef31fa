package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// terminal shares the user streams between ask_user and send_message.
// Input is read by a single goroutine so a pending question can give up when
// its context ends; a line typed after that answers the next question.
type terminal struct {
	mu  sync.Mutex // guards out
	out io.Writer

	asking sync.Mutex // one question at a time
	in     io.Reader
	start  sync.Once
	lines  chan string
	err    error // set before lines is closed
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: in, out: out, lines: make(chan string, 1)}
}

func (t *terminal) readLines() {
	r := bufio.NewReader(t.in)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			t.lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			t.err = err
			close(t.lines)
			return
		}
	}
}

func (t *terminal) say(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.out, msg)
	return err
}

// ask prints question with a prompt and waits for the next line of input.
// It returns the read error (io.EOF once input closes) or ctx.Err().
func (t *terminal) ask(ctx context.Context, question string) (string, error) {
	t.asking.Lock()
	defer t.asking.Unlock()

	t.mu.Lock()
	_, err := fmt.Fprintf(t.out, "%s\n> ", question)
	t.mu.Unlock()
	if err != nil {
		return "", err
	}

	t.start.Do(func() { go t.readLines() })
	select {
	case line, ok := <-t.lines:
		if !ok {
			return "", t.err
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
