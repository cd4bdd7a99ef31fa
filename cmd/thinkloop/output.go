package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/thinkloop/agentloop"
	"github.com/martinemde/thinkloop/store"
)

type outputFlags struct {
	json bool
	yaml bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON")
	cmd.Flags().BoolVar(&f.yaml, "yaml", false, "print YAML")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func (f outputFlags) structured() bool {
	return f.json || f.yaml
}

// encode writes v as JSON or YAML. It reports false when neither was asked
// for.
func (f outputFlags) encode(w io.Writer, v any) (bool, error) {
	switch {
	case f.json:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case f.yaml:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func writeOutcome(w io.Writer, o *agentloop.Outcome) {
	fmt.Fprintf(w, "session:    %s\n", o.SessionID)
	fmt.Fprintf(w, "goal:       %s\n", o.Goal)
	fmt.Fprintf(w, "state:      %s\n", o.State)
	fmt.Fprintf(w, "iterations: %d of %d\n", o.Iterations, o.Budget)
	if o.Error != "" {
		fmt.Fprintf(w, "error:      %s\n", o.Error)
	}
	fmt.Fprintf(w, "started:    %s\n", o.StartedAt.Format(time.RFC3339))
	if !o.FinishedAt.IsZero() {
		fmt.Fprintf(w, "finished:   %s\n", o.FinishedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "HISTORY:")
	if len(o.History) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	fmt.Fprint(w, agentloop.RenderTranscript(o.History, agentloop.Truncation{}))
}

func writeSessions(w io.Writer, sessions []store.SessionSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tITERATIONS\tSTARTED\tGOAL")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			s.ID, s.State, s.Iterations, s.Budget, s.StartedAt.Local().Format(time.DateTime), oneLine(s.Goal, 60))
	}
	return tw.Flush()
}

func oneLine(s string, width int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' {
			r[i] = ' '
		}
	}
	if len(r) > width {
		return string(r[:width-3]) + "..."
	}
	return string(r)
}
