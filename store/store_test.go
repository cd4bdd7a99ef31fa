package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/thinkloop/agentloop"
	"github.com/martinemde/thinkloop/command"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "thinkloop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	started := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)

	require.NoError(t, s.RecordStart(ctx, "s1", "Say hello", 3, started))

	running, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, agentloop.State(StateRunning), running.State)
	assert.Empty(t, running.History)

	entries := []agentloop.Entry{
		{
			Iteration: 1,
			Kind:      agentloop.EntryRejected,
			Decision:  agentloop.Decision{Command: "foo", Args: command.Args{}, Raw: `{"command":"foo"}`},
			Result:    command.Failuref("unknown command %q", "foo"),
			Timestamp: started.Add(time.Second),
		},
		{
			Iteration: 2,
			Kind:      agentloop.EntryDispatched,
			Decision:  agentloop.Decision{Command: "echo", Args: command.Args{"text": "hello", "n": 2.0}, Rationale: "greet"},
			Result:    command.Success("hello"),
			Timestamp: started.Add(2 * time.Second),
		},
		{
			Iteration: 3,
			Kind:      agentloop.EntryDispatched,
			Decision:  agentloop.Decision{Command: "web_search", Args: command.Args{"query": "go"}},
			Result:    command.GoalComplete(map[string]any{"hits": []any{"a", "b"}}),
			Timestamp: started.Add(3 * time.Second),
		},
	}
	for _, e := range entries {
		require.NoError(t, s.RecordEntry(ctx, "s1", e))
	}

	finished := started.Add(time.Minute)
	require.NoError(t, s.RecordOutcome(ctx, &agentloop.Outcome{
		SessionID:  "s1",
		Goal:       "Say hello",
		Budget:     3,
		State:      agentloop.StateSucceeded,
		Iterations: 3,
		StartedAt:  started,
		FinishedAt: finished,
	}))

	got, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, agentloop.StateSucceeded, got.State)
	assert.Equal(t, 3, got.Iterations)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(finished))
	if diff := cmp.Diff(entries, got.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordEntryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.RecordStart(ctx, "s1", "goal", 2, time.Now()))

	e := agentloop.Entry{Iteration: 1, Kind: agentloop.EntryDispatched,
		Decision: agentloop.Decision{Command: "echo", Args: command.Args{}}, Result: command.Success("x"), Timestamp: time.Now()}
	require.NoError(t, s.RecordEntry(ctx, "s1", e))
	e.Result = command.Success("y")
	require.NoError(t, s.RecordEntry(ctx, "s1", e))

	entries, err := s.Entries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "y", entries[0].Result.Output)
}

func TestRecordEntryUnknownSession(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordEntry(context.Background(), "ghost", agentloop.Entry{Iteration: 1, Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordStart(ctx, id, "goal "+id, 5, base.Add(time.Duration(i)*time.Hour)))
	}

	all, err := s.Sessions(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, sum := range all {
		ids[i] = sum.ID
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
	assert.True(t, all[0].FinishedAt.IsZero())

	two, err := s.Sessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStoreAsSessionRecorder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	reg := command.NewRegistry()
	reg.MustRegister(&command.Func{
		Descriptor: command.Descriptor{Name: "task_complete", Description: "done",
			Params: []command.Param{{Name: "summary", Type: command.TypeString, Required: true}}},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			return command.GoalComplete(args.StringOr("summary", "")), nil
		},
	})
	responses := []string{`{"command":"nope"}`, `{"command":"task_complete","args":{"summary":"ok"}}`}
	var calls int
	llm := agentloop.LLMFunc(func(ctx context.Context, prompt string) (string, error) {
		r := responses[calls]
		calls++
		return r, nil
	})

	session := agentloop.NewSession(reg, llm, agentloop.WithRecorder(s))
	out, err := session.Run(ctx, "finish", 5)
	require.NoError(t, err)

	stored, err := s.Session(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, out.State, stored.State)
	assert.Equal(t, out.Iterations, stored.Iterations)
	require.Len(t, stored.History, 2)
	assert.Equal(t, agentloop.EntryRejected, stored.History[0].Kind)
	assert.Equal(t, "ok", stored.History[1].Result.Output)
}
