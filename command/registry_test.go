package command

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(name, description string) *Func {
	return &Func{
		Descriptor: Descriptor{Name: name, Description: description},
		Handler: func(ctx context.Context, args Args, env Env) (Result, error) {
			return Success(name), nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestCommand("echo", "Echo text")))

	cmd, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", cmd.Describe().Name)
	assert.True(t, reg.Has("echo"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDuplicateKeepsFirst(t *testing.T) {
	reg := NewRegistry()
	first := newTestCommand("echo", "first")
	second := newTestCommand("echo", "second")

	require.NoError(t, reg.Register(first))
	err := reg.Register(second)

	var dup *DuplicateCommandError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "echo", dup.Name)

	cmd, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "first", cmd.Describe().Description)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("missing")

	var unknown *UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestRegistryRejectsInvalidCommands(t *testing.T) {
	reg := NewRegistry()
	assert.ErrorIs(t, reg.Register(nil), ErrInvalidCommand)
	assert.ErrorIs(t, reg.Register(newTestCommand("", "nameless")), ErrInvalidCommand)
	assert.Zero(t, reg.Len())
}

func TestRegistrySeal(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(newTestCommand("a", "A"))
	reg.Seal()
	reg.Seal()

	assert.True(t, reg.Sealed())
	err := reg.Register(newTestCommand("b", "B"))
	assert.True(t, errors.Is(err, ErrRegistrySealed))
	assert.False(t, reg.Has("b"))
}

func TestRegistryMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(newTestCommand("a", "A"))
	assert.Panics(t, func() { reg.MustRegister(newTestCommand("a", "again")) })
}

func TestListAvailableSortedRegardlessOfOrder(t *testing.T) {
	orders := [][]string{
		{"write_file", "echo", "read_file", "ask_user"},
		{"ask_user", "read_file", "echo", "write_file"},
		{"read_file", "write_file", "ask_user", "echo"},
	}
	want := []Summary{
		{Name: "ask_user", Description: "desc ask_user"},
		{Name: "echo", Description: "desc echo"},
		{Name: "read_file", Description: "desc read_file"},
		{Name: "write_file", Description: "desc write_file"},
	}

	for _, order := range orders {
		reg := NewRegistry()
		for _, name := range order {
			reg.MustRegister(newTestCommand(name, "desc "+name))
		}
		got := slices.Collect(reg.ListAvailable())
		assert.Equal(t, want, got, "registration order %v", order)
	}
}

func TestListAvailableStopsEarly(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		reg.MustRegister(newTestCommand(name, name))
	}

	var seen []string
	for s := range reg.ListAvailable() {
		seen = append(seen, s.Name)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestNamesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.MustRegister(newTestCommand(name, name))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}
