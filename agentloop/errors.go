package agentloop

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyGoal      = errors.New("goal must not be empty")
	ErrInvalidBudget  = errors.New("budget must be at least 1")
	ErrSessionStarted = errors.New("session has already been run")
)

// LLMCommunicationError reports that the LLM could not be reached or did not
// answer after the client exhausted its retries.
type LLMCommunicationError struct {
	Cause error
}

func (e *LLMCommunicationError) Error() string {
	return fmt.Sprintf("llm communication failed: %v", e.Cause)
}

func (e *LLMCommunicationError) Unwrap() error {
	return e.Cause
}

// CancelledError reports that the caller cancelled the session. State is the
// boundary at which cancellation was observed.
type CancelledError struct {
	State State
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("session cancelled at %s: %v", e.State, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}
