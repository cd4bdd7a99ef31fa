package agentloop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/martinemde/thinkloop/command"
)

const tracerName = "github.com/martinemde/thinkloop/agentloop"

// LLM produces the raw text of one decision for a prompt. Implementations
// handle transport retries; any error they return is final for the session.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMFunc adapts a function to the LLM interface.
type LLMFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f LLMFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Recorder persists a session as it runs. Errors are logged and never end
// the session.
type Recorder interface {
	RecordStart(ctx context.Context, sessionID, goal string, budget int, started time.Time) error
	RecordEntry(ctx context.Context, sessionID string, e Entry) error
	RecordOutcome(ctx context.Context, o *Outcome) error
}

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	ParseRetries   int           `json:"parse_retries"`   // re-queries after an unparseable response
	LLMTimeout     time.Duration `json:"llm_timeout"`     // per decision query, retries included; 0 = none
	CommandTimeout time.Duration `json:"command_timeout"` // per command execution; 0 = none
	AbortOnFault   bool          `json:"abort_on_fault"`  // fail the session when a command faults
	HistoryWindow  int           `json:"history_window"`  // entries rendered into the prompt; 0 = all
	OutputLimit    int           `json:"output_limit"`    // characters of output per rendered entry
	OutputLines    int           `json:"output_lines"`    // lines of output per rendered entry; 0 = per-command defaults
	LoopWindow     int           `json:"loop_window"`     // decisions checked for repetition
	EventBuffer    int           `json:"event_buffer"`
	// Preamble replaces the opening prompt instructions when set.
	Preamble string `json:"preamble,omitempty"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ParseRetries:   1,
		LLMTimeout:     5 * time.Minute,
		CommandTimeout: 2 * time.Minute,
		HistoryWindow:  DefaultHistoryWindow,
		OutputLimit:    DefaultOutputLimit,
		LoopWindow:     DefaultLoopWindow,
		EventBuffer:    256,
	}
}

// Outcome is the result of Run.
type Outcome struct {
	SessionID  string    `json:"session_id" yaml:"session_id"`
	Goal       string    `json:"goal" yaml:"goal"`
	Budget     int       `json:"budget" yaml:"budget"`
	State      State     `json:"state" yaml:"state"`
	Iterations int       `json:"iterations" yaml:"iterations"`
	History    []Entry   `json:"history" yaml:"history"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Err is the fatal error for a failed session.
	Err error `json:"-" yaml:"-"`
}

// Session runs the decision loop for one goal. A Session runs at most once.
type Session struct {
	id       string
	registry *command.Registry
	llm      LLM
	builder  *PromptBuilder
	config   SessionConfig
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	recorder Recorder
	emitter  *EventEmitter
	history  *History

	mu         sync.Mutex
	state      State
	started    bool
	goal       string
	budget     int
	iterations int
	startedAt  time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the default SessionConfig.
func WithConfig(cfg SessionConfig) Option {
	return func(s *Session) { s.config = cfg }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records session metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTracerProvider creates session and iteration spans from tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Session) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRecorder persists the session through r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// NewSession creates a session over registry. The registry is sealed; no
// command can be added once a session exists.
func NewSession(registry *command.Registry, llm LLM, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		registry: registry,
		llm:      llm,
		config:   DefaultSessionConfig(),
		logger:   zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		history:  NewHistory(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	registry.Seal()

	popts := []PromptOption{
		WithHistoryWindow(s.config.HistoryWindow),
		WithOutputLimit(s.config.OutputLimit),
		WithOutputLines(s.config.OutputLines),
		WithLoopWindow(s.config.LoopWindow),
	}
	if s.config.Preamble != "" {
		popts = append(popts, WithPreamble(s.config.Preamble))
	}
	s.builder = NewPromptBuilder(registry, popts...)
	s.emitter = NewEventEmitter(s.id, s.config.EventBuffer)
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the recorded entries.
func (s *Session) History() []Entry {
	return s.history.Entries()
}

// Events returns the event channel. It is closed when Run returns.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Context returns the decision context for the next iteration.
func (s *Session) Context() DecisionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DecisionContext{
		Goal:      s.goal,
		Entries:   s.history.Entries(),
		Remaining: s.budget - s.iterations,
		Iteration: s.iterations + 1,
	}
}

// NextPrompt returns the exact prompt the next iteration would send.
func (s *Session) NextPrompt() string {
	return s.builder.DecisionPrompt(s.Context())
}

// Run drives the loop until the goal completes, the budget is spent or a
// fatal error occurs. The returned error is non-nil only for misuse; every
// other ending is described by the Outcome, whose history is always complete.
func (s *Session) Run(ctx context.Context, goal string, budget int) (*Outcome, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, ErrEmptyGoal
	}
	if budget < 1 {
		return nil, ErrInvalidBudget
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrSessionStarted
	}
	s.started = true
	s.goal = goal
	s.budget = budget
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "agentloop.session", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("session.budget", budget),
	))
	defer span.End()

	s.logger.Info("session started", zap.String("goal", goal), zap.Int("budget", budget))
	s.emitter.Emit(EventSessionStart, 0, map[string]any{"goal": goal, "budget": budget})
	if s.recorder != nil {
		if err := s.recorder.RecordStart(context.WithoutCancel(ctx), s.id, goal, budget, s.startedAt); err != nil {
			s.logger.Warn("recorder failed", zap.String("op", "start"), zap.Error(err))
		}
	}

	state, err := s.loop(ctx)
	outcome := s.finish(ctx, state, err)

	span.SetAttributes(
		attribute.String("session.state", string(state)),
		attribute.Int("session.iterations", outcome.Iterations),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, nil
}

func (s *Session) loop(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		spent := s.iterations >= s.budget
		s.mu.Unlock()
		if spent {
			return StateBudgetExhausted, nil
		}

		complete, err := s.iterate(ctx)
		if err != nil {
			return StateFailed, err
		}
		if complete {
			return StateSucceeded, nil
		}
	}
}

// iterate runs one pass from collect_context to record. It reports whether
// the recorded result completed the goal.
func (s *Session) iterate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	n := s.iterations + 1
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "agentloop.iteration", trace.WithAttributes(attribute.Int("iteration", n)))
	defer span.End()
	log := s.logger.With(zap.Int("iteration", n))

	fail := func(err error) (bool, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	if err := s.enter(ctx, StateCollectContext, n); err != nil {
		return fail(err)
	}
	dc := s.Context()

	if err := s.enter(ctx, StateBuildPrompt, n); err != nil {
		return fail(err)
	}
	prompt := s.builder.DecisionPrompt(dc)

	decision, err := s.decide(ctx, n, prompt, log)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("command", decision.Command))
	log = log.With(zap.String("command", decision.Command))

	if err := s.enter(ctx, StateValidate, n); err != nil {
		return fail(err)
	}
	cmd, verr := s.registry.Get(decision.Command)
	if verr == nil {
		verr = cmd.Validate(decision.Args)
	}
	if verr != nil {
		log.Warn("decision rejected", zap.Error(verr))
		s.emitter.Emit(EventRejected, n, map[string]any{"command": decision.Command, "error": verr.Error()})
		s.record(ctx, Entry{Iteration: n, Kind: EntryRejected, Decision: decision, Result: command.Failure(verr)}, log)
		return false, nil
	}

	if err := s.enter(ctx, StateDispatch, n); err != nil {
		return fail(err)
	}
	s.emitter.Emit(EventCommandStart, n, map[string]any{"command": decision.Command, "args": decision.Args.Clone()})
	result, execErr := s.dispatch(ctx, cmd, decision, n)
	kind := EntryDispatched
	if execErr != nil {
		kind = EntryFault
		result = command.Failure(execErr)
		log.Warn("command faulted", zap.Error(execErr))
	}
	s.emitter.Emit(EventCommandEnd, n, map[string]any{
		"command": decision.Command,
		"status":  string(result.Status),
		"output":  result.OutputText(),
		"error":   result.Error,
	})

	s.record(ctx, Entry{Iteration: n, Kind: kind, Decision: decision, Result: result}, log)

	if execErr != nil && s.config.AbortOnFault {
		return fail(execErr)
	}
	return result.Status == command.StatusGoalComplete, nil
}

// decide queries the LLM and parses its answer, re-querying with a
// correction note up to ParseRetries times.
func (s *Session) decide(ctx context.Context, n int, prompt string, log *zap.Logger) (Decision, error) {
	query := prompt
	for attempt := 1; ; attempt++ {
		if err := s.enter(ctx, StateQueryLLM, n); err != nil {
			return Decision{}, err
		}
		raw, err := s.query(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return Decision{}, &CancelledError{State: StateQueryLLM, Cause: context.Cause(ctx)}
			}
			log.Error("llm query failed", zap.Error(err))
			return Decision{}, &LLMCommunicationError{Cause: err}
		}

		if err := s.enter(ctx, StateParseDecision, n); err != nil {
			return Decision{}, err
		}
		d, perr := ParseDecision(raw)
		if perr == nil {
			log.Debug("decision parsed", zap.String("command", d.Command), zap.String("rationale", d.Rationale))
			s.emitter.Emit(EventDecision, n, map[string]any{
				"command":   d.Command,
				"args":      d.Args.Clone(),
				"rationale": d.Rationale,
			})
			return d, nil
		}

		s.metrics.observeParseFailure()
		s.emitter.Emit(EventParseError, n, map[string]any{"error": perr.Error(), "attempt": attempt})
		if attempt > s.config.ParseRetries {
			log.Error("no usable decision", zap.Int("attempts", attempt), zap.Error(perr))
			return Decision{}, perr
		}
		log.Warn("unparseable decision, asking again", zap.Int("attempt", attempt), zap.Error(perr))
		query = s.builder.CorrectionPrompt(prompt, perr)
	}
}

func (s *Session) query(ctx context.Context, prompt string) (string, error) {
	if s.config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.LLMTimeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := s.llm.Complete(ctx, prompt)
	s.metrics.observeQuery(time.Since(start))
	return raw, err
}

type execResult struct {
	res command.Result
	err error
}

// dispatch executes cmd on a context detached from caller cancellation. The
// command runs in its own goroutine so a hung command only costs
// CommandTimeout.
func (s *Session) dispatch(ctx context.Context, cmd command.Command, d Decision, n int) (command.Result, error) {
	dctx := context.WithoutCancel(ctx)
	if s.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, s.config.CommandTimeout)
		defer cancel()
	}
	env := &sessionEnv{session: s, iteration: n}

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := cmd.Execute(dctx, d.Args.Clone(), env)
		done <- execResult{res: res, err: err}
	}()

	var out execResult
	select {
	case out = <-done:
	case <-dctx.Done():
		out.err = fmt.Errorf("timed out after %s: %w", s.config.CommandTimeout, dctx.Err())
	}
	if out.err == nil {
		out.res, out.err = out.res.Normalize()
	}
	if out.err != nil {
		return command.Result{}, &command.ExecutionError{Command: d.Command, Cause: out.err}
	}
	return out.res, nil
}

// enter moves to state after checking for cancellation. Cancellation is only
// observed here, between states.
func (s *Session) enter(ctx context.Context, state State, n int) error {
	if ctx.Err() != nil {
		return &CancelledError{State: state, Cause: context.Cause(ctx)}
	}
	s.setState(state, n)
	return nil
}

func (s *Session) setState(state State, n int) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	s.logger.Debug("state change", zap.String("from", string(prev)), zap.String("state", string(state)), zap.Int("iteration", n))
	s.emitter.Emit(EventStateChange, n, map[string]any{"from": string(prev), "to": string(state)})
}

// record appends e to the history. It never observes cancellation so an
// executed command is always recorded.
func (s *Session) record(ctx context.Context, e Entry, log *zap.Logger) {
	s.setState(StateRecord, e.Iteration)
	e.Timestamp = time.Now().UTC()
	s.history.Append(e)

	s.mu.Lock()
	s.iterations = e.Iteration
	s.mu.Unlock()

	s.metrics.observeEntry(e)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("kind", string(e.Kind)),
		attribute.String("status", string(e.Result.Status)),
	)
	log.Debug("entry recorded", zap.String("kind", string(e.Kind)), zap.String("status", string(e.Result.Status)))

	if s.recorder != nil {
		if err := s.recorder.RecordEntry(context.WithoutCancel(ctx), s.id, e); err != nil {
			log.Warn("recorder failed", zap.String("op", "entry"), zap.Error(err))
		}
	}

	if window := s.builder.LoopWindow(); DetectLoop(s.history.Entries(), window) {
		log.Warn("loop detected", zap.Int("window", window))
		s.emitter.Emit(EventLoopDetection, e.Iteration, map[string]any{"window": window})
	}
}

func (s *Session) finish(ctx context.Context, state State, err error) *Outcome {
	s.mu.Lock()
	iterations := s.iterations
	s.mu.Unlock()
	s.setState(state, iterations)

	o := &Outcome{
		SessionID:  s.id,
		Goal:       s.goal,
		Budget:     s.budget,
		State:      state,
		Iterations: iterations,
		History:    s.history.Entries(),
		StartedAt:  s.startedAt,
		FinishedAt: time.Now().UTC(),
		Err:        err,
	}
	if err != nil {
		o.Error = err.Error()
	}

	s.metrics.observeSession(state)
	if state == StateFailed {
		s.logger.Error("session failed", zap.String("state", string(state)), zap.Int("iterations", iterations), zap.Error(err))
	} else {
		s.logger.Info("session finished", zap.String("state", string(state)), zap.Int("iterations", iterations))
	}

	if s.recorder != nil {
		if rerr := s.recorder.RecordOutcome(context.WithoutCancel(ctx), o); rerr != nil {
			s.logger.Warn("recorder failed", zap.String("op", "outcome"), zap.Error(rerr))
		}
	}

	s.emitter.Emit(EventSessionEnd, iterations, map[string]any{"state": string(state), "iterations": iterations, "error": o.Error})
	s.emitter.Close()
	return o
}

// sessionEnv is the read-only view of the session handed to commands.
type sessionEnv struct {
	session   *Session
	iteration int
}

func (e *sessionEnv) Goal() string { return e.session.goal }

func (e *sessionEnv) Iteration() int { return e.iteration }

// Remaining counts iterations left after the current one.
func (e *sessionEnv) Remaining() int { return e.session.budget - e.iteration }

func (e *sessionEnv) Transcript() string {
	return RenderTranscript(e.session.history.Entries(), e.session.builder.Truncation())
}
