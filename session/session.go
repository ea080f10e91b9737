// Package session owns one run's lifetime atop a pluggable Transport: it
// starts the wire operation, pumps inbound events to a single consumer,
// accepts outbound follow-up messages, and guarantees a prompt, idempotent
// close with synthetic cancellation reporting.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"goa.design/ag-ui-go/aguierrors"
	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/messages"
	"goa.design/ag-ui-go/telemetry"
)

// Status is a run's lifecycle state. The only permitted transitions are
// STARTED -> COMPLETED and STARTED -> ERROR.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

const cancelledCode = "CANCELLED"

// Tool describes one tool the agent may call, passed through to the
// transport verbatim; the core never executes tools itself.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ContextEntry is one piece of free-form context attached to a run.
type ContextEntry struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// RunAgentInput is the wire contract passed verbatim to the transport.
// Missing ThreadID/RunID must be generated by the caller before StartRun.
type RunAgentInput struct {
	ThreadID       string             `json:"threadId"`
	RunID          string             `json:"runId"`
	Messages       []messages.Message `json:"messages"`
	State          json.RawMessage    `json:"state,omitempty"`
	Tools          []Tool             `json:"tools,omitempty"`
	Context        []ContextEntry     `json:"context,omitempty"`
	ForwardedProps json.RawMessage    `json:"forwardedProps,omitempty"`
}

// Transport is what the core consumes to actually run an agent. Concrete
// wire adapters (HTTP/SSE, in-process fakes for testing) implement this.
type Transport interface {
	StartRun(ctx context.Context, input RunAgentInput) (RunSession, error)
}

// RunSession is a transport's live handle for one run. Its Events channel
// has a single consumer; Close must be safe to call more than once.
type RunSession interface {
	Events() <-chan events.Event
	IsActive() bool
	SendMessage(ctx context.Context, msg messages.Message) error
	Close() error
}

// Option configures a Session.
type Option func(*sessionConfig)

type sessionConfig struct {
	tracer telemetry.Tracer
}

// WithTracer attaches a tracer whose span covers the session's pump
// goroutine for the lifetime of the run.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(c *sessionConfig) { c.tracer = tracer }
}

// Session wraps a transport's RunSession with cancellation semantics: the
// caller cancelling ctx causes a synthetic RunError{CANCELLED} unless the
// run has already emitted a terminal event, and Close is idempotent and
// blocks until the pump goroutine has fully stopped.
type Session struct {
	threadID string
	runID    string

	transport RunSession
	out       chan events.Event
	span      telemetry.Span

	cancel    context.CancelFunc
	closeOnce sync.Once
	doneCh    chan struct{}
}

// Start begins a run against transport and returns a Session pumping its
// events to a single consumer.
func Start(ctx context.Context, transport Transport, input RunAgentInput, opts ...Option) (*Session, error) {
	cfg := sessionConfig{tracer: telemetry.NewNoopTracer()}
	for _, opt := range opts {
		opt(&cfg)
	}

	runCtx, cancel := context.WithCancel(ctx)
	spanCtx, span := cfg.tracer.Start(runCtx, "session.Run")
	ts, err := transport.StartRun(spanCtx, input)
	if err != nil {
		span.RecordError(err)
		span.End()
		cancel()
		return nil, aguierrors.NewTransportConnection("start run", err)
	}

	s := &Session{
		threadID:  input.ThreadID,
		runID:     input.RunID,
		transport: ts,
		out:       make(chan events.Event, 1),
		span:      span,
		cancel:    cancel,
		doneCh:    make(chan struct{}),
	}
	go s.pump(spanCtx)
	return s, nil
}

func (s *Session) pump(ctx context.Context) {
	defer close(s.out)
	defer close(s.doneCh)
	defer s.span.End()

	terminal := false
	for {
		select {
		case <-ctx.Done():
			if !terminal {
				code := cancelledCode
				s.span.RecordError(aguierrors.NewCancelled())
				s.out <- events.NewRunErrorEvent("run cancelled", &code)
			}
			return

		case evt, ok := <-s.transport.Events():
			if !ok {
				return
			}
			if evt.Type() == events.TypeRunFinished || evt.Type() == events.TypeRunError {
				terminal = true
				if runErr, isErr := evt.(*events.RunErrorEvent); isErr {
					s.span.RecordError(fmt.Errorf("run error: %s", runErr.Message))
				}
			}
			select {
			case s.out <- evt:
			case <-ctx.Done():
				return
			}
			if terminal {
				return
			}
		}
	}
}

// Events returns the single-consumer inbound event channel. It is closed
// once the run reaches a terminal state or the session is closed.
func (s *Session) Events() <-chan events.Event { return s.out }

// IsActive reports whether the session can still accept SendMessage calls.
func (s *Session) IsActive() bool {
	select {
	case <-s.doneCh:
		return false
	default:
		return s.transport.IsActive()
	}
}

// SendMessage forwards msg to the transport if the session is still active.
func (s *Session) SendMessage(ctx context.Context, msg messages.Message) error {
	if !s.IsActive() {
		return aguierrors.NewSessionClosed()
	}
	return s.transport.SendMessage(ctx, msg)
}

// Close cancels the run, closes the underlying transport session, and waits
// for the pump goroutine to exit. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.transport.Close()
		<-s.doneCh
	})
	return err
}

// ThreadID returns the thread this session's run belongs to.
func (s *Session) ThreadID() string { return s.threadID }

// RunID returns this session's run identifier.
func (s *Session) RunID() string { return s.runID }

// Run captures the lifecycle metadata of one invocation on the transport.
type Run struct {
	ThreadID  string
	RunID     string
	Status    Status
	StartedAt time.Time
	EndedAt   *time.Time
	Err       error
}

// NewRun constructs a Run in the STARTED state.
func NewRun(threadID, runID string, startedAt time.Time) *Run {
	return &Run{ThreadID: threadID, RunID: runID, Status: StatusStarted, StartedAt: startedAt}
}

// Complete transitions the run to COMPLETED.
func (r *Run) Complete(endedAt time.Time) {
	r.Status = StatusCompleted
	r.EndedAt = &endedAt
}

// Fail transitions the run to ERROR, recording the cause.
func (r *Run) Fail(endedAt time.Time, err error) {
	r.Status = StatusError
	r.EndedAt = &endedAt
	r.Err = err
}

// Thread is an ordered sequence of runs plus mutable message history and
// optional opaque metadata.
type Thread struct {
	ID       string
	History  []messages.Message
	Runs     []*Run
	Metadata json.RawMessage
}

// NewThread constructs an empty Thread.
func NewThread(id string) *Thread {
	return &Thread{ID: id}
}

// ActiveRun returns the most recently added run if it is still STARTED, or
// nil if the thread has no in-progress run.
func (t *Thread) ActiveRun() *Run {
	if len(t.Runs) == 0 {
		return nil
	}
	last := t.Runs[len(t.Runs)-1]
	if last.Status != StatusStarted {
		return nil
	}
	return last
}

// AddRun appends run to the thread's run history.
func (t *Thread) AddRun(run *Run) {
	t.Runs = append(t.Runs, run)
}
