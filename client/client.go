// Package client implements the stateful conversation client: it binds runs
// to long-lived threads, maintains per-thread history and run status, and
// exposes reactive views over both.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/ag-ui-go/aguierrors"
	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/ids"
	"goa.design/ag-ui-go/messages"
	"goa.design/ag-ui-go/patch"
	"goa.design/ag-ui-go/reduce"
	"goa.design/ag-ui-go/session"
	"goa.design/ag-ui-go/telemetry"
)

// ContextStrategy selects how much history is sent to the transport when
// starting a run.
type ContextStrategy string

const (
	// ContextStrategySingleMessage sends only the newest message.
	ContextStrategySingleMessage ContextStrategy = "SINGLE_MESSAGE"
	// ContextStrategyFullHistory sends the thread's entire (optionally
	// truncated) message history.
	ContextStrategyFullHistory ContextStrategy = "FULL_HISTORY"
)

// Config holds the client's construction-time settings.
type Config struct {
	transport          session.Transport
	defaultStrategy    ContextStrategy
	maxHistoryMessages int
	ids                *ids.Generator
	logger             telemetry.Logger
	tracer             telemetry.Tracer
}

// Option configures a Client.
type Option func(*Config)

// WithContextStrategy sets the strategy used when a call does not override
// it. Defaults to ContextStrategySingleMessage.
func WithContextStrategy(s ContextStrategy) Option {
	return func(c *Config) { c.defaultStrategy = s }
}

// WithMaxHistoryMessages caps the number of trailing messages sent under
// ContextStrategyFullHistory. Zero (the default) means unlimited.
func WithMaxHistoryMessages(n int) Option {
	return func(c *Config) { c.maxHistoryMessages = n }
}

// WithIDGenerator overrides the generator used for thread/run/message ids.
func WithIDGenerator(g *ids.Generator) Option {
	return func(c *Config) { c.ids = g }
}

// WithLogger attaches a logger used for isolated state-apply failures.
func WithLogger(logger telemetry.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithTracer attaches a tracer whose spans cover each run's session
// lifetime, threaded down to session.Start. The client runs no verifier,
// so no per-event verification spans are produced.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(c *Config) { c.tracer = tracer }
}

// threadEntry is the client's per-thread bookkeeping: durable history and
// run records plus the live session/reducer for whichever run is active.
type threadEntry struct {
	thread *session.Thread

	activeSession *session.Session
	activeOut     chan events.Event
	reducer       *reduce.Reducer

	runState    *Observable[*session.Run]
	threadState *Observable[reduce.AgentState]
}

func newThreadEntry(id string) *threadEntry {
	return &threadEntry{
		thread:      session.NewThread(id),
		runState:    NewObservable[*session.Run](nil),
		threadState: NewObservable(reduce.AgentState{}),
	}
}

// Client is the stateful conversation client. It is safe for concurrent use;
// all mutable state is guarded by one coarse-grained mutex. Events are
// handed from the session to the reducer as received: the client does not
// run them through a verify.Verifier, so ordering violations are not
// rejected here.
type Client struct {
	cfg Config

	mu      sync.Mutex
	threads map[string]*threadEntry
}

// New constructs a Client bound to transport.
func New(transport session.Transport, opts ...Option) *Client {
	cfg := Config{
		transport:       transport,
		defaultStrategy: ContextStrategySingleMessage,
		ids:             ids.Default,
		logger:          telemetry.NewNoopLogger(),
		tracer:          telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{cfg: cfg, threads: make(map[string]*threadEntry)}
}

// ContinueOptions parameterizes ContinueConversation.
type ContinueOptions struct {
	// ThreadID, when empty, starts a new thread with a generated id.
	ThreadID string
	// SystemContext, when set, is appended as a System message the first
	// time this thread is seen.
	SystemContext string
	// ContextStrategy overrides the client's default for this call.
	ContextStrategy ContextStrategy
}

// ContinueConversation appends content as a User message to the named
// thread (creating it if ThreadID is empty), starts a new run, and returns
// the run's forwarded event stream.
func (c *Client) ContinueConversation(ctx context.Context, content string, opts ContinueOptions) (<-chan events.Event, error) {
	c.mu.Lock()
	threadID := opts.ThreadID
	if threadID == "" {
		threadID = c.cfg.ids.Thread()
	}
	entry, exists := c.threads[threadID]
	if !exists {
		entry = newThreadEntry(threadID)
		c.threads[threadID] = entry
	}
	if !exists && opts.SystemContext != "" {
		sysContent := opts.SystemContext
		entry.thread.History = append(entry.thread.History, messages.Message{
			ID:      c.cfg.ids.Message(),
			Role:    messages.RoleSystem,
			Content: &sysContent,
		})
	}
	userMsg := messages.NewUser(c.cfg.ids.Message(), content)
	entry.thread.History = append(entry.thread.History, userMsg)

	strategy := opts.ContextStrategy
	if strategy == "" {
		strategy = c.cfg.defaultStrategy
	}
	var outbound []messages.Message
	if strategy == ContextStrategyFullHistory {
		outbound = c.historyForRunLocked(entry)
	} else {
		outbound = []messages.Message{userMsg}
	}
	c.mu.Unlock()

	return c.startRun(ctx, entry, threadID, outbound)
}

// SendToolResponse appends a Tool message carrying content to threadId's
// history and either forwards it on the thread's active session
// (ContextStrategySingleMessage) or starts a new run with the full history
// (ContextStrategyFullHistory).
func (c *Client) SendToolResponse(ctx context.Context, threadID, toolCallID, content string, strategyOverride ContextStrategy) (<-chan events.Event, error) {
	c.mu.Lock()
	entry, ok := c.threads[threadID]
	if !ok {
		c.mu.Unlock()
		return nil, aguierrors.NewNoActiveSession(threadID)
	}

	strategy := strategyOverride
	if strategy == "" {
		strategy = c.cfg.defaultStrategy
	}

	if strategy != ContextStrategyFullHistory {
		sess := entry.activeSession
		out := entry.activeOut
		if sess == nil {
			c.mu.Unlock()
			return nil, aguierrors.NewNoActiveSession(threadID)
		}
		toolMsg := messages.NewTool(c.cfg.ids.Message(), toolCallID, content)
		entry.thread.History = append(entry.thread.History, toolMsg)
		c.mu.Unlock()
		if err := sess.SendMessage(ctx, toolMsg); err != nil {
			return nil, err
		}
		return out, nil
	}

	toolMsg := messages.NewTool(c.cfg.ids.Message(), toolCallID, content)
	entry.thread.History = append(entry.thread.History, toolMsg)
	outbound := c.historyForRunLocked(entry)
	c.mu.Unlock()
	return c.startRun(ctx, entry, threadID, outbound)
}

// ClearThread closes the thread's active session, if any, and discards its
// history, run records, and observers.
func (c *Client) ClearThread(threadID string) {
	c.mu.Lock()
	entry, ok := c.threads[threadID]
	if ok {
		delete(c.threads, threadID)
	}
	c.mu.Unlock()

	if ok && entry.activeSession != nil {
		entry.activeSession.Close()
	}
}

// GetConversationHistory returns a snapshot copy of threadId's message
// history, or nil if the thread is unknown.
func (c *Client) GetConversationHistory(threadID string) []messages.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	return messages.CloneList(entry.thread.History)
}

// GetAllThreads returns the ids of every thread the client currently knows.
func (c *Client) GetAllThreads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.threads))
	for id := range c.threads {
		out = append(out, id)
	}
	return out
}

// GetThreadState returns the reactive message/state view for threadId.
func (c *Client) GetThreadState(threadID string) (*Observable[reduce.AgentState], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.threads[threadID]
	if !ok {
		return nil, false
	}
	return entry.threadState, true
}

// GetRunState returns the reactive run-status view for threadId's most
// recent run.
func (c *Client) GetRunState(threadID string) (*Observable[*session.Run], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.threads[threadID]
	if !ok {
		return nil, false
	}
	return entry.runState, true
}

// GetStateValue evaluates an RFC-6901 JSON Pointer against threadId's
// current working state and returns the referenced value.
func (c *Client) GetStateValue(threadID, pointer string) (any, error) {
	c.mu.Lock()
	entry, ok := c.threads[threadID]
	if !ok {
		c.mu.Unlock()
		return nil, aguierrors.NewNoActiveSession(threadID)
	}
	state := entry.threadState.Get().State
	c.mu.Unlock()
	return patch.GetValue(state, pointer)
}

func (c *Client) historyForRunLocked(entry *threadEntry) []messages.Message {
	hist := entry.thread.History
	if c.cfg.maxHistoryMessages > 0 && len(hist) > c.cfg.maxHistoryMessages {
		hist = hist[len(hist)-c.cfg.maxHistoryMessages:]
	}
	return messages.CloneList(hist)
}

func (c *Client) startRun(ctx context.Context, entry *threadEntry, threadID string, outbound []messages.Message) (<-chan events.Event, error) {
	runID := c.cfg.ids.Run()

	c.mu.Lock()
	state := entry.threadState.Get().State
	history := messages.CloneList(entry.thread.History)
	c.mu.Unlock()

	input := session.RunAgentInput{ThreadID: threadID, RunID: runID, Messages: outbound, State: state}
	sess, err := session.Start(ctx, c.cfg.transport, input, session.WithTracer(c.cfg.tracer))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	entry.reducer = reduce.New(threadID, runID, history, state, reduce.WithStateErrorHandler(func(err error) {
		c.cfg.logger.Error(ctx, "state delta apply failed", "thread", threadID, "run", runID, "error", err)
	}))
	entry.activeSession = sess
	out := make(chan events.Event)
	entry.activeOut = out
	c.mu.Unlock()

	go c.pump(entry, sess, out)
	return out, nil
}

func (c *Client) pump(entry *threadEntry, sess *session.Session, out chan<- events.Event) {
	defer close(out)
	for evt := range sess.Events() {
		c.processEvent(entry, evt)
		out <- evt
	}
}

// processEvent applies an incoming event's side effects: run bookkeeping for
// lifecycle events, and message/state accumulation delegated to the reducer
// for everything else.
func (c *Client) processEvent(entry *threadEntry, evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := evt.(type) {
	case *events.RunStartedEvent:
		run := session.NewRun(e.ThreadID, e.RunID, time.Now())
		entry.thread.AddRun(run)
		entry.runState.Set(run)

	case *events.RunFinishedEvent:
		if run := entry.thread.ActiveRun(); run != nil {
			run.Complete(time.Now())
			entry.runState.Set(run)
		}
		entry.activeSession = nil

	case *events.RunErrorEvent:
		if run := entry.thread.ActiveRun(); run != nil {
			run.Fail(time.Now(), fmt.Errorf("%s", e.Message))
			entry.runState.Set(run)
		}
		entry.activeSession = nil
	}

	if entry.reducer == nil {
		return
	}
	state, changed := entry.reducer.Apply(evt)
	if !changed {
		return
	}
	next := entry.threadState.Get()
	if state.Messages != nil {
		next.Messages = state.Messages
		entry.thread.History = state.Messages
	}
	if state.State != nil {
		next.State = state.State
	}
	entry.threadState.Set(next)
}
