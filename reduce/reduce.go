// Package reduce implements apply_events: the pure fold that turns a
// verified AG-UI event stream into incremental AgentState deltas. The
// reducer never terminates a stream on its own; state-apply failures are
// isolated and reported through an optional error handler.
package reduce

import (
	"encoding/json"
	"fmt"

	"goa.design/ag-ui-go/aguierrors"
	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/messages"
	"goa.design/ag-ui-go/patch"
)

// AgentState is one reducer output. A nil field means "unchanged"; callers
// must not treat a nil Messages/State as an empty value.
type AgentState struct {
	Messages []messages.Message
	State    json.RawMessage
}

// PredictStateConfig describes one tool whose streaming arguments should be
// optimistically projected into the working state before the tool runs.
type PredictStateConfig struct {
	StateKey     string  `json:"state_key"`
	Tool         string  `json:"tool"`
	ToolArgument *string `json:"tool_argument,omitempty"`
}

// toolSite tracks a tool call's name and accumulated arguments. It never
// caches the owning message's position: a MessagesSnapshot may replace
// r.messages wholesale at any point, so the owning message is relocated by
// scanning on every access instead.
type toolSite struct {
	toolName string
	args     []byte
}

// Reducer holds the mutable working copy apply_events folds into. It is not
// safe for concurrent use; the session serializes events onto one goroutine
// per run.
type Reducer struct {
	threadID string
	runID    string

	messages []messages.Message
	state    json.RawMessage

	toolSites map[string]*toolSite
	predict   []PredictStateConfig

	onStateError func(error)
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithStateErrorHandler registers a callback invoked whenever a StateDelta
// fails to apply. The reducer's working state is left unchanged and the run
// continues; this is the only signal a caller gets for the failure.
func WithStateErrorHandler(handler func(error)) Option {
	return func(r *Reducer) { r.onStateError = handler }
}

// New constructs a Reducer seeded with the given initial messages and state.
func New(threadID, runID string, initialMessages []messages.Message, initialState json.RawMessage, opts ...Option) *Reducer {
	r := &Reducer{
		threadID:  threadID,
		runID:     runID,
		messages:  messages.CloneList(initialMessages),
		state:     initialState,
		toolSites: make(map[string]*toolSite),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply folds one event into the working state and reports whether it
// produced an observable change.
func (r *Reducer) Apply(evt events.Event) (AgentState, bool) {
	switch e := evt.(type) {
	case *events.TextMessageStartEvent:
		r.messages = append(r.messages, messages.NewAssistant(e.MessageID))
		return r.messagesSnapshot(), true

	case *events.TextMessageContentEvent:
		last := r.lastMessage()
		if last == nil || last.Role != messages.RoleAssistant || last.ID != e.MessageID {
			return AgentState{}, false
		}
		content := last.ContentOrEmpty() + e.Delta
		last.Content = &content
		return r.messagesSnapshot(), true

	case *events.TextMessageEndEvent:
		return AgentState{}, false

	case *events.ToolCallStartEvent:
		r.startToolCall(e)
		return r.messagesSnapshot(), true

	case *events.ToolCallArgsEvent:
		return r.appendToolArgs(e)

	case *events.ToolCallEndEvent:
		return AgentState{}, false

	case *events.StateSnapshotEvent:
		r.state = e.Snapshot
		return AgentState{State: r.state}, true

	case *events.StateDeltaEvent:
		return r.applyStateDelta(e)

	case *events.MessagesSnapshotEvent:
		r.messages = messages.CloneList(e.Messages)
		return r.messagesSnapshot(), true

	case *events.CustomEvent:
		if e.Name == "PredictState" {
			r.installPredictState(e.Value)
		}
		return AgentState{}, false

	case *events.StepFinishedEvent:
		r.predict = nil
		return AgentState{}, false

	default:
		// RunStarted, RunFinished, RunError, StepStarted, Raw: no reducer
		// state update.
		return AgentState{}, false
	}
}

func (r *Reducer) lastMessage() *messages.Message {
	if len(r.messages) == 0 {
		return nil
	}
	return &r.messages[len(r.messages)-1]
}

func (r *Reducer) messagesSnapshot() AgentState {
	return AgentState{Messages: messages.CloneList(r.messages)}
}

func (r *Reducer) startToolCall(e *events.ToolCallStartEvent) {
	call := messages.ToolCall{
		ID:   e.ToolCallID,
		Type: "function",
		Function: messages.FunctionCall{
			Name: e.ToolCallName,
		},
	}

	last := r.lastMessage()
	if e.ParentMessageID != nil && last != nil && last.Role == messages.RoleAssistant && last.ID == *e.ParentMessageID {
		last.ToolCalls = append(last.ToolCalls, call)
		r.toolSites[e.ToolCallID] = &toolSite{toolName: e.ToolCallName}
		return
	}

	id := e.ToolCallID
	if e.ParentMessageID != nil {
		id = *e.ParentMessageID
	}
	r.messages = append(r.messages, messages.Message{
		ID:        id,
		Role:      messages.RoleAssistant,
		ToolCalls: []messages.ToolCall{call},
	})
	r.toolSites[e.ToolCallID] = &toolSite{toolName: e.ToolCallName}
}

// findToolCallMessage locates the last Assistant message whose last tool
// call has id toolCallID, scanning from the tail so it keeps working after
// a MessagesSnapshot has replaced r.messages wholesale.
func (r *Reducer) findToolCallMessage(toolCallID string) *messages.Message {
	for i := len(r.messages) - 1; i >= 0; i-- {
		msg := &r.messages[i]
		if msg.Role != messages.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		if msg.ToolCalls[len(msg.ToolCalls)-1].ID == toolCallID {
			return msg
		}
	}
	return nil
}

func (r *Reducer) appendToolArgs(e *events.ToolCallArgsEvent) (AgentState, bool) {
	site, ok := r.toolSites[e.ToolCallID]
	if !ok {
		return AgentState{}, false
	}
	msg := r.findToolCallMessage(e.ToolCallID)
	if msg == nil {
		return AgentState{}, false
	}
	last := len(msg.ToolCalls) - 1
	site.args = append(site.args, e.Delta...)
	msg.ToolCalls[last].Function.Arguments = string(site.args)

	newState, projected := r.projectPredictiveState(site.toolName, site.args)
	if projected {
		r.state = newState
		return AgentState{Messages: messages.CloneList(r.messages), State: r.state}, true
	}
	return r.messagesSnapshot(), true
}

// projectPredictiveState projects tool-call arguments into working state
// ahead of the tool call completing: parse the accumulated arguments as a
// JSON object and, for any installed config whose tool matches, fold the
// named argument into the working state. ToolArgument, when absent,
// defaults to StateKey: the argument and the state field share a name.
func (r *Reducer) projectPredictiveState(toolName string, args []byte) (json.RawMessage, bool) {
	var cfg *PredictStateConfig
	for i := range r.predict {
		if r.predict[i].Tool == toolName {
			cfg = &r.predict[i]
			break
		}
	}
	if cfg == nil {
		return nil, false
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(args, &parsed); err != nil {
		// Arguments may still be an incomplete JSON fragment; this is
		// expected mid-stream and is not reported as an error.
		return nil, false
	}

	key := cfg.StateKey
	if cfg.ToolArgument != nil {
		key = *cfg.ToolArgument
	}
	newValue, ok := parsed[key]
	if !ok {
		return nil, false
	}

	merged := make(map[string]json.RawMessage)
	if len(r.state) > 0 {
		_ = json.Unmarshal(r.state, &merged)
	}
	merged[cfg.StateKey] = newValue
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (r *Reducer) applyStateDelta(e *events.StateDeltaEvent) (AgentState, bool) {
	ops, err := patch.DecodeOperations(e.Delta)
	if err != nil {
		r.reportStateError(aguierrors.NewStateApply(-1, err))
		return AgentState{}, false
	}
	out, err := patch.Apply(r.state, ops)
	if err != nil {
		r.reportStateError(aguierrors.NewStateApply(-1, err))
		return AgentState{}, false
	}
	r.state = out
	return AgentState{State: r.state}, true
}

func (r *Reducer) reportStateError(err error) {
	if r.onStateError != nil {
		r.onStateError(err)
	}
}

func (r *Reducer) installPredictState(value json.RawMessage) {
	var cfg []PredictStateConfig
	if err := json.Unmarshal(value, &cfg); err != nil {
		r.reportStateError(fmt.Errorf("decode PredictState config: %w", err))
		return
	}
	r.predict = cfg
}

// ThreadID returns the thread identifier this reducer was constructed for.
func (r *Reducer) ThreadID() string { return r.threadID }

// RunID returns the run identifier this reducer was constructed for.
func (r *Reducer) RunID() string { return r.runID }

// Messages returns a snapshot copy of the working message list.
func (r *Reducer) Messages() []messages.Message { return messages.CloneList(r.messages) }

// State returns the working opaque application state.
func (r *Reducer) State() json.RawMessage { return r.state }
