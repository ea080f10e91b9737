// Package events implements the AG-UI wire event model: 16 event kinds as
// exhaustively tagged Go structs, a shared Event interface, and JSON
// encode/decode functions keyed off the "type" discriminator.
package events

import (
	"encoding/json"
	"fmt"

	"goa.design/ag-ui-go/messages"
)

// Type discriminates the wire event kind. Values are fixed by the protocol
// and are case-sensitive on the wire.
type Type string

const (
	TypeRunStarted          Type = "RUN_STARTED"
	TypeRunFinished         Type = "RUN_FINISHED"
	TypeRunError            Type = "RUN_ERROR"
	TypeStepStarted         Type = "STEP_STARTED"
	TypeStepFinished        Type = "STEP_FINISHED"
	TypeTextMessageStart    Type = "TEXT_MESSAGE_START"
	TypeTextMessageContent  Type = "TEXT_MESSAGE_CONTENT"
	TypeTextMessageEnd      Type = "TEXT_MESSAGE_END"
	TypeToolCallStart       Type = "TOOL_CALL_START"
	TypeToolCallArgs        Type = "TOOL_CALL_ARGS"
	TypeToolCallEnd         Type = "TOOL_CALL_END"
	TypeStateSnapshot       Type = "STATE_SNAPSHOT"
	TypeStateDelta          Type = "STATE_DELTA"
	TypeMessagesSnapshot    Type = "MESSAGES_SNAPSHOT"
	TypeRaw                 Type = "RAW"
	TypeCustom              Type = "CUSTOM"
)

// Event is the interface implemented by every concrete event kind. The tag
// returned by Type is the wire discriminator used for encoding and decoding;
// the verifier and reducer dispatch on the concrete Go type.
type Event interface {
	Type() Type
	Timestamp() *int64
	RawEvent() json.RawMessage
}

// BaseEvent carries the fields common to every event kind: the type tag
// (set by the concrete constructor, not user-settable), an optional
// timestamp, and the optional unparsed original wire JSON passed through for
// observability.
type BaseEvent struct {
	T   Type            `json:"type"`
	TS  *int64          `json:"timestamp,omitempty"`
	Raw json.RawMessage `json:"rawEvent,omitempty"`
}

// Type returns the event's wire discriminator.
func (b BaseEvent) Type() Type { return b.T }

// Timestamp returns the event's epoch-millisecond timestamp, or nil if absent.
func (b BaseEvent) Timestamp() *int64 { return b.TS }

// RawEvent returns the unparsed original wire JSON, or nil if absent.
func (b BaseEvent) RawEvent() json.RawMessage { return b.Raw }

type (
	// RunStartedEvent marks the beginning of a run. Must be the first event
	// of every stream.
	RunStartedEvent struct {
		BaseEvent
		ThreadID string `json:"threadId"`
		RunID    string `json:"runId"`
	}

	// RunFinishedEvent marks successful completion of a run.
	RunFinishedEvent struct {
		BaseEvent
		ThreadID string `json:"threadId"`
		RunID    string `json:"runId"`
	}

	// RunErrorEvent marks failed termination of a run.
	RunErrorEvent struct {
		BaseEvent
		Message string  `json:"message"`
		Code    *string `json:"code,omitempty"`
	}

	// StepStartedEvent marks the beginning of a named step within a run.
	// Only one step may be active at a time.
	StepStartedEvent struct {
		BaseEvent
		StepName string `json:"stepName"`
	}

	// StepFinishedEvent marks completion of the currently active step.
	StepFinishedEvent struct {
		BaseEvent
		StepName string `json:"stepName"`
	}

	// TextMessageStartEvent opens a streaming assistant text message.
	TextMessageStartEvent struct {
		BaseEvent
		MessageID string `json:"messageId"`
		Role      string `json:"role"`
	}

	// TextMessageContentEvent appends Delta to the active text message's
	// content. Delta must be non-empty; use NewTextMessageContentEvent to
	// enforce this at construction.
	TextMessageContentEvent struct {
		BaseEvent
		MessageID string `json:"messageId"`
		Delta     string `json:"delta"`
	}

	// TextMessageEndEvent closes the active text message.
	TextMessageEndEvent struct {
		BaseEvent
		MessageID string `json:"messageId"`
	}

	// ToolCallStartEvent opens a streaming tool call. ParentMessageID, when
	// set and equal to the id of the last message in the list (if that is
	// an assistant message), attaches the call to that message instead of
	// creating a new one.
	ToolCallStartEvent struct {
		BaseEvent
		ToolCallID      string  `json:"toolCallId"`
		ToolCallName    string  `json:"toolCallName"`
		ParentMessageID *string `json:"parentMessageId,omitempty"`
	}

	// ToolCallArgsEvent appends Delta to the active tool call's accumulated
	// JSON-encoded arguments string.
	ToolCallArgsEvent struct {
		BaseEvent
		ToolCallID string `json:"toolCallId"`
		Delta      string `json:"delta"`
	}

	// ToolCallEndEvent closes the active tool call.
	ToolCallEndEvent struct {
		BaseEvent
		ToolCallID string `json:"toolCallId"`
	}

	// StateSnapshotEvent replaces the working opaque application state wholesale.
	StateSnapshotEvent struct {
		BaseEvent
		Snapshot json.RawMessage `json:"snapshot"`
	}

	// StateDeltaEvent applies an RFC-6902 JSON Patch operation array to the
	// working opaque application state.
	StateDeltaEvent struct {
		BaseEvent
		Delta json.RawMessage `json:"delta"`
	}

	// MessagesSnapshotEvent replaces the working message list wholesale.
	MessagesSnapshotEvent struct {
		BaseEvent
		Messages []messages.Message `json:"messages"`
	}

	// RawEventEvent passes an unparsed wire payload through to consumers
	// (named RawEventEvent, not RawEvent, to avoid colliding with the
	// BaseEvent.RawEvent() accessor method).
	RawEventEvent struct {
		BaseEvent
		Event  json.RawMessage `json:"event"`
		Source *string         `json:"source,omitempty"`
	}

	// CustomEvent carries an application-defined name/value pair. The
	// reducer recognizes the well-known name "PredictState"; all other
	// names pass through unhandled.
	CustomEvent struct {
		BaseEvent
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
)

// NewRunStartedEvent constructs a RunStartedEvent.
func NewRunStartedEvent(threadID, runID string) *RunStartedEvent {
	return &RunStartedEvent{BaseEvent: BaseEvent{T: TypeRunStarted}, ThreadID: threadID, RunID: runID}
}

// NewRunFinishedEvent constructs a RunFinishedEvent.
func NewRunFinishedEvent(threadID, runID string) *RunFinishedEvent {
	return &RunFinishedEvent{BaseEvent: BaseEvent{T: TypeRunFinished}, ThreadID: threadID, RunID: runID}
}

// NewRunErrorEvent constructs a RunErrorEvent.
func NewRunErrorEvent(message string, code *string) *RunErrorEvent {
	return &RunErrorEvent{BaseEvent: BaseEvent{T: TypeRunError}, Message: message, Code: code}
}

// NewStepStartedEvent constructs a StepStartedEvent.
func NewStepStartedEvent(stepName string) *StepStartedEvent {
	return &StepStartedEvent{BaseEvent: BaseEvent{T: TypeStepStarted}, StepName: stepName}
}

// NewStepFinishedEvent constructs a StepFinishedEvent.
func NewStepFinishedEvent(stepName string) *StepFinishedEvent {
	return &StepFinishedEvent{BaseEvent: BaseEvent{T: TypeStepFinished}, StepName: stepName}
}

// NewTextMessageStartEvent constructs a TextMessageStartEvent. Role is
// always "assistant" per the protocol.
func NewTextMessageStartEvent(messageID string) *TextMessageStartEvent {
	return &TextMessageStartEvent{BaseEvent: BaseEvent{T: TypeTextMessageStart}, MessageID: messageID, Role: "assistant"}
}

// NewTextMessageContentEvent constructs a TextMessageContentEvent. It
// returns an error if delta is empty: a content delta always carries at
// least one character of text.
func NewTextMessageContentEvent(messageID, delta string) (*TextMessageContentEvent, error) {
	if delta == "" {
		return nil, fmt.Errorf("text message content delta must be non-empty")
	}
	return &TextMessageContentEvent{BaseEvent: BaseEvent{T: TypeTextMessageContent}, MessageID: messageID, Delta: delta}, nil
}

// NewTextMessageEndEvent constructs a TextMessageEndEvent.
func NewTextMessageEndEvent(messageID string) *TextMessageEndEvent {
	return &TextMessageEndEvent{BaseEvent: BaseEvent{T: TypeTextMessageEnd}, MessageID: messageID}
}

// NewToolCallStartEvent constructs a ToolCallStartEvent.
func NewToolCallStartEvent(toolCallID, toolCallName string, parentMessageID *string) *ToolCallStartEvent {
	return &ToolCallStartEvent{
		BaseEvent:       BaseEvent{T: TypeToolCallStart},
		ToolCallID:      toolCallID,
		ToolCallName:    toolCallName,
		ParentMessageID: parentMessageID,
	}
}

// NewToolCallArgsEvent constructs a ToolCallArgsEvent.
func NewToolCallArgsEvent(toolCallID, delta string) *ToolCallArgsEvent {
	return &ToolCallArgsEvent{BaseEvent: BaseEvent{T: TypeToolCallArgs}, ToolCallID: toolCallID, Delta: delta}
}

// NewToolCallEndEvent constructs a ToolCallEndEvent.
func NewToolCallEndEvent(toolCallID string) *ToolCallEndEvent {
	return &ToolCallEndEvent{BaseEvent: BaseEvent{T: TypeToolCallEnd}, ToolCallID: toolCallID}
}

// NewStateSnapshotEvent constructs a StateSnapshotEvent.
func NewStateSnapshotEvent(snapshot json.RawMessage) *StateSnapshotEvent {
	return &StateSnapshotEvent{BaseEvent: BaseEvent{T: TypeStateSnapshot}, Snapshot: snapshot}
}

// NewStateDeltaEvent constructs a StateDeltaEvent.
func NewStateDeltaEvent(delta json.RawMessage) *StateDeltaEvent {
	return &StateDeltaEvent{BaseEvent: BaseEvent{T: TypeStateDelta}, Delta: delta}
}

// NewMessagesSnapshotEvent constructs a MessagesSnapshotEvent.
func NewMessagesSnapshotEvent(msgs []messages.Message) *MessagesSnapshotEvent {
	return &MessagesSnapshotEvent{BaseEvent: BaseEvent{T: TypeMessagesSnapshot}, Messages: msgs}
}

// NewRawEventEvent constructs a RawEventEvent.
func NewRawEventEvent(event json.RawMessage, source *string) *RawEventEvent {
	return &RawEventEvent{BaseEvent: BaseEvent{T: TypeRaw}, Event: event, Source: source}
}

// NewCustomEvent constructs a CustomEvent.
func NewCustomEvent(name string, value json.RawMessage) *CustomEvent {
	return &CustomEvent{BaseEvent: BaseEvent{T: TypeCustom}, Name: name, Value: value}
}
