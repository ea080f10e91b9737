// Package aguierrors defines the typed error taxonomy the client runtime
// surfaces to callers: protocol violations from the verifier, transport
// failures, local state-apply errors, and session/lifecycle errors.
//
// Each kind is a concrete exported type implementing the error interface and
// the shared ProtocolError interface, so callers can recover the specific
// kind with errors.As without string matching.
package aguierrors

import "fmt"

// Kind enumerates the error taxonomy of the client runtime.
type Kind string

const (
	// KindProtocolViolation marks a stream ordering rule broken by the
	// transport; the verifier raises this and terminates the stream.
	KindProtocolViolation Kind = "protocol_violation"
	// KindTransportConnection marks a transport-level connection failure.
	KindTransportConnection Kind = "transport_connection"
	// KindTransportTimeout marks a transport-level timeout.
	KindTransportTimeout Kind = "transport_timeout"
	// KindTransportParsing marks a failure decoding a wire event.
	KindTransportParsing Kind = "transport_parsing"
	// KindStateApply marks a local, non-fatal failure applying a StateDelta.
	KindStateApply Kind = "state_apply"
	// KindSessionClosed marks an attempt to use a session past its terminal event.
	KindSessionClosed Kind = "session_closed"
	// KindNoActiveSession marks an attempt to send a follow-up message to a
	// thread with no active run.
	KindNoActiveSession Kind = "no_active_session"
	// KindCancelled marks a run terminated by caller or clearThread cancellation.
	KindCancelled Kind = "cancelled"
)

// ProtocolError is the interface implemented by every error this package
// defines. Concrete kinds additionally support errors.As on their own type.
type ProtocolError interface {
	error
	Kind() Kind
	Unwrap() error
}

type baseError struct {
	kind  Kind
	msg   string
	cause error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *baseError) Kind() Kind    { return e.kind }
func (e *baseError) Unwrap() error { return e.cause }

// Rule names the specific verifier invariant a ProtocolViolationError broke.
type Rule string

const (
	// RuleInvalidFirstEvent: the first event of a stream was not RunStarted.
	RuleInvalidFirstEvent Rule = "InvalidFirstEvent"
	// RuleDuplicateRunStarted: a second RunStarted arrived on an already-started run.
	RuleDuplicateRunStarted Rule = "DuplicateRunStarted"
	// RuleEventAfterRunEnd: an event arrived after the run already finished.
	RuleEventAfterRunEnd Rule = "EventAfterRunEnd"
	// RuleUnmatchedTextMessageContent: content/end arrived for a message that isn't active.
	RuleUnmatchedTextMessageContent Rule = "UnmatchedTextMessageContent"
	// RuleOverlappingTextMessage: a new text message started while one was active.
	RuleOverlappingTextMessage Rule = "OverlappingTextMessage"
	// RuleInterleavedTextAndTool: a tool call with a different parent interrupted an active text message.
	RuleInterleavedTextAndTool Rule = "InterleavedTextAndTool"
	// RuleUnmatchedToolCall: args/end arrived for a tool call that isn't active.
	RuleUnmatchedToolCall Rule = "UnmatchedToolCall"
	// RuleOverlappingToolCall: a new tool call started with a different id while one was active.
	RuleOverlappingToolCall Rule = "OverlappingToolCall"
	// RuleDuplicateToolCallStart: a tool call restarted with the same id.
	RuleDuplicateToolCallStart Rule = "DuplicateToolCallStart"
	// RuleMismatchedStepFinished: StepFinished named a step other than the active one.
	RuleMismatchedStepFinished Rule = "MismatchedStepFinished"
	// RuleNestedSteps: StepStarted arrived while a step was already active.
	RuleNestedSteps Rule = "NestedSteps"
	// RuleUnterminatedChildBeforeRunEnd: the run ended with an active text message, tool call, or step.
	RuleUnterminatedChildBeforeRunEnd Rule = "UnterminatedChildBeforeRunEnd"
)

// ProtocolViolationError reports a broken stream-ordering invariant. The
// verifier raises this and terminates the downstream stream without
// attempting recovery.
type ProtocolViolationError struct {
	baseError
	// RuleBroken names which verifier invariant failed.
	RuleBroken Rule
}

// NewProtocolViolation constructs a ProtocolViolationError for the given rule.
func NewProtocolViolation(rule Rule, msg string) *ProtocolViolationError {
	return &ProtocolViolationError{
		baseError:  baseError{kind: KindProtocolViolation, msg: msg},
		RuleBroken: rule,
	}
}

// TransportConnectionError reports a transport-level connection failure.
type TransportConnectionError struct{ baseError }

// NewTransportConnection constructs a TransportConnectionError wrapping cause.
func NewTransportConnection(msg string, cause error) *TransportConnectionError {
	return &TransportConnectionError{baseError{kind: KindTransportConnection, msg: msg, cause: cause}}
}

// TransportTimeoutError reports a transport-level timeout; code is always
// "TIMEOUT_ERROR" on the synthesized RunError per the wire contract.
type TransportTimeoutError struct{ baseError }

// NewTransportTimeout constructs a TransportTimeoutError.
func NewTransportTimeout(msg string) *TransportTimeoutError {
	return &TransportTimeoutError{baseError{kind: KindTransportTimeout, msg: msg}}
}

// TransportParsingError reports a failure decoding one or more wire events.
// The HTTP transport logs and skips an unparsable SSE frame; its JSON-array
// fallback decodes the body as a whole, so a single undecodable event fails
// the whole batch and is reported with this type.
type TransportParsingError struct{ baseError }

// NewTransportParsing constructs a TransportParsingError wrapping cause.
func NewTransportParsing(msg string, cause error) *TransportParsingError {
	return &TransportParsingError{baseError{kind: KindTransportParsing, msg: msg, cause: cause}}
}

// StateApplyError reports a local, non-fatal failure applying a StateDelta's
// JSON Patch operations. The reducer's working state is left unchanged; the
// run continues.
type StateApplyError struct {
	baseError
	// PatchIndex is the index of the failing operation within the patch
	// array, or -1 if the failure is not attributable to a single operation.
	PatchIndex int
}

// NewStateApply constructs a StateApplyError wrapping cause.
func NewStateApply(patchIndex int, cause error) *StateApplyError {
	return &StateApplyError{
		baseError:  baseError{kind: KindStateApply, msg: "state delta apply failed", cause: cause},
		PatchIndex: patchIndex,
	}
}

// SessionClosedError reports an attempt to send a follow-up message on a
// session that has already emitted its terminal event.
type SessionClosedError struct{ baseError }

// NewSessionClosed constructs a SessionClosedError.
func NewSessionClosed() *SessionClosedError {
	return &SessionClosedError{baseError{kind: KindSessionClosed, msg: "session is closed"}}
}

// NoActiveSessionError reports an attempt to call sendToolResponse against a
// thread with no currently running session.
type NoActiveSessionError struct{ baseError }

// NewNoActiveSession constructs a NoActiveSessionError for threadID.
func NewNoActiveSession(threadID string) *NoActiveSessionError {
	return &NoActiveSessionError{baseError{kind: KindNoActiveSession, msg: fmt.Sprintf("no active session for thread %q", threadID)}}
}

// CancelledError reports a run terminated by explicit cancellation, either
// from the caller unsubscribing or from clearThread.
type CancelledError struct{ baseError }

// NewCancelled constructs a CancelledError.
func NewCancelled() *CancelledError {
	return &CancelledError{baseError{kind: KindCancelled, msg: "run cancelled"}}
}
