// Package verify implements the AG-UI event stream state machine that
// rejects any event stream violating protocol ordering before the reducer
// sees it.
package verify

import (
	"context"
	"fmt"

	"goa.design/ag-ui-go/aguierrors"
	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/telemetry"
)

// Verifier tracks one run's event-ordering state machine and checks each
// inbound event against it in order. A Verifier is single-use: construct a
// fresh one per run/subscription.
type Verifier struct {
	logger telemetry.Logger
	tracer telemetry.Tracer
	debug  bool

	runStarted bool
	finished   bool
	activeText *string
	activeTool *string
	activeStep *string
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger attaches a logger used for debug-mode transition tracing.
func WithLogger(logger telemetry.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// WithTracer attaches a tracer whose span covers each call to Next.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(v *Verifier) { v.tracer = tracer }
}

// WithDebug enables verbose logging of every verifier transition. It never
// relaxes any rule; it only adds observability.
func WithDebug(debug bool) Option {
	return func(v *Verifier) { v.debug = debug }
}

// New constructs a Verifier with all per-run state reset.
func New(opts ...Option) *Verifier {
	v := &Verifier{logger: telemetry.NewNoopLogger(), tracer: telemetry.NewNoopTracer()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) trace(ctx context.Context, evt events.Event, err error) {
	if !v.debug {
		return
	}
	if err != nil {
		v.logger.Debug(ctx, "verifier rejected event", "type", evt.Type(), "error", err)
		return
	}
	v.logger.Debug(ctx, "verifier accepted event", "type", evt.Type())
}

// Next checks evt against the current state machine, advances the state
// machine on success, and returns a *aguierrors.ProtocolViolationError on
// the first broken invariant. Rules are checked in a fixed order so the
// first failure always wins.
func (v *Verifier) Next(ctx context.Context, evt events.Event) error {
	spanCtx, span := v.tracer.Start(ctx, "verify.Next")
	defer span.End()

	err := v.next(evt)
	if err != nil {
		span.RecordError(err)
	}
	v.trace(spanCtx, evt, err)
	return err
}

func (v *Verifier) next(evt events.Event) error {
	// Rule 1: first event must be RunStarted.
	if !v.runStarted {
		if evt.Type() != events.TypeRunStarted {
			return aguierrors.NewProtocolViolation(aguierrors.RuleInvalidFirstEvent,
				fmt.Sprintf("first event was %s, want RUN_STARTED", evt.Type()))
		}
		v.runStarted = true
		return nil
	}

	// Rule 2: duplicate RunStarted.
	if evt.Type() == events.TypeRunStarted {
		return aguierrors.NewProtocolViolation(aguierrors.RuleDuplicateRunStarted, "run already started")
	}

	// Rule 3: nothing may follow the terminal event.
	if v.finished {
		return aguierrors.NewProtocolViolation(aguierrors.RuleEventAfterRunEnd,
			fmt.Sprintf("event %s arrived after run end", evt.Type()))
	}

	switch e := evt.(type) {
	case *events.TextMessageStartEvent:
		if v.activeText != nil {
			return aguierrors.NewProtocolViolation(aguierrors.RuleOverlappingTextMessage,
				fmt.Sprintf("text message %s started while %s is active", e.MessageID, *v.activeText))
		}
		id := e.MessageID
		v.activeText = &id
		return nil

	case *events.TextMessageContentEvent:
		if v.activeText == nil || *v.activeText != e.MessageID {
			return aguierrors.NewProtocolViolation(aguierrors.RuleUnmatchedTextMessageContent,
				fmt.Sprintf("text message content for %s without matching active start", e.MessageID))
		}
		return nil

	case *events.TextMessageEndEvent:
		if v.activeText == nil || *v.activeText != e.MessageID {
			return aguierrors.NewProtocolViolation(aguierrors.RuleUnmatchedTextMessageContent,
				fmt.Sprintf("text message end for %s without matching active start", e.MessageID))
		}
		v.activeText = nil
		return nil

	case *events.ToolCallStartEvent:
		if v.activeText != nil {
			parentMatches := e.ParentMessageID != nil && *e.ParentMessageID == *v.activeText
			if !parentMatches {
				return aguierrors.NewProtocolViolation(aguierrors.RuleInterleavedTextAndTool,
					fmt.Sprintf("tool call %s interleaved with active text message %s", e.ToolCallID, *v.activeText))
			}
		}
		if v.activeTool != nil {
			if *v.activeTool == e.ToolCallID {
				return aguierrors.NewProtocolViolation(aguierrors.RuleDuplicateToolCallStart,
					fmt.Sprintf("tool call %s started twice", e.ToolCallID))
			}
			return aguierrors.NewProtocolViolation(aguierrors.RuleOverlappingToolCall,
				fmt.Sprintf("tool call %s started while %s is active", e.ToolCallID, *v.activeTool))
		}
		id := e.ToolCallID
		v.activeTool = &id
		return nil

	case *events.ToolCallArgsEvent:
		if v.activeTool == nil || *v.activeTool != e.ToolCallID {
			return aguierrors.NewProtocolViolation(aguierrors.RuleUnmatchedToolCall,
				fmt.Sprintf("tool call args for %s without matching active start", e.ToolCallID))
		}
		return nil

	case *events.ToolCallEndEvent:
		if v.activeTool == nil || *v.activeTool != e.ToolCallID {
			return aguierrors.NewProtocolViolation(aguierrors.RuleUnmatchedToolCall,
				fmt.Sprintf("tool call end for %s without matching active start", e.ToolCallID))
		}
		v.activeTool = nil
		return nil

	case *events.StepStartedEvent:
		if v.activeStep != nil {
			return aguierrors.NewProtocolViolation(aguierrors.RuleNestedSteps,
				fmt.Sprintf("step %s started while %s is active", e.StepName, *v.activeStep))
		}
		name := e.StepName
		v.activeStep = &name
		return nil

	case *events.StepFinishedEvent:
		if v.activeStep == nil || *v.activeStep != e.StepName {
			return aguierrors.NewProtocolViolation(aguierrors.RuleMismatchedStepFinished,
				fmt.Sprintf("step finished %s does not match active step", e.StepName))
		}
		v.activeStep = nil
		return nil

	case *events.RunFinishedEvent:
		if err := v.requireNoActiveChildren(); err != nil {
			return err
		}
		v.finished = true
		return nil

	case *events.RunErrorEvent:
		if err := v.requireNoActiveChildren(); err != nil {
			return err
		}
		v.finished = true
		return nil

	default:
		// StateSnapshot, StateDelta, MessagesSnapshot, Raw, Custom: permitted
		// at any time after RunStarted and before the run ends; they do not
		// affect verifier state.
		return nil
	}
}

func (v *Verifier) requireNoActiveChildren() error {
	if v.activeText != nil || v.activeTool != nil || v.activeStep != nil {
		return aguierrors.NewProtocolViolation(aguierrors.RuleUnterminatedChildBeforeRunEnd,
			"run ended with an unterminated text message, tool call, or step")
	}
	return nil
}
