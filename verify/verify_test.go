package verify_test

import (
	"context"
	"errors"
	"testing"

	"goa.design/ag-ui-go/aguierrors"
	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/verify"
)

func run(t *testing.T, v *verify.Verifier, evts []events.Event) error {
	t.Helper()
	ctx := context.Background()
	for _, evt := range evts {
		if err := v.Next(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func mustContent(t *testing.T, id, delta string) *events.TextMessageContentEvent {
	t.Helper()
	evt, err := events.NewTextMessageContentEvent(id, delta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return evt
}

// P1: a stream not starting with RunStarted fails InvalidFirstEvent.
func TestFirstEventRule(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{events.NewRunFinishedEvent("t1", "r1")})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleInvalidFirstEvent {
		t.Fatalf("err = %v, want InvalidFirstEvent", err)
	}
}

func TestDuplicateRunStarted(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewRunStartedEvent("t1", "r1"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleDuplicateRunStarted {
		t.Fatalf("err = %v, want DuplicateRunStarted", err)
	}
}

func TestEventAfterRunEnd(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewRunFinishedEvent("t1", "r1"),
		events.NewStepStartedEvent("x"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleEventAfterRunEnd {
		t.Fatalf("err = %v, want EventAfterRunEnd", err)
	}
}

// E2: second event being content without a start fails.
func TestE2UnmatchedTextMessageContent(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		mustContent(t, "m1", "x"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleUnmatchedTextMessageContent {
		t.Fatalf("err = %v, want UnmatchedTextMessageContent", err)
	}
}

func TestOverlappingTextMessage(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewTextMessageStartEvent("m1"),
		events.NewTextMessageStartEvent("m2"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleOverlappingTextMessage {
		t.Fatalf("err = %v, want OverlappingTextMessage", err)
	}
}

func TestToolCallAttachedToActiveTextMessageAllowed(t *testing.T) {
	v := verify.New()
	parent := "m1"
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewTextMessageStartEvent("m1"),
		events.NewToolCallStartEvent("tc1", "search", &parent),
		events.NewToolCallEndEvent("tc1"),
		events.NewTextMessageEndEvent("m1"),
		events.NewRunFinishedEvent("t1", "r1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInterleavedTextAndToolRejected(t *testing.T) {
	v := verify.New()
	other := "other"
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewTextMessageStartEvent("m1"),
		events.NewToolCallStartEvent("tc1", "search", &other),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleInterleavedTextAndTool {
		t.Fatalf("err = %v, want InterleavedTextAndTool", err)
	}
}

func TestDuplicateToolCallStart(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewToolCallStartEvent("tc1", "search", nil),
		events.NewToolCallStartEvent("tc1", "search", nil),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleDuplicateToolCallStart {
		t.Fatalf("err = %v, want DuplicateToolCallStart", err)
	}
}

func TestOverlappingToolCall(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewToolCallStartEvent("tc1", "search", nil),
		events.NewToolCallStartEvent("tc2", "search", nil),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleOverlappingToolCall {
		t.Fatalf("err = %v, want OverlappingToolCall", err)
	}
}

func TestNestedStepsRejected(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewStepStartedEvent("a"),
		events.NewStepStartedEvent("b"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleNestedSteps {
		t.Fatalf("err = %v, want NestedSteps", err)
	}
}

func TestMismatchedStepFinished(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewStepStartedEvent("a"),
		events.NewStepFinishedEvent("b"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleMismatchedStepFinished {
		t.Fatalf("err = %v, want MismatchedStepFinished", err)
	}
}

func TestUnterminatedChildBeforeRunEnd(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewStepStartedEvent("a"),
		events.NewRunFinishedEvent("t1", "r1"),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleUnterminatedChildBeforeRunEnd {
		t.Fatalf("err = %v, want UnterminatedChildBeforeRunEnd", err)
	}
}

// Rule 4 ambiguity check: RunError mid-step is rejected too (Open Question 4).
func TestRunErrorMidStepRejected(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewStepStartedEvent("a"),
		events.NewRunErrorEvent("boom", nil),
	})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleUnterminatedChildBeforeRunEnd {
		t.Fatalf("err = %v, want UnterminatedChildBeforeRunEnd", err)
	}
}

func TestStateAndCustomEventsPermittedAnywhere(t *testing.T) {
	v := verify.New()
	err := run(t, v, []events.Event{
		events.NewRunStartedEvent("t1", "r1"),
		events.NewStateSnapshotEvent(nil),
		events.NewStateDeltaEvent(nil),
		events.NewMessagesSnapshotEvent(nil),
		events.NewCustomEvent("anything", nil),
		events.NewRunFinishedEvent("t1", "r1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDebugModeDoesNotRelaxRules(t *testing.T) {
	v := verify.New(verify.WithDebug(true))
	err := run(t, v, []events.Event{events.NewRunFinishedEvent("t1", "r1")})
	var pv *aguierrors.ProtocolViolationError
	if !errors.As(err, &pv) || pv.RuleBroken != aguierrors.RuleInvalidFirstEvent {
		t.Fatalf("debug mode changed verifier behavior: err = %v", err)
	}
}
