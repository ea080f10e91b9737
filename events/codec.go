package events

import (
	"encoding/json"
	"fmt"
)

// typeTag is used to sniff the "type" discriminator before decoding into a
// concrete struct.
type typeTag struct {
	Type Type `json:"type"`
}

// EventFromJSON decodes a single wire event object into its concrete typed
// struct based on the "type" discriminator. Unknown fields are ignored by
// encoding/json by default.
func EventFromJSON(data []byte) (Event, error) {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode event type: %w", err)
	}

	var evt Event
	switch tag.Type {
	case TypeRunStarted:
		evt = &RunStartedEvent{}
	case TypeRunFinished:
		evt = &RunFinishedEvent{}
	case TypeRunError:
		evt = &RunErrorEvent{}
	case TypeStepStarted:
		evt = &StepStartedEvent{}
	case TypeStepFinished:
		evt = &StepFinishedEvent{}
	case TypeTextMessageStart:
		evt = &TextMessageStartEvent{}
	case TypeTextMessageContent:
		evt = &TextMessageContentEvent{}
	case TypeTextMessageEnd:
		evt = &TextMessageEndEvent{}
	case TypeToolCallStart:
		evt = &ToolCallStartEvent{}
	case TypeToolCallArgs:
		evt = &ToolCallArgsEvent{}
	case TypeToolCallEnd:
		evt = &ToolCallEndEvent{}
	case TypeStateSnapshot:
		evt = &StateSnapshotEvent{}
	case TypeStateDelta:
		evt = &StateDeltaEvent{}
	case TypeMessagesSnapshot:
		evt = &MessagesSnapshotEvent{}
	case TypeRaw:
		evt = &RawEventEvent{}
	case TypeCustom:
		evt = &CustomEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", tag.Type)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", tag.Type, err)
	}

	if e, ok := evt.(*TextMessageContentEvent); ok && e.Delta == "" {
		return nil, fmt.Errorf("decode %s event: delta must be non-empty", tag.Type)
	}

	return evt, nil
}

// ToJSON encodes evt to its wire representation.
func ToJSON(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// DecodeArray decodes a JSON array of wire event objects, the fallback mode
// used when the transport isn't streaming SSE.
func DecodeArray(data []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event array: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for i, item := range raw {
		evt, err := EventFromJSON(item)
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", i, err)
		}
		out = append(out, evt)
	}
	return out, nil
}
