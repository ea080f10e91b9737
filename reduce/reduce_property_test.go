package reduce_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/patch"
	"goa.design/ag-ui-go/reduce"
)

// genDeltas generates a fixed-size slice of non-empty delta fragments, the
// only shape TextMessageContent/ToolCallArgs deltas may take on the wire.
func genDeltas() gopter.Gen {
	return gen.SliceOfN(5, gen.AlphaString().SuchThat(func(s string) bool { return s != "" }))
}

// TestTextAccumulationProperty verifies Property 2 (text accumulation): for
// any finite sequence of TextMessageStart(m), TextMessageContent(m, d1..dn),
// TextMessageEnd(m), the final Assistant message's content equals the
// concatenation d1++...++dn.
func TestTextAccumulationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("assistant content equals concatenated deltas", prop.ForAll(
		func(deltas []string) bool {
			r := reduce.New("t1", "r1", nil, nil)
			r.Apply(events.NewTextMessageStartEvent("m1"))
			want := ""
			for _, d := range deltas {
				evt, err := events.NewTextMessageContentEvent("m1", d)
				if err != nil {
					return false
				}
				r.Apply(evt)
				want += d
			}
			r.Apply(events.NewTextMessageEndEvent("m1"))

			final := r.Messages()
			if len(final) != 1 {
				return false
			}
			return final[0].ContentOrEmpty() == want
		},
		genDeltas(),
	))

	properties.TestingRun(t)
}

// TestToolArgAccumulationProperty verifies Property 3 (tool arg
// accumulation): for any finite sequence of ToolCallStart, ToolCallArgs*,
// ToolCallEnd, the final tool call's accumulated arguments equal the
// concatenated deltas.
func TestToolArgAccumulationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tool call arguments equal concatenated deltas", prop.ForAll(
		func(deltas []string) bool {
			r := reduce.New("t1", "r1", nil, nil)
			r.Apply(events.NewToolCallStartEvent("tc1", "search", nil))
			want := ""
			for _, d := range deltas {
				r.Apply(events.NewToolCallArgsEvent("tc1", d))
				want += d
			}
			r.Apply(events.NewToolCallEndEvent("tc1"))

			final := r.Messages()
			if len(final) != 1 || len(final[0].ToolCalls) != 1 {
				return false
			}
			return final[0].ToolCalls[0].Function.Arguments == want
		},
		genDeltas(),
	))

	properties.TestingRun(t)
}

func applyDelta(state, delta json.RawMessage) (json.RawMessage, error) {
	ops, err := patch.DecodeOperations(delta)
	if err != nil {
		return nil, err
	}
	return patch.Apply(state, ops)
}

// TestPatchCompositionProperty verifies Property 5 (patch composition): for
// any state s and patches p1, p2 that both succeed, the final state after
// StateDelta(p1); StateDelta(p2) equals the state after StateDelta(p1++p2).
func TestPatchCompositionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sequential deltas equal one combined delta", prop.ForAll(
		func(initial, v1, v2 int) bool {
			state := json.RawMessage(fmt.Sprintf(`{"a":%d}`, initial))
			op1 := json.RawMessage(fmt.Sprintf(`[{"op":"replace","path":"/a","value":%d}]`, v1))
			op2 := json.RawMessage(fmt.Sprintf(`[{"op":"replace","path":"/a","value":%d}]`, v2))
			combined := json.RawMessage(fmt.Sprintf(
				`[{"op":"replace","path":"/a","value":%d},{"op":"replace","path":"/a","value":%d}]`, v1, v2))

			afterFirst, err := applyDelta(state, op1)
			if err != nil {
				return false
			}
			sequential, err := applyDelta(afterFirst, op2)
			if err != nil {
				return false
			}
			oneShot, err := applyDelta(state, combined)
			if err != nil {
				return false
			}

			var a, b map[string]int
			if err := json.Unmarshal(sequential, &a); err != nil {
				return false
			}
			if err := json.Unmarshal(oneShot, &b); err != nil {
				return false
			}
			return a["a"] == b["a"]
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
