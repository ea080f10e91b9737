package patch_test

import (
	"encoding/json"
	"testing"

	"goa.design/ag-ui-go/patch"
)

func TestApplyReplace(t *testing.T) {
	doc := json.RawMessage(`{"a":1}`)
	ops := []patch.Operation{{Op: "replace", Path: "/a", Value: json.RawMessage("2")}}
	out, err := patch.Apply(doc, ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got["a"] != 2 {
		t.Fatalf("a = %d, want 2", got["a"])
	}
}

func TestApplyFailureOnBadPath(t *testing.T) {
	doc := json.RawMessage(`{"a":1}`)
	ops := []patch.Operation{{Op: "replace", Path: "/nope/x", Value: json.RawMessage("1")}}
	if _, err := patch.Apply(doc, ops); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

// Patch composition: applying p1 then p2 equals applying p1++p2 (P5).
func TestPatchComposition(t *testing.T) {
	doc := json.RawMessage(`{"a":1,"b":1}`)
	p1 := []patch.Operation{{Op: "replace", Path: "/a", Value: json.RawMessage("2")}}
	p2 := []patch.Operation{{Op: "replace", Path: "/b", Value: json.RawMessage("3")}}

	sequential, err := patch.Apply(doc, p1)
	if err != nil {
		t.Fatalf("apply p1: %v", err)
	}
	sequential, err = patch.Apply(sequential, p2)
	if err != nil {
		t.Fatalf("apply p2: %v", err)
	}

	combined, err := patch.Apply(doc, append(append([]patch.Operation{}, p1...), p2...))
	if err != nil {
		t.Fatalf("apply combined: %v", err)
	}

	var a, b map[string]int
	_ = json.Unmarshal(sequential, &a)
	_ = json.Unmarshal(combined, &b)
	if a["a"] != b["a"] || a["b"] != b["b"] {
		t.Fatalf("sequential %v != combined %v", a, b)
	}
}

func TestGetValue(t *testing.T) {
	doc := json.RawMessage(`{"title":"X","nested":{"n":42}}`)
	v, err := patch.GetValue(doc, "/nested/n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f, ok := v.(float64); !ok || f != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}
