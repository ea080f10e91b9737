// Package patch adapts the external RFC-6902 JSON Patch and RFC-6901 JSON
// Pointer libraries to the shapes the reducer and the reactive state
// exposure need.
package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-openapi/jsonpointer"
)

// Operation is one RFC-6902 JSON Patch operation.
type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// DecodeOperations parses a StateDelta event's payload into an Operation
// slice.
func DecodeOperations(delta json.RawMessage) ([]Operation, error) {
	var ops []Operation
	if err := json.Unmarshal(delta, &ops); err != nil {
		return nil, fmt.Errorf("decode json patch operations: %w", err)
	}
	return ops, nil
}

// Apply applies the RFC-6902 operations in ops to doc and returns the
// resulting document. doc is left untouched; callers that want state to
// stay unchanged on failure should keep their own copy of doc and only
// replace it with the returned value on success.
func Apply(doc json.RawMessage, ops []Operation) (json.RawMessage, error) {
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("re-encode json patch operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode json patch: %w", err)
	}
	if len(doc) == 0 {
		doc = json.RawMessage("{}")
	}
	out, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply json patch: %w", err)
	}
	return out, nil
}

// GetValue evaluates an RFC-6901 JSON Pointer against doc and returns the
// referenced value. Used by the stateful client's reactive state exposure;
// the reducer itself never needs pointer evaluation.
func GetValue(doc json.RawMessage, pointer string) (any, error) {
	var value any
	if err := json.Unmarshal(doc, &value); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	ptr, err := jsonpointer.New(pointer)
	if err != nil {
		return nil, fmt.Errorf("parse json pointer %q: %w", pointer, err)
	}
	result, _, err := ptr.Get(value)
	if err != nil {
		return nil, fmt.Errorf("evaluate json pointer %q: %w", pointer, err)
	}
	return result, nil
}
