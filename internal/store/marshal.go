package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/flowstate/internal/trace"
)

// encodedState is the stored form of a machine state.
type encodedState struct {
	Type string
	JSON string
	Hash string
}

// marshalState renders a state as canonical JSON tagged with its variant.
func marshalState(v any) (encodedState, error) {
	data, err := trace.State(v)
	if err != nil {
		return encodedState{}, fmt.Errorf("marshal state: %w", err)
	}
	hash, err := trace.StateHash(v)
	if err != nil {
		return encodedState{}, fmt.Errorf("marshal state: %w", err)
	}
	return encodedState{
		Type: trace.TypeName(v),
		JSON: string(data),
		Hash: hash,
	}, nil
}

// unmarshalState returns the "value" member of a stored state.
func unmarshalState(data string) (json.RawMessage, error) {
	var entry struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if entry.Value == nil {
		return json.RawMessage("null"), nil
	}
	return entry.Value, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
