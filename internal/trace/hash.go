package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTransition = "flowstate/transition/v1"
	DomainState      = "flowstate/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is the canonical form of one state of a machine.
type Entry struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// TypeName returns the short dynamic type name of v ("ShowContent" for
// example.ShowContent).
func TypeName(v any) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// State renders a state as canonical JSON tagged with its variant name:
//
//	{"type":"ShowContent","value":{...}}
func State(v any) ([]byte, error) {
	return MarshalCanonical(Entry{Type: TypeName(v), Value: v})
}

// StateHash returns the content hash of a state.
func StateHash(v any) (string, error) {
	canonical, err := State(v)
	if err != nil {
		return "", fmt.Errorf("StateHash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// TransitionID computes the content-addressed id of one journaled reduction.
// The id is stable for the same machine, sequence number, kind and state.
func TransitionID(machineID string, seq int64, kind string, state []byte) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"machine_id": machineID,
		"seq":        seq,
		"kind":       kind,
		"state":      string(state),
	})
	if err != nil {
		return "", fmt.Errorf("TransitionID: %w", err)
	}
	return hashWithDomain(DomainTransition, canonical), nil
}
