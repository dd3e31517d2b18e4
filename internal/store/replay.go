package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// History summarizes what a machine did, as reconstructed from its journal.
type History struct {
	MachineID string
	// Transitions counts every journaled reduction.
	Transitions int
	// Emitted are the states a subscriber saw, in order.
	Emitted []json.RawMessage
	// EmittedTypes are the variant names of Emitted.
	EmittedTypes []string
	// Events counts dispatched events.
	Events int
	// Applied counts state-change requests that changed the state.
	Applied int
	// Discarded counts requests whose guard no longer held.
	Discarded int
	// Restarts counts subscriptions after the first one.
	Restarts int
	LastSeq  int64
}

// GetHistory replays a machine's transitions and returns the emitted state
// stream together with per-kind counters.
func (s *Store) GetHistory(ctx context.Context, machineID string) (History, error) {
	h := History{MachineID: machineID}

	records, err := s.ReadTransitions(ctx, machineID)
	if err != nil {
		return h, fmt.Errorf("get history: %w", err)
	}

	h.Transitions = len(records)
	initials := 0
	for _, rec := range records {
		switch rec.Kind {
		case "initial":
			initials++
		case "event":
			h.Events++
		}
		if rec.Applied {
			h.Applied++
		}
		if rec.Discarded {
			h.Discarded++
		}
		if rec.Emitted {
			h.Emitted = append(h.Emitted, rec.State)
			h.EmittedTypes = append(h.EmittedTypes, rec.StateType)
		}
		h.LastSeq = max(h.LastSeq, rec.Seq)
	}
	if initials > 1 {
		h.Restarts = initials - 1
	}

	return h, nil
}
