package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// TransitionRecord is one journaled reduction as read back from the store.
type TransitionRecord struct {
	ID        string          `json:"id"`
	MachineID string          `json:"machine_id"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	EventType string          `json:"event_type,omitempty"`
	Event     string          `json:"event,omitempty"`
	Applied   bool            `json:"applied"`
	Emitted   bool            `json:"emitted"`
	Discarded bool            `json:"discarded"`
	StateType string          `json:"state_type"`
	State     json.RawMessage `json:"state"`
	StateHash string          `json:"state_hash"`
}

// MachineSummary describes one machine present in the journal.
type MachineSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	Transitions int    `json:"transitions"`
	FirstSeq    int64  `json:"first_seq"`
	LastSeq     int64  `json:"last_seq"`
}

// ReadTransitions returns every transition of a machine ordered by seq.
//
// Returns an empty slice (not nil) if the machine has no records.
func (s *Store) ReadTransitions(ctx context.Context, machineID string) ([]TransitionRecord, error) {
	return s.QueryTransitions(ctx, Equals{Field: "machine_id", Value: machineID}, 0)
}

// ReadMachines lists every machine with at least one transition, ordered by
// id. Each machine has its own clock, so seqs are not comparable across
// machines; UUIDv7 ids sort by creation time.
func (s *Store) ReadMachines(ctx context.Context) ([]MachineSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.machine_id,
		       COALESCE(m.name, ''),
		       COALESCE(m.parent_id, ''),
		       COUNT(*),
		       MIN(t.seq),
		       MAX(t.seq)
		FROM transitions t
		LEFT JOIN machines m ON m.id = t.machine_id
		GROUP BY t.machine_id
		ORDER BY t.machine_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	machines := []MachineSummary{}
	for rows.Next() {
		var m MachineSummary
		if err := rows.Scan(&m.ID, &m.Name, &m.ParentID, &m.Transitions, &m.FirstSeq, &m.LastSeq); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		machines = append(machines, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machines: %w", err)
	}

	return machines, nil
}

func scanTransition(rows *sql.Rows) (TransitionRecord, error) {
	var (
		rec                         TransitionRecord
		applied, emitted, discarded int
		state                       string
	)
	err := rows.Scan(
		&rec.ID,
		&rec.MachineID,
		&rec.Seq,
		&rec.Kind,
		&rec.EventType,
		&rec.Event,
		&applied,
		&emitted,
		&discarded,
		&rec.StateType,
		&state,
		&rec.StateHash,
	)
	if err != nil {
		return rec, fmt.Errorf("scan transition: %w", err)
	}

	rec.Applied = applied != 0
	rec.Emitted = emitted != 0
	rec.Discarded = discarded != 0
	rec.State, err = unmarshalState(state)
	if err != nil {
		return rec, fmt.Errorf("transition %s: %w", rec.ID, err)
	}
	return rec, nil
}
