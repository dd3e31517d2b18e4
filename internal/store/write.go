package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/trace"
)

var _ engine.Journal = (*Store)(nil)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RegisterMachine records a display name and optional parent for a machine
// id. Fields already set by an earlier registration are kept; empty ones are
// filled in.
func (s *Store) RegisterMachine(ctx context.Context, id, name, parentID string) error {
	return registerMachine(ctx, s.db, id, name, parentID)
}

func registerMachine(ctx context.Context, db execer, id, name, parentID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO machines (id, name, parent_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN machines.name = '' THEN excluded.name ELSE machines.name END,
			parent_id = CASE WHEN machines.parent_id = '' THEN excluded.parent_id ELSE machines.parent_id END
	`, id, name, parentID)
	if err != nil {
		return fmt.Errorf("register machine %s: %w", id, err)
	}
	return nil
}

// Record appends one reduction to the journal. It implements engine.Journal.
//
// The initial transition of a subscription also registers the machine with
// its name and parent, so child machines show up linked to their parent.
//
// Uses ON CONFLICT DO NOTHING for idempotency: the transition id is derived
// from the machine id, seq, kind and canonical state, so recording the same
// reduction twice is silently ignored.
func (s *Store) Record(ctx context.Context, t engine.Transition) error {
	st, err := marshalState(t.State)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	id, err := trace.TransitionID(t.MachineID, t.Seq, t.Kind, []byte(st.JSON))
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	defer tx.Rollback()

	if t.Kind == "initial" {
		if err := registerMachine(ctx, tx, t.MachineID, t.MachineName, t.ParentID); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transitions
		(id, machine_id, seq, kind, event_type, event, applied, emitted, discarded, state_type, state, state_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		id,
		t.MachineID,
		t.Seq,
		t.Kind,
		t.EventType,
		t.Event,
		boolToInt(t.Applied),
		boolToInt(t.Emitted),
		boolToInt(t.Discarded),
		st.Type,
		st.JSON,
		st.Hash,
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}
