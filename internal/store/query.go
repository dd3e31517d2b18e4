package store

import (
	"context"
	"fmt"
	"strings"
)

// Predicate is a filter over journaled transitions. Predicates compile to a
// parameterized SQL fragment; values are never interpolated.
type Predicate interface {
	compile() (string, []any, error)
}

// Equals matches transitions whose column equals Value.
type Equals struct {
	Field string
	Value any
}

// In matches transitions whose column is one of Values. An empty In matches
// nothing.
type In struct {
	Field  string
	Values []any
}

// And matches transitions that satisfy every predicate. An empty And
// matches everything.
type And []Predicate

// filterColumns are the transition columns a Predicate may reference.
var filterColumns = map[string]bool{
	"machine_id": true,
	"seq":        true,
	"kind":       true,
	"event_type": true,
	"applied":    true,
	"emitted":    true,
	"discarded":  true,
	"state_type": true,
	"state_hash": true,
}

func checkField(field string) error {
	if !filterColumns[field] {
		return fmt.Errorf("unknown transition field %q", field)
	}
	return nil
}

func (p Equals) compile() (string, []any, error) {
	if err := checkField(p.Field); err != nil {
		return "", nil, err
	}
	return p.Field + " = ?", []any{sqlParam(p.Value)}, nil
}

func (p In) compile() (string, []any, error) {
	if err := checkField(p.Field); err != nil {
		return "", nil, err
	}
	if len(p.Values) == 0 {
		return "1 = 0", nil, nil
	}
	params := make([]any, len(p.Values))
	for i, v := range p.Values {
		params[i] = sqlParam(v)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
	return fmt.Sprintf("%s IN (%s)", p.Field, placeholders), params, nil
}

func (p And) compile() (string, []any, error) {
	if len(p) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(p))
	var params []any
	for _, pred := range p {
		if pred == nil {
			continue
		}
		sql, ps, err := pred.compile()
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// sqlParam stores booleans the way the schema does.
func sqlParam(v any) any {
	if b, ok := v.(bool); ok {
		return boolToInt(b)
	}
	return v
}

// compileQuery builds the SELECT for filter. Every query is ordered by
// (machine_id, seq, id) so results are deterministic.
func compileQuery(filter Predicate, limit int) (string, []any, error) {
	where := "1 = 1"
	var params []any
	if filter != nil {
		var err error
		where, params, err = filter.compile()
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
	}

	query := `SELECT id, machine_id, seq, kind, event_type, event, applied, emitted, discarded, state_type, state, state_hash
		FROM transitions
		WHERE ` + where + `
		ORDER BY machine_id COLLATE BINARY ASC, seq ASC, id COLLATE BINARY ASC`
	if limit > 0 {
		query += "\n\t\tLIMIT ?"
		params = append(params, limit)
	}
	return query, params, nil
}

// QueryTransitions returns the transitions matching filter, ordered by
// machine and seq. A nil filter matches every transition; limit <= 0 means
// no limit.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryTransitions(ctx context.Context, filter Predicate, limit int) ([]TransitionRecord, error) {
	query, params, err := compileQuery(filter, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	records := []TransitionRecord{}
	for rows.Next() {
		rec, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return records, nil
}
