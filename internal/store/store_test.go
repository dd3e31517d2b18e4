package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"machines", "transitions"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM transitions").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_TransitionsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "transitions")
	expected := []string{
		"id", "machine_id", "seq", "kind", "event_type", "event",
		"applied", "emitted", "discarded", "state_type", "state", "state_hash",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("transitions table missing column %q", col)
		}
	}

	indexes := getTableIndexes(t, s.db, "transitions")
	for _, idx := range []string{"idx_transitions_machine_seq", "idx_transitions_machine_kind"} {
		if !contains(indexes, idx) {
			t.Errorf("transitions table missing index %q", idx)
		}
	}
}

func TestSchema_RejectsUnknownKind(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO transitions (id, machine_id, seq, kind, state_type, state, state_hash)
		VALUES ('t1', 'm1', 1, 'bogus', 'x', '{}', 'h')
	`)
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown kind")
	}
}

func TestOpen_MigratesOlderJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	// Roll the journal back to a version without the kind index.
	for _, stmt := range []string{
		"DROP INDEX idx_transitions_machine_kind",
		"PRAGMA user_version = 0",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if !contains(getTableIndexes(t, s.db, "transitions"), "idx_transitions_machine_kind") {
		t.Error("kind index was not recreated")
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}
