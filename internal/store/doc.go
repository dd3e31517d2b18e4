// Package store provides a SQLite-backed journal of state machine reductions.
//
// Every reduction of a machine's store loop can be recorded as one row:
//   - Machines: id, a display name and an optional parent machine id,
//     registered by the initial transition of each subscription
//   - Transitions: machine id, seq, envelope kind, event, the applied,
//     emitted and discarded flags, and the resulting state as canonical JSON
//
// The journal is an audit and debugging aid. It is never read back into a
// running machine.
//
// # Ordering
//
// Transitions read back in seq order (the machine's logical clock), never by
// timestamps, so a trace of the same scenario reads back identically.
// Machines list by id.
//
// # Idempotency
//
// Transition ids are content addressed (see trace.TransitionID). Writing the
// same transition twice is a no-op via ON CONFLICT DO NOTHING.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
