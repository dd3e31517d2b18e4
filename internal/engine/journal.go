package engine

import "context"

// Transition is one reduction of the store loop as seen by a Journal.
type Transition struct {
	MachineID string
	Seq       int64

	// MachineName and ParentID identify the machine: its WithName name and
	// the id of the machine that started it as a child, if any.
	MachineName string
	ParentID    string

	// Kind is "initial", "event" or "change".
	Kind string

	// EventType and Event describe the dispatched event (Kind "event" only).
	EventType string
	Event     string

	// Applied is true when a state-change request changed the state.
	Applied bool
	// Emitted is true when the resulting state was sent to the subscriber.
	Emitted bool
	// Discarded is true when a request failed its guard re-check.
	Discarded bool

	// State is the state after the reduction.
	State any
}

// Journal records reductions. Record is called from the store loop, so it
// must not call back into the machine.
type Journal interface {
	Record(ctx context.Context, t Transition) error
}
