package engine

import "fmt"

// envelopeKind distinguishes the internal envelopes flowing through the
// store loop. Callers never see envelopes; they dispatch plain events.
type envelopeKind int

const (
	// envelopeEvent wraps an externally dispatched event.
	envelopeEvent envelopeKind = iota + 1
	// envelopeInitial marks the start of a subscription so that side effects
	// evaluate their predicates against the initial state.
	envelopeInitial
	// envelopeChange carries a state-change request produced by a handler.
	envelopeChange
)

// String returns the kind name used in logs and the journal.
func (k envelopeKind) String() string {
	switch k {
	case envelopeEvent:
		return "event"
	case envelopeInitial:
		return "initial"
	case envelopeChange:
		return "change"
	default:
		return fmt.Sprintf("envelopeKind(%d)", int(k))
	}
}

// scopeToken identifies the scope a state-change request was produced in:
// the index of the declaring side effect and the epoch of the scope.
type scopeToken struct {
	effect int
	epoch  uint64
}

// envelope is the unit of work of the store loop.
type envelope[S, E any] struct {
	kind  envelopeKind
	event E

	// Only set for envelopeChange.
	change ChangedState[S]
	guard  func(S) bool
	token  scopeToken
}

func wrapEvent[S, E any](ev E) envelope[S, E] {
	return envelope[S, E]{kind: envelopeEvent, event: ev}
}

func initialMarker[S, E any]() envelope[S, E] {
	return envelope[S, E]{kind: envelopeInitial}
}

// step is what the store loop broadcasts to every side effect after each
// reduction: the original envelope, the state it resulted in, and whether the
// side effect's scope is open for that state (with the scope's epoch).
type step[S, E any] struct {
	env   envelope[S, E]
	state S
	open  bool
	epoch uint64
}
