package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// StateMachine is the surface a caller (or a parent machine) drives:
// dispatch events in, collect states out.
type StateMachine[S, E any] interface {
	// Dispatch enqueues an event. It panics with a *ContractError if no
	// subscriber is collecting States.
	Dispatch(event E)

	// States starts the machine and returns its emitted states. The channel
	// is closed after ctx is done and the machine has stopped.
	States(ctx context.Context) <-chan S
}

// Machine is a reactive state machine.
//
// A Machine owns one store loop per subscription. Side effects are declared
// once with Spec; States starts them and Dispatch feeds events in.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine
//   - States(): at most one active subscriber at a time
//   - Spec(): exactly once, before States
//
// INVARIANTS:
//   - State is written only by the store loop
//   - Side effects see state only through snapshots
//   - At most one reduction is in flight
type Machine[S, E any] struct {
	id      string
	name    string
	initial func() S
	logger  *slog.Logger
	journal Journal
	clock   *Clock
	equal   func(a, b S) bool

	mu       sync.Mutex
	parentID string // Set when a parent machine starts this one as a child
	specSet  bool
	effects []sideEffect[S, E]
	run     *run[S, E] // Current subscription, nil when idle

	active atomic.Int32 // Active subscribers; exceeding 1 is a contract violation
}

// Option allows configuration of machine parameters.
type Option func(*options)

type options struct {
	name    string
	logger  *slog.Logger
	journal Journal
	clock   *Clock
	idGen   IDGenerator
	equal   any
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName sets the display name journaled with the machine's transitions.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithJournal records every reduction to j.
func WithJournal(j Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// WithClock sets the logical clock stamping reductions.
func WithClock(c *Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDGenerator sets the machine id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.idGen = g
	}
}

// WithStateEqual overrides duplicate suppression: a state equal to the last
// emitted one is not emitted again. The function type must be
// func(a, b S) bool for the machine's state type, otherwise it is ignored.
func WithStateEqual[S any](equal func(a, b S) bool) Option {
	return func(o *options) {
		o.equal = equal
	}
}

// New creates a Machine starting in initial.
func New[S, E any](initial S, opts ...Option) *Machine[S, E] {
	return NewWithSupplier[S, E](func() S { return initial }, opts...)
}

// NewWithSupplier creates a Machine whose initial state is computed at the
// start of every subscription.
func NewWithSupplier[S, E any](initial func() S, opts ...Option) *Machine[S, E] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	if o.idGen == nil {
		o.idGen = UUIDv7Generator{}
	}

	m := &Machine[S, E]{
		id:      o.idGen.Generate(),
		name:    o.name,
		initial: initial,
		logger:  o.logger,
		journal: o.journal,
		clock:   o.clock,
	}
	if eq, ok := o.equal.(func(a, b S) bool); ok {
		m.equal = eq
	}
	return m
}

// ID returns the machine id used in logs and the journal.
func (m *Machine[S, E]) ID() string {
	return m.id
}

// Name returns the display name set with WithName.
func (m *Machine[S, E]) Name() string {
	return m.name
}

// ParentID returns the id of the machine that started this one as a child,
// or "" for a top-level machine.
func (m *Machine[S, E]) ParentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parentID
}

// adoptParent links m to the machine that supervises it.
func (m *Machine[S, E]) adoptParent(id string) {
	m.mu.Lock()
	m.parentID = id
	m.mu.Unlock()
}

// Clock returns the machine's logical clock.
func (m *Machine[S, E]) Clock() *Clock {
	return m.clock
}

// Spec declares the machine's side effects. It must be called exactly once;
// a second call panics with ErrCodeSpecAlreadySet.
func (m *Machine[S, E]) Spec(declare func(s *Spec[S, E])) {
	s := &Spec[S, E]{}
	declare(s)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.specSet {
		panic(newContractError(ErrCodeSpecAlreadySet, m.id, "spec is already defined for this machine"))
	}

	// Copy to prevent later mutation through the builder.
	m.effects = append([]sideEffect[S, E](nil), s.effects...)
	m.specSet = true
}

// Dispatch enqueues event for the store loop. Fire-and-forget.
//
// Panics with ErrCodeSpecNotSet if Spec was never called and with
// ErrCodeNoSubscriber if nobody is collecting States.
func (m *Machine[S, E]) Dispatch(event E) {
	m.mu.Lock()
	specSet, r := m.specSet, m.run
	m.mu.Unlock()

	if !specSet {
		panic(newContractError(ErrCodeSpecNotSet, m.id, specNotSetMessage))
	}
	if m.active.Load() <= 0 || r == nil {
		panic(newContractError(ErrCodeNoSubscriber, m.id, "dispatch requires an active States subscriber"))
	}

	if !r.inbox.Enqueue(wrapEvent[S, E](event)) {
		// The subscription ended between the check and the enqueue.
		m.logger.Debug("event dropped: subscription ended",
			"machine", m.id,
			"event", event,
		)
	}
}

// States starts a store loop and returns the lazy, infinite sequence of
// states it emits, beginning with the initial state.
//
// The channel is unbuffered: the loop waits for the subscriber. Cancel ctx to
// stop the machine; the channel is closed once every side effect has returned.
// A later call starts over from the initial state.
//
// Panics with ErrCodeConcurrentSubscriber if another subscription is active.
func (m *Machine[S, E]) States(ctx context.Context) <-chan S {
	m.mu.Lock()
	if !m.specSet {
		m.mu.Unlock()
		panic(newContractError(ErrCodeSpecNotSet, m.id, specNotSetMessage))
	}
	if m.active.Add(1) > 1 {
		m.active.Add(-1)
		m.mu.Unlock()
		panic(newContractError(ErrCodeConcurrentSubscriber, m.id, "a second subscriber attached while one is active"))
	}
	r := newRun(m)
	m.run = r
	m.mu.Unlock()

	m.logger.Info("machine starting",
		"machine", m.id,
		"side_effects", len(m.effects),
	)

	out := make(chan S)
	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer cancel()

		r.loop(runCtx, out)

		m.mu.Lock()
		if m.run == r {
			m.run = nil
		}
		m.mu.Unlock()
		// Decrement before the channel closes so the subscriber can
		// resubscribe as soon as it observes the close.
		m.active.Add(-1)

		m.logger.Info("machine stopped", "machine", m.id)
	}()

	return out
}

// Active reports whether a subscriber is currently collecting States.
func (m *Machine[S, E]) Active() bool {
	return m.active.Load() > 0
}
