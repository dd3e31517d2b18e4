package engine

import (
	"context"
	"sync"
)

// child is one running sub-machine owned by a supervisor.
type child[CS, CE any] struct {
	machine StateMachine[CS, CE]
	cancel  context.CancelFunc

	// started opens on the child's first emitted state. Forwarded events
	// wait behind it so none are dispatched before the child subscribes.
	started *gate
	forward *queue[CE]
}

// parentAdopter is implemented by *Machine so that children journal the id
// of the machine that started them.
type parentAdopter interface {
	adoptParent(id string)
}

// supervisor runs the sub-machines of one scope, at most one per key.
// Starting a child for a key that already has one cancels the old child.
type supervisor[K comparable, CS, CE, T, S, E any] struct {
	sc       *scope[S, E]
	mapEvent func(E) (CE, bool)
	mapState func(T, CS) ChangedState[S]

	mu       sync.Mutex
	children map[K]*child[CS, CE]
	wg       sync.WaitGroup
}

func newSupervisor[K comparable, CS, CE, T, S, E any](sc *scope[S, E], mapEvent func(E) (CE, bool), mapState func(T, CS) ChangedState[S]) *supervisor[K, CS, CE, T, S, E] {
	return &supervisor[K, CS, CE, T, S, E]{
		sc:       sc,
		mapEvent: mapEvent,
		mapState: mapState,
		children: make(map[K]*child[CS, CE]),
	}
}

// start subscribes to m and registers it under key, cancelling whatever ran
// under key before.
func (sv *supervisor[K, CS, CE, T, S, E]) start(key K, m StateMachine[CS, CE]) {
	childCtx, cancel := context.WithCancel(sv.sc.ctx)
	c := &child[CS, CE]{
		machine: m,
		cancel:  cancel,
		started: newGate(),
		forward: newQueue[CE](),
	}

	sv.mu.Lock()
	if prev, ok := sv.children[key]; ok {
		prev.cancel()
		prev.forward.Close()
	}
	sv.children[key] = c
	sv.mu.Unlock()

	if a, ok := m.(parentAdopter); ok {
		a.adoptParent(sv.sc.run.machine.id)
	}
	states := m.States(childCtx)

	sv.wg.Add(2)
	go func() {
		defer sv.wg.Done()
		sv.forwardEvents(childCtx, c)
	}()
	go func() {
		defer sv.wg.Done()
		defer sv.remove(key, c)
		sv.collectStates(childCtx, states, c)
	}()
}

// collectStates maps every state of the child into a state-change request of
// the parent until the child's channel closes.
func (sv *supervisor[K, CS, CE, T, S, E]) collectStates(ctx context.Context, states <-chan CS, c *child[CS, CE]) {
	for cs := range states {
		c.started.Open()

		// Holding mu orders this request against a concurrent replacement:
		// once start has cancelled the child, nothing more is requested.
		sv.mu.Lock()
		if ctx.Err() == nil {
			if snap, ok := snapshotAs[T](sv.sc); ok {
				sv.sc.request(sv.mapState(snap, cs))
			}
		}
		sv.mu.Unlock()
	}
}

// forwardEvents dispatches queued events to the child once it has started.
func (sv *supervisor[K, CS, CE, T, S, E]) forwardEvents(ctx context.Context, c *child[CS, CE]) {
	if !c.started.Wait(ctx) {
		return
	}
	for {
		ev, ok := c.forward.Next(ctx)
		if !ok {
			return
		}
		if err := dispatchChild(c.machine, ev); err != nil {
			sv.sc.run.machine.logger.Debug("child dispatch dropped",
				"machine", sv.sc.run.machine.id,
				"error", err,
			)
			return
		}
	}
}

// dispatchChild dispatches ev, turning a stopped child's NoSubscriber panic
// into an error. Other panics propagate.
func dispatchChild[CS, CE any](m StateMachine[CS, CE], ev CE) (err error) {
	defer func() {
		if v := recover(); v != nil {
			ce := RecoverContractError(v)
			if ce == nil || ce.Code != ErrCodeNoSubscriber {
				panic(v)
			}
			err = ce
		}
	}()
	m.Dispatch(ev)
	return nil
}

// broadcast forwards ev to every running child.
func (sv *supervisor[K, CS, CE, T, S, E]) broadcast(ev E) {
	if sv.mapEvent == nil {
		return
	}
	ce, ok := sv.mapEvent(ev)
	if !ok {
		return
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()
	for _, c := range sv.children {
		c.forward.Enqueue(ce)
	}
}

// remove drops c from the registry if it is still the child for key.
func (sv *supervisor[K, CS, CE, T, S, E]) remove(key K, c *child[CS, CE]) {
	sv.mu.Lock()
	if sv.children[key] == c {
		delete(sv.children, key)
	}
	sv.mu.Unlock()

	c.cancel()
	c.forward.Close()
}

// stop cancels every child and waits for their goroutines.
func (sv *supervisor[K, CS, CE, T, S, E]) stop() {
	sv.mu.Lock()
	for _, c := range sv.children {
		c.cancel()
		c.forward.Close()
	}
	sv.mu.Unlock()

	sv.wg.Wait()
}

// onEnterStartMachine starts one sub-machine per scope.
type onEnterStartMachine[CS, CE, T, S, E any] struct {
	label    string
	pred     func(S) bool
	factory  func(T) StateMachine[CS, CE]
	mapEvent func(E) (CE, bool)
	mapState func(T, CS) ChangedState[S]
}

func (e *onEnterStartMachine[CS, CE, T, S, E]) name() string            { return e.label }
func (e *onEnterStartMachine[CS, CE, T, S, E]) predicate() func(S) bool { return e.pred }
func (e *onEnterStartMachine[CS, CE, T, S, E]) consumesSteps() bool     { return true }

func (e *onEnterStartMachine[CS, CE, T, S, E]) runScope(sc *scope[S, E]) {
	snap, ok := snapshotAs[T](sc)
	if !ok {
		return
	}

	sub := e.factory(snap)
	if sub == nil {
		return
	}

	sv := newSupervisor[struct{}](sc, e.mapEvent, e.mapState)
	defer sv.stop()

	sv.start(struct{}{}, sub)

	for {
		ev, ok := sc.nextEvent(sc.ctx)
		if !ok {
			return
		}
		sv.broadcast(ev)
	}
}

// OnEnterStartMachine starts the machine built by factory every time the
// block's predicate starts to hold, and stops it when the predicate stops
// holding. Each state of the sub-machine is turned into a state change of the
// parent by mapState. Parent events for which mapEvent reports true are
// dispatched to the sub-machine once it has emitted its first state; a nil
// mapEvent forwards nothing.
//
// factory must return a machine nobody else subscribes to. A nil machine
// starts nothing for that scope.
func OnEnterStartMachine[CS, CE, T, S, E any](
	b *Block[T, S, E],
	factory func(state T) StateMachine[CS, CE],
	mapEvent func(event E) (CE, bool),
	mapState func(state T, childState CS) ChangedState[S],
) {
	b.spec.add(&onEnterStartMachine[CS, CE, T, S, E]{
		label:    b.effectName("on_enter_start_machine"),
		pred:     b.pred,
		factory:  factory,
		mapEvent: mapEvent,
		mapState: mapState,
	})
}

// onStartMachine starts one sub-machine per distinct trigger event.
type onStartMachine[A comparable, CS, CE, T, S, E any] struct {
	label    string
	pred     func(S) bool
	factory  func(A, T) StateMachine[CS, CE]
	mapEvent func(E) (CE, bool)
	mapState func(T, CS) ChangedState[S]
}

func (e *onStartMachine[A, CS, CE, T, S, E]) name() string            { return e.label }
func (e *onStartMachine[A, CS, CE, T, S, E]) predicate() func(S) bool { return e.pred }
func (e *onStartMachine[A, CS, CE, T, S, E]) consumesSteps() bool     { return true }

func (e *onStartMachine[A, CS, CE, T, S, E]) runScope(sc *scope[S, E]) {
	sv := newSupervisor[A](sc, e.mapEvent, e.mapState)
	defer sv.stop()

	for {
		ev, ok := sc.nextEvent(sc.ctx)
		if !ok {
			return
		}

		trigger, isTrigger := any(ev).(A)
		if !isTrigger {
			sv.broadcast(ev)
			continue
		}

		snap, ok := snapshotAs[T](sc)
		if !ok {
			continue
		}
		sub := e.factory(trigger, snap)
		if sub == nil {
			continue
		}
		sc.run.machine.logger.Debug("starting child machine",
			"machine", sc.run.machine.id,
			"effect", e.label,
			"trigger", trigger,
		)
		sv.start(trigger, sub)
	}
}

// OnStartMachine starts the machine built by factory for every in-scope event
// of dynamic type A. Children are keyed by the event value: a second equal
// trigger cancels the running child and starts a new one, while distinct
// triggers run side by side. Events that are not an A are forwarded to every
// running child through mapEvent.
//
// A nil machine from factory starts nothing. All children stop when the
// block's predicate stops holding.
func OnStartMachine[A comparable, CS, CE, T, S, E any](
	b *Block[T, S, E],
	factory func(trigger A, state T) StateMachine[CS, CE],
	mapEvent func(event E) (CE, bool),
	mapState func(state T, childState CS) ChangedState[S],
) {
	b.spec.add(&onStartMachine[A, CS, CE, T, S, E]{
		label:    b.effectName("on_start_machine_" + typeLabel[A]()),
		pred:     b.pred,
		factory:  factory,
		mapEvent: mapEvent,
		mapState: mapState,
	})
}
