package engine

import "context"

// Stream is an external asynchronous sequence. It is subscribed once per
// scope: the engine calls it with the scope's context and stops reading when
// the scope closes. Implementations should stop producing and close the
// channel once ctx is done.
type Stream[V any] func(ctx context.Context) <-chan V

// onEnter fires its handler once per scope.
type onEnter[T, S, E any] struct {
	label   string
	pred    func(S) bool
	handler func(ctx context.Context, state T) ChangedState[S]
}

func (e *onEnter[T, S, E]) name() string            { return e.label }
func (e *onEnter[T, S, E]) predicate() func(S) bool { return e.pred }
func (e *onEnter[T, S, E]) consumesSteps() bool     { return false }

func (e *onEnter[T, S, E]) runScope(sc *scope[S, E]) {
	snap, ok := snapshotAs[T](sc)
	if !ok {
		return
	}
	cs := e.handler(sc.ctx, snap)
	if sc.ctx.Err() != nil {
		return
	}
	sc.request(cs)
}

// onAction runs its handler for every in-scope event of type A.
type onAction[A, T, S, E any] struct {
	label   string
	pred    func(S) bool
	policy  ExecutionPolicy
	handler func(ctx context.Context, event A, state T) ChangedState[S]
}

func (e *onAction[A, T, S, E]) name() string            { return e.label }
func (e *onAction[A, T, S, E]) predicate() func(S) bool { return e.pred }
func (e *onAction[A, T, S, E]) consumesSteps() bool     { return true }

func (e *onAction[A, T, S, E]) runScope(sc *scope[S, E]) {
	next := func(ctx context.Context) (A, bool) {
		for {
			ev, ok := sc.nextEvent(ctx)
			if !ok {
				var zero A
				return zero, false
			}
			if typed, ok := any(ev).(A); ok {
				return typed, true
			}
		}
	}

	runPolicy(sc.ctx, e.policy, next, func(ctx context.Context, ev A, emit func(func() bool) bool) {
		snap, ok := snapshotAs[T](sc)
		if !ok {
			return
		}
		cs := e.handler(ctx, ev, snap)
		emit(func() bool { return sc.request(cs) })
	})
}

// On runs handler for every event of dynamic type A dispatched while the
// block's predicate holds. Handlers are combined under policy; the
// conventional default is CancelPrevious.
//
//	engine.On[LoadNextPage](b, engine.CancelPrevious, loadNext)
func On[A, T, S, E any](b *Block[T, S, E], policy ExecutionPolicy, handler func(ctx context.Context, event A, state T) ChangedState[S]) {
	b.spec.add(&onAction[A, T, S, E]{
		label:   b.effectName("on_" + typeLabel[A]()),
		pred:    b.pred,
		policy:  policy,
		handler: handler,
	})
}

// OnEffect is On for handlers that never change state.
func OnEffect[A, T, S, E any](b *Block[T, S, E], policy ExecutionPolicy, handler func(ctx context.Context, event A, state T)) {
	On(b, policy, func(ctx context.Context, event A, state T) ChangedState[S] {
		handler(ctx, event, state)
		return NoChange[S]()
	})
}

// collect subscribes to an external stream while in scope.
type collect[V, T, S, E any] struct {
	label   string
	pred    func(S) bool
	policy  ExecutionPolicy
	stream  Stream[V]
	handler func(ctx context.Context, item V, state T) ChangedState[S]
}

func (e *collect[V, T, S, E]) name() string            { return e.label }
func (e *collect[V, T, S, E]) predicate() func(S) bool { return e.pred }
func (e *collect[V, T, S, E]) consumesSteps() bool     { return false }

func (e *collect[V, T, S, E]) runScope(sc *scope[S, E]) {
	items := e.stream(sc.ctx)
	collectItems(sc, e.policy, items, e.handler)
}

// Collect subscribes to stream every time the block's predicate starts to
// hold and unsubscribes when it stops. Each item triggers handler under
// policy; the conventional default is Ordered.
func Collect[V, T, S, E any](b *Block[T, S, E], stream Stream[V], policy ExecutionPolicy, handler func(ctx context.Context, item V, state T) ChangedState[S]) {
	b.spec.add(&collect[V, T, S, E]{
		label:   b.effectName("collect"),
		pred:    b.pred,
		policy:  policy,
		stream:  stream,
		handler: handler,
	})
}

// CollectEffect is Collect for handlers that never change state.
func CollectEffect[V, T, S, E any](b *Block[T, S, E], stream Stream[V], policy ExecutionPolicy, handler func(ctx context.Context, item V, state T)) {
	Collect(b, stream, policy, func(ctx context.Context, item V, state T) ChangedState[S] {
		handler(ctx, item, state)
		return NoChange[S]()
	})
}

// collectFromState builds a stream from the in-scope states.
type collectFromState[V, T, S, E any] struct {
	label   string
	pred    func(S) bool
	policy  ExecutionPolicy
	build   func(ctx context.Context, states <-chan T) <-chan V
	handler func(ctx context.Context, item V, state T) ChangedState[S]
}

func (e *collectFromState[V, T, S, E]) name() string            { return e.label }
func (e *collectFromState[V, T, S, E]) predicate() func(S) bool { return e.pred }
func (e *collectFromState[V, T, S, E]) consumesSteps() bool     { return true }

func (e *collectFromState[V, T, S, E]) runScope(sc *scope[S, E]) {
	states := make(chan T)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(states)

		var (
			last S
			seen bool
		)
		for {
			st, ok := sc.next(sc.ctx)
			if !ok {
				return
			}
			typed, ok := any(st.state).(T)
			if !ok {
				continue
			}
			if seen && sc.run.machine.sameState(last, st.state) {
				continue
			}
			last, seen = st.state, true

			select {
			case states <- typed:
			case <-sc.ctx.Done():
				return
			}
		}
	}()

	collectItems(sc, e.policy, e.build(sc.ctx, states), e.handler)
	<-done
}

// CollectFromState is Collect for streams derived from the machine's own
// state: build receives the distinct snapshots of T observed while in scope
// and returns the stream whose items trigger handler.
func CollectFromState[V, T, S, E any](b *Block[T, S, E], build func(ctx context.Context, states <-chan T) <-chan V, policy ExecutionPolicy, handler func(ctx context.Context, item V, state T) ChangedState[S]) {
	b.spec.add(&collectFromState[V, T, S, E]{
		label:   b.effectName("collect_from_state"),
		pred:    b.pred,
		policy:  policy,
		build:   build,
		handler: handler,
	})
}

// collectItems feeds items into handler under policy until the channel is
// closed or the scope ends.
func collectItems[V, T, S, E any](sc *scope[S, E], policy ExecutionPolicy, items <-chan V, handler func(ctx context.Context, item V, state T) ChangedState[S]) {
	next := func(ctx context.Context) (V, bool) {
		select {
		case item, ok := <-items:
			return item, ok
		case <-ctx.Done():
			var zero V
			return zero, false
		}
	}

	runPolicy(sc.ctx, policy, next, func(ctx context.Context, item V, emit func(func() bool) bool) {
		snap, ok := snapshotAs[T](sc)
		if !ok {
			return
		}
		cs := handler(ctx, item, snap)
		emit(func() bool { return sc.request(cs) })
	})
}
