package engine

import (
	"context"
	"sync"
)

// binding is the store loop's view of one side effect's scope: whether the
// side effect's predicate holds for the current state, and the epoch of the
// scope opened by the last false→true edge.
//
// The store loop is the only writer. Because it decides scope edges itself,
// every side effect sees exactly the same open/close sequence the reducer
// uses to validate requests.
type binding[S any] struct {
	pred  func(S) bool
	open  bool
	epoch uint64
}

// observe re-evaluates the predicate against state. It reports whether a new
// scope was opened or the current one closed.
func (b *binding[S]) observe(state S) (opened, closed bool) {
	in := b.pred(state)
	switch {
	case in && !b.open:
		b.open = true
		b.epoch++
		return true, false
	case !in && b.open:
		b.open = false
		return false, true
	default:
		return false, false
	}
}

// admits reports whether a request produced under tok may still be reduced.
func (b *binding[S]) admits(tok scopeToken) bool {
	return b.open && b.epoch == tok.epoch
}

// scope is one open window of a side effect: the time during which its
// predicate holds. A scope is never resumed; re-entering the predicate opens
// a new one with a new epoch.
type scope[S, E any] struct {
	ctx   context.Context
	steps *queue[step[S, E]]
	token scopeToken
	guard func(S) bool
	run   *run[S, E]
}

// snapshot returns the machine's current state if it still satisfies the
// scope's predicate.
func (sc *scope[S, E]) snapshot() (S, bool) {
	cur := sc.run.current()
	if !sc.guard(cur) {
		var zero S
		return zero, false
	}
	return cur, true
}

// request submits cs to the store loop as a state-change request guarded by
// the scope's predicate and token. NoChange results are not submitted.
func (sc *scope[S, E]) request(cs ChangedState[S]) bool {
	if IsNoChange(cs) {
		return true
	}
	return sc.run.inbox.Enqueue(envelope[S, E]{
		kind:   envelopeChange,
		change: cs,
		guard:  sc.guard,
		token:  sc.token,
	})
}

// next returns the next in-scope step.
func (sc *scope[S, E]) next(ctx context.Context) (step[S, E], bool) {
	return sc.steps.Next(ctx)
}

// nextEvent returns the next externally dispatched event seen in scope.
func (sc *scope[S, E]) nextEvent(ctx context.Context) (E, bool) {
	for {
		st, ok := sc.steps.Next(ctx)
		if !ok {
			var zero E
			return zero, false
		}
		if st.env.kind == envelopeEvent {
			return st.env.event, true
		}
	}
}

// snapshotAs narrows the scope's current snapshot to the block's variant T.
func snapshotAs[T, S, E any](sc *scope[S, E]) (T, bool) {
	cur, ok := sc.snapshot()
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := any(cur).(T)
	return typed, ok
}

// bind follows the store loop's scope decisions for one side effect: it opens
// a fresh scope on every new epoch, forwards in-scope steps into it, and
// cancels it as soon as the loop reports the predicate no longer holds.
//
// Returns when ctx is done or the loopback queue is closed, after every scope
// goroutine it started has returned.
func (r *run[S, E]) bind(ctx context.Context, idx int, se sideEffect[S, E], loopback *queue[step[S, E]]) {
	var (
		wg     sync.WaitGroup
		cur    *scope[S, E]
		cancel context.CancelFunc
	)

	closeScope := func() {
		if cur == nil {
			return
		}
		cancel()
		cur.steps.Close()
		r.machine.logger.Debug("scope closed",
			"machine", r.machine.id,
			"effect", se.name(),
			"epoch", cur.token.epoch,
		)
		cur, cancel = nil, nil
	}

	defer func() {
		closeScope()
		wg.Wait()
	}()

	for {
		st, ok := loopback.Next(ctx)
		if !ok {
			return
		}

		if !st.open {
			closeScope()
			continue
		}

		if cur == nil || cur.token.epoch != st.epoch {
			// A new epoch always means a fresh scope, even if the loop
			// closed and reopened between two steps we observed.
			closeScope()

			scopeCtx, scopeCancel := context.WithCancel(ctx)
			cur = &scope[S, E]{
				ctx:   scopeCtx,
				steps: newQueue[step[S, E]](),
				token: scopeToken{effect: idx, epoch: st.epoch},
				guard: se.predicate(),
				run:   r,
			}
			cancel = scopeCancel

			r.machine.logger.Debug("scope opened",
				"machine", r.machine.id,
				"effect", se.name(),
				"epoch", st.epoch,
			)

			sc := cur
			wg.Add(1)
			go func() {
				defer wg.Done()
				se.runScope(sc)
			}()
		}

		if se.consumesSteps() {
			cur.steps.Enqueue(st)
		}
	}
}
