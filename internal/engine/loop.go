package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// run is one subscription of a Machine: one store loop, its inbox, and the
// side-effect goroutines it feeds. A new subscription gets a new run.
type run[S, E any] struct {
	machine *Machine[S, E]
	inbox   *queue[envelope[S, E]]
	state   atomic.Pointer[S]
}

func newRun[S, E any](m *Machine[S, E]) *run[S, E] {
	r := &run[S, E]{
		machine: m,
		inbox:   newQueue[envelope[S, E]](),
	}
	// The initial marker is always the first envelope reduced.
	r.inbox.Enqueue(initialMarker[S, E]())
	return r
}

// current returns a snapshot of the state last produced by the store loop.
// Side effects read state only through this accessor.
func (r *run[S, E]) current() S {
	return *r.state.Load()
}

func (r *run[S, E]) setCurrent(s S) {
	r.state.Store(&s)
}

// loop is the single serialization point of a machine.
//
// It emits the initial state, starts one loopback queue per declared side
// effect, then reduces envelopes from the inbox one at a time: identity for
// events and the initial marker, guarded application for state-change
// requests. Every envelope is rebroadcast with its resulting state to every
// side effect.
//
// CRITICAL: exactly one goroutine runs loop for a run. No two reductions ever
// happen concurrently.
func (r *run[S, E]) loop(ctx context.Context, out chan<- S) {
	m := r.machine

	state := m.initial()
	r.setCurrent(state)

	select {
	case out <- state:
	case <-ctx.Done():
		return
	}
	last := state

	effects := m.effects
	loopbacks := make([]*queue[step[S, E]], len(effects))
	bindings := make([]binding[S], len(effects))

	var wg sync.WaitGroup
	for i, se := range effects {
		loopbacks[i] = newQueue[step[S, E]]()
		bindings[i] = binding[S]{pred: se.predicate()}

		wg.Add(1)
		go func(idx int, se sideEffect[S, E], lb *queue[step[S, E]]) {
			defer wg.Done()
			r.bind(ctx, idx, se, lb)
		}(i, se, loopbacks[i])
	}

	defer func() {
		r.inbox.Close()
		for _, lb := range loopbacks {
			lb.Close()
		}
		wg.Wait()
	}()

	for {
		env, ok := r.inbox.Next(ctx)
		if !ok {
			return
		}

		seq := m.clock.Next()
		next, applied, discarded := reduce(state, env, bindings)
		state = next
		r.setCurrent(state)

		// The initial state was emitted before the loop started.
		emitted := env.kind == envelopeInitial
		if applied && !m.sameState(last, state) {
			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
			last = state
			emitted = true
		}

		if discarded {
			m.logger.Debug("state change discarded",
				"machine", m.id,
				"seq", seq,
				"effect", effects[env.token.effect].name(),
				"epoch", env.token.epoch,
			)
		} else {
			m.logger.Debug("envelope reduced",
				"machine", m.id,
				"seq", seq,
				"kind", env.kind.String(),
				"applied", applied,
				"emitted", emitted,
			)
		}

		m.record(ctx, seq, env, state, applied, emitted, discarded)

		for i := range bindings {
			bindings[i].observe(state)
			loopbacks[i].Enqueue(step[S, E]{
				env:   env,
				state: state,
				open:  bindings[i].open,
				epoch: bindings[i].epoch,
			})
		}
	}
}

// reduce applies env to state.
//
// Events and the initial marker never change state. A state-change request is
// applied only if the scope it was produced in is still the open scope of its
// side effect and its guard predicate holds against the current state;
// otherwise it is discarded unreduced.
func reduce[S, E any](state S, env envelope[S, E], bindings []binding[S]) (next S, applied, discarded bool) {
	switch env.kind {
	case envelopeChange:
		tok := env.token
		if tok.effect < 0 || tok.effect >= len(bindings) || !bindings[tok.effect].admits(tok) {
			return state, false, true
		}
		if env.guard != nil && !env.guard(state) {
			return state, false, true
		}
		next, applied = Reduce(env.change, state)
		return next, applied, false
	default:
		return state, false, false
	}
}

// sameState reports whether two emissions are the same state.
//
// A WithStateEqual option takes precedence. Otherwise comparable dynamic
// types compare with ==, which is identity for pointer variants; states
// holding slices or maps are never considered the same.
func (m *Machine[S, E]) sameState(a, b S) bool {
	if m.equal != nil {
		return m.equal(a, b)
	}
	av, bv := any(a), any(b)
	if av == nil || bv == nil {
		return av == nil && bv == nil
	}
	if reflect.TypeOf(av) != reflect.TypeOf(bv) || !reflect.ValueOf(av).Comparable() {
		return false
	}
	return av == bv
}

// record writes one reduction to the journal, if any.
// Journal failures are logged and the loop continues.
func (m *Machine[S, E]) record(ctx context.Context, seq int64, env envelope[S, E], state S, applied, emitted, discarded bool) {
	if m.journal == nil {
		return
	}

	t := Transition{
		MachineID:   m.id,
		Seq:         seq,
		MachineName: m.name,
		ParentID:    m.ParentID(),
		Kind:        env.kind.String(),
		Applied:     applied,
		Emitted:     emitted,
		Discarded:   discarded,
		State:       state,
	}
	if env.kind == envelopeEvent {
		t.EventType = fmt.Sprintf("%T", env.event)
		t.Event = fmt.Sprintf("%+v", env.event)
	}

	// A reduction that happened is recorded even while the run shuts down.
	if err := m.journal.Record(context.WithoutCancel(ctx), t); err != nil {
		m.logger.Error("journal record failed",
			"error", err,
			"machine", m.id,
			"seq", seq,
			"kind", t.Kind,
		)
	}
}
