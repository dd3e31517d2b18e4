package engine

import (
	"context"
	"fmt"
)

// sideEffect is one declared handler bound to a state predicate.
//
// The store loop evaluates predicate() after every reduction; bind opens a
// scope for each false→true edge and calls runScope in its own goroutine.
// runScope must return promptly once the scope's context is done.
type sideEffect[S, E any] interface {
	name() string
	predicate() func(S) bool

	// consumesSteps reports whether runScope reads the scope's steps. Side
	// effects that only react to the scope opening do not.
	consumesSteps() bool

	runScope(sc *scope[S, E])
}

// Spec collects the side effects of a machine. It is only valid inside the
// function passed to Machine.Spec.
type Spec[S, E any] struct {
	effects []sideEffect[S, E]
}

func (s *Spec[S, E]) add(se sideEffect[S, E]) {
	s.effects = append(s.effects, se)
}

// Block declares side effects active while the machine is in variant T of S
// (optionally refined by a condition).
type Block[T, S, E any] struct {
	spec  *Spec[S, E]
	pred  func(S) bool
	label string
}

func (b *Block[T, S, E]) effectName(kind string) string {
	return fmt.Sprintf("%s/%s#%d", b.label, kind, len(b.spec.effects))
}

// InState declares side effects for the states that are a T.
//
//	engine.InState[Loading](s, func(b *engine.Block[Loading, State, Event]) {
//	    b.OnEnter(load)
//	})
func InState[T, S, E any](s *Spec[S, E], declare func(b *Block[T, S, E])) {
	b := &Block[T, S, E]{
		spec: s,
		pred: func(state S) bool {
			_, ok := any(state).(T)
			return ok
		},
		label: typeLabel[T](),
	}
	declare(b)
}

// InStateWhere declares side effects for the states that are a T and satisfy
// cond. Requests from these side effects are voided by any transition that
// makes cond false, even if the state stays a T.
func InStateWhere[T, S, E any](s *Spec[S, E], cond func(T) bool, declare func(b *Block[T, S, E])) {
	b := &Block[T, S, E]{
		spec: s,
		pred: func(state S) bool {
			typed, ok := any(state).(T)
			return ok && cond(typed)
		},
		label: typeLabel[T]() + "?",
	}
	declare(b)
}

// InStateWithCondition declares side effects for every state satisfying pred.
func (s *Spec[S, E]) InStateWithCondition(pred func(S) bool, declare func(b *Block[S, S, E])) {
	b := &Block[S, S, E]{
		spec:  s,
		pred:  pred,
		label: "condition",
	}
	declare(b)
}

// OnEnter runs handler once every time the block's predicate starts to hold,
// with a snapshot of the entered state.
func (b *Block[T, S, E]) OnEnter(handler func(ctx context.Context, state T) ChangedState[S]) {
	b.spec.add(&onEnter[T, S, E]{
		label:   b.effectName("on_enter"),
		pred:    b.pred,
		handler: handler,
	})
}

// OnEnterEffect is OnEnter for handlers that never change state.
func (b *Block[T, S, E]) OnEnterEffect(handler func(ctx context.Context, state T)) {
	b.OnEnter(func(ctx context.Context, state T) ChangedState[S] {
		handler(ctx, state)
		return NoChange[S]()
	})
}

// typeLabel returns a short name for T used in logs.
func typeLabel[T any]() string {
	var zero T
	if s := fmt.Sprintf("%T", zero); s != "<nil>" {
		return s
	}
	return fmt.Sprintf("%T", (*T)(nil))[1:]
}
