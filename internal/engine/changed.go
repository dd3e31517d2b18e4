package engine

// ChangedState is the result of a side-effect handler.
//
// It is one of three shapes:
//   - NoChange: the state stays as it is and nothing is emitted
//   - Override: the state is replaced wholesale
//   - Mutate / MutateAs: a pure function applied to whatever state is current
//     when the request is reduced, not the state the handler saw
//
// Handlers never write state themselves. The store loop applies the returned
// ChangedState only if the handler's guard predicate still holds at reduction
// time.
type ChangedState[S any] interface {
	// reduce is unexported to keep the set of shapes closed.
	reduce(current S) (S, bool)
}

type noChange[S any] struct{}

func (noChange[S]) reduce(current S) (S, bool) {
	return current, false
}

type overrideState[S any] struct {
	next S
}

func (o overrideState[S]) reduce(S) (S, bool) {
	return o.next, true
}

type mutateState[S any] struct {
	fn func(S) S
}

func (m mutateState[S]) reduce(current S) (S, bool) {
	return m.fn(current), true
}

// NoChange returns the identity ChangedState.
func NoChange[S any]() ChangedState[S] {
	return noChange[S]{}
}

// Override replaces the state with next.
func Override[S any](next S) ChangedState[S] {
	return overrideState[S]{next: next}
}

// Mutate defers fn until reduction. fn receives the state that is current at
// that moment and must not retain or modify it.
func Mutate[S any](fn func(S) S) ChangedState[S] {
	if fn == nil {
		return noChange[S]{}
	}
	return mutateState[S]{fn: fn}
}

// MutateAs is Mutate for handlers declared on a refined variant T of S.
//
// The guard predicate of the enclosing block guarantees the current state is
// a T when the mutation runs; if it somehow is not, the state is left as is.
func MutateAs[T any, S any](fn func(T) S) ChangedState[S] {
	if fn == nil {
		return noChange[S]{}
	}
	return mutateState[S]{fn: func(current S) S {
		typed, ok := any(current).(T)
		if !ok {
			return current
		}
		return fn(typed)
	}}
}

// Reduce applies cs to current and reports whether the state was changed.
// A nil ChangedState is treated as NoChange.
func Reduce[S any](cs ChangedState[S], current S) (S, bool) {
	if cs == nil {
		return current, false
	}
	return cs.reduce(current)
}

// IsNoChange reports whether cs is the identity ChangedState.
func IsNoChange[S any](cs ChangedState[S]) bool {
	if cs == nil {
		return true
	}
	_, ok := cs.(noChange[S])
	return ok
}
