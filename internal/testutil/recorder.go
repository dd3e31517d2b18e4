package testutil

import (
	"sync"
	"time"
)

// StateRecorder drains a state channel in the background and keeps every
// state it saw, so a test can both step through states in order and inspect
// the full history afterwards.
type StateRecorder[S any] struct {
	mu      sync.Mutex
	states  []S
	cursor  int
	closed  bool
	changed chan struct{}
	done    chan struct{}
}

// Record starts recording states until the channel closes.
func Record[S any](states <-chan S) *StateRecorder[S] {
	r := &StateRecorder[S]{
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.drain(states)
	return r
}

func (r *StateRecorder[S]) drain(states <-chan S) {
	defer close(r.done)
	for s := range states {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.notifyLocked()
		r.mu.Unlock()
	}
	r.mu.Lock()
	r.closed = true
	r.notifyLocked()
	r.mu.Unlock()
}

// notifyLocked wakes every waiter. r.mu must be held.
func (r *StateRecorder[S]) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Next returns the first state not yet returned by Next, waiting up to
// timeout for it. ok is false on timeout or when the channel closed.
func (r *StateRecorder[S]) Next(timeout time.Duration) (s S, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if r.cursor < len(r.states) {
			s = r.states[r.cursor]
			r.cursor++
			r.mu.Unlock()
			return s, true
		}
		if r.closed {
			r.mu.Unlock()
			return s, false
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return s, false
		}
	}
}

// Quiet reports whether no state beyond those already returned by Next
// arrives within d.
func (r *StateRecorder[S]) Quiet(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if r.cursor < len(r.states) {
			r.mu.Unlock()
			return false
		}
		if r.closed {
			r.mu.Unlock()
			return true
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return true
		}
	}
}

// States returns a copy of every state recorded so far.
func (r *StateRecorder[S]) States() []S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]S(nil), r.states...)
}

// Wait blocks until the channel closed or timeout elapsed and reports
// whether it closed.
func (r *StateRecorder[S]) Wait(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
