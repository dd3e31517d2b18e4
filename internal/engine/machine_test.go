package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState interface{ isTestState() }

type idle struct{}
type loading struct{ n int }
type done struct{ value string }

func (idle) isTestState()    {}
func (loading) isTestState() {}
func (done) isTestState()    {}

type testEvent interface{ isTestEvent() }

type start struct{}
type cancelLoad struct{}
type ping struct{}

func (start) isTestEvent()      {}
func (cancelLoad) isTestEvent() {}
func (ping) isTestEvent()       {}

const recvTimeout = 2 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMachine(initial testState, opts ...Option) *Machine[testState, testEvent] {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New[testState, testEvent](initial, opts...)
}

// subscribe starts m and cancels it when the test ends.
func subscribe[S, E any](t *testing.T, m StateMachine[S, E]) <-chan S {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	states := m.States(ctx)
	t.Cleanup(func() {
		cancel()
		for range states {
		}
	})
	return states
}

func recv[S any](t *testing.T, states <-chan S) S {
	t.Helper()
	select {
	case s, ok := <-states:
		require.True(t, ok, "states channel closed")
		return s
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for state")
	}
	var zero S
	return zero
}

func assertNoState[S any](t *testing.T, states <-chan S, wait time.Duration) {
	t.Helper()
	select {
	case s := <-states:
		t.Fatalf("unexpected state %#v", s)
	case <-time.After(wait):
	}
}

func requireContractPanic(t *testing.T, code ContractErrorCode, fn func()) {
	t.Helper()
	defer func() {
		ce := RecoverContractError(recover())
		require.NotNil(t, ce, "expected a contract panic")
		assert.Equal(t, code, ce.Code)
	}()
	fn()
}

// startLoads moves idle to loading on start and loading back to idle on
// cancelLoad.
func startLoads(s *Spec[testState, testEvent]) {
	InState(s, func(b *Block[idle, testState, testEvent]) {
		On(b, CancelPrevious, func(ctx context.Context, _ start, _ idle) ChangedState[testState] {
			return Override[testState](loading{})
		})
	})
	InState(s, func(b *Block[loading, testState, testEvent]) {
		On(b, CancelPrevious, func(ctx context.Context, _ cancelLoad, _ loading) ChangedState[testState] {
			return Override[testState](idle{})
		})
	})
}

func TestMachine_EmitsInitialState(t *testing.T) {
	m := newTestMachine(idle{})
	m.Spec(func(s *Spec[testState, testEvent]) {})

	states := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(idle{}), recv(t, states))
	assert.True(t, m.Active())
}

func TestMachine_SpecTwicePanics(t *testing.T) {
	m := newTestMachine(idle{}, WithIDGenerator(NewFixedGenerator("m-1")))
	m.Spec(func(s *Spec[testState, testEvent]) {})

	requireContractPanic(t, ErrCodeSpecAlreadySet, func() {
		m.Spec(func(s *Spec[testState, testEvent]) {})
	})
}

func TestMachine_UseBeforeSpecPanics(t *testing.T) {
	m := newTestMachine(idle{})

	requireContractPanic(t, ErrCodeSpecNotSet, func() { m.Dispatch(start{}) })
	requireContractPanic(t, ErrCodeSpecNotSet, func() { m.States(context.Background()) })
}

func TestMachine_DispatchWithoutSubscriberPanics(t *testing.T) {
	m := newTestMachine(idle{})
	m.Spec(startLoads)

	requireContractPanic(t, ErrCodeNoSubscriber, func() { m.Dispatch(start{}) })
}

func TestMachine_SecondSubscriberPanics(t *testing.T) {
	m := newTestMachine(idle{})
	m.Spec(startLoads)

	states := subscribe[testState, testEvent](t, m)
	recv(t, states)

	requireContractPanic(t, ErrCodeConcurrentSubscriber, func() { m.States(context.Background()) })

	// The first subscription keeps working.
	m.Dispatch(start{})
	assert.Equal(t, testState(loading{}), recv(t, states))
}

func TestMachine_ResubscribeStartsOver(t *testing.T) {
	m := newTestMachine(idle{})
	m.Spec(startLoads)

	ctx, cancel := context.WithCancel(context.Background())
	states := m.States(ctx)
	assert.Equal(t, testState(idle{}), recv(t, states))

	m.Dispatch(start{})
	assert.Equal(t, testState(loading{}), recv(t, states))

	cancel()
	for range states {
	}
	assert.False(t, m.Active())

	requireContractPanic(t, ErrCodeNoSubscriber, func() { m.Dispatch(start{}) })

	again := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(idle{}), recv(t, again))
}

func TestMachine_EventDrivesTransitions(t *testing.T) {
	m := newTestMachine(idle{})
	m.Spec(startLoads)

	states := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(idle{}), recv(t, states))

	m.Dispatch(start{})
	assert.Equal(t, testState(loading{}), recv(t, states))

	// start is only handled in idle.
	m.Dispatch(start{})
	assertNoState(t, states, 50*time.Millisecond)

	m.Dispatch(cancelLoad{})
	assert.Equal(t, testState(idle{}), recv(t, states))
}

func TestMachine_SuppressesDuplicateStates(t *testing.T) {
	m := newTestMachine(idle{})
	m.Spec(func(s *Spec[testState, testEvent]) {
		startLoads(s)
		InState(s, func(b *Block[idle, testState, testEvent]) {
			On(b, Ordered, func(ctx context.Context, _ ping, _ idle) ChangedState[testState] {
				return Override[testState](idle{})
			})
		})
	})

	states := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(idle{}), recv(t, states))

	m.Dispatch(ping{})
	m.Dispatch(ping{})
	m.Dispatch(start{})

	assert.Equal(t, testState(loading{}), recv(t, states))
}

func TestMachine_WithStateEqual(t *testing.T) {
	// Treat every loading as the same state.
	equal := func(a, b testState) bool {
		_, al := a.(loading)
		_, bl := b.(loading)
		return (al && bl) || a == b
	}

	m := newTestMachine(loading{}, WithStateEqual(equal))
	m.Spec(func(s *Spec[testState, testEvent]) {
		InState(s, func(b *Block[loading, testState, testEvent]) {
			On(b, Ordered, func(ctx context.Context, _ ping, l loading) ChangedState[testState] {
				return Override[testState](loading{n: l.n + 1})
			})
			On(b, Ordered, func(ctx context.Context, _ cancelLoad, _ loading) ChangedState[testState] {
				return Override[testState](done{value: "stopped"})
			})
		})
	})

	states := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(loading{}), recv(t, states))

	m.Dispatch(ping{})
	m.Dispatch(cancelLoad{})
	assert.Equal(t, testState(done{value: "stopped"}), recv(t, states))
}

func TestMachine_MutateAppliesToCurrentState(t *testing.T) {
	m := New[int, ping](0, WithLogger(quietLogger()))
	m.Spec(func(s *Spec[int, ping]) {
		s.InStateWithCondition(func(int) bool { return true }, func(b *Block[int, int, ping]) {
			On(b, Unordered, func(ctx context.Context, _ ping, _ int) ChangedState[int] {
				return Mutate(func(n int) int { return n + 1 })
			})
		})
	})

	states := subscribe[int, ping](t, m)
	assert.Equal(t, 0, recv(t, states))

	for i := 0; i < 5; i++ {
		m.Dispatch(ping{})
	}

	var last int
	for last < 5 {
		last = recv(t, states)
	}
	assert.Equal(t, 5, last)
}

func TestMachine_OnEnterRunsOncePerScope(t *testing.T) {
	var mu sync.Mutex
	entered := 0

	m := newTestMachine(idle{})
	m.Spec(func(s *Spec[testState, testEvent]) {
		startLoads(s)
		InState(s, func(b *Block[loading, testState, testEvent]) {
			b.OnEnterEffect(func(ctx context.Context, _ loading) {
				mu.Lock()
				entered++
				mu.Unlock()
			})
		})
	})

	states := subscribe[testState, testEvent](t, m)
	recv(t, states)

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return entered
	}

	for i := 1; i <= 2; i++ {
		m.Dispatch(start{})
		assert.Equal(t, testState(loading{}), recv(t, states))
		require.Eventually(t, func() bool { return count() == i }, recvTimeout, 5*time.Millisecond)

		m.Dispatch(cancelLoad{})
		assert.Equal(t, testState(idle{}), recv(t, states))
	}

	assertNoState(t, states, 50*time.Millisecond)
	assert.Equal(t, 2, count())
}

func TestMachine_StaleResultDiscardedAfterLeavingState(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	m := newTestMachine(idle{})
	m.Spec(func(s *Spec[testState, testEvent]) {
		startLoads(s)
		InState(s, func(b *Block[loading, testState, testEvent]) {
			// Ignores cancellation, so only the guard can stop its result.
			b.OnEnter(func(ctx context.Context, _ loading) ChangedState[testState] {
				close(entered)
				<-release
				return Override[testState](done{value: "late"})
			})
		})
	})

	states := subscribe[testState, testEvent](t, m)
	recv(t, states)

	m.Dispatch(start{})
	assert.Equal(t, testState(loading{}), recv(t, states))
	select {
	case <-entered:
	case <-time.After(recvTimeout):
		t.Fatal("on-enter handler did not run")
	}

	m.Dispatch(cancelLoad{})
	assert.Equal(t, testState(idle{}), recv(t, states))

	close(release)
	assertNoState(t, states, 100*time.Millisecond)
}

func TestMachine_CancelPreviousKeepsOnlyLatestResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	var mu sync.Mutex
	calls := 0

	m := newTestMachine(loading{})
	m.Spec(func(s *Spec[testState, testEvent]) {
		InState(s, func(b *Block[loading, testState, testEvent]) {
			On(b, CancelPrevious, func(ctx context.Context, _ ping, _ loading) ChangedState[testState] {
				mu.Lock()
				calls++
				n := calls
				mu.Unlock()

				if n == 1 {
					// Ignores cancellation; its result must still be dropped.
					close(entered)
					<-release
				}
				return Override[testState](loading{n: n})
			})
		})
	})

	states := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(loading{}), recv(t, states))

	m.Dispatch(ping{})
	select {
	case <-entered:
	case <-time.After(recvTimeout):
		t.Fatal("first handler did not run")
	}

	m.Dispatch(ping{})
	assert.Equal(t, testState(loading{n: 2}), recv(t, states))

	close(release)
	assertNoState(t, states, 100*time.Millisecond)
}

func TestMachine_OrderedAppliesResultsInTriggerOrder(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	m := newTestMachine(loading{})
	m.Spec(func(s *Spec[testState, testEvent]) {
		InState(s, func(b *Block[loading, testState, testEvent]) {
			On(b, Ordered, func(ctx context.Context, _ ping, _ loading) ChangedState[testState] {
				mu.Lock()
				calls++
				n := calls
				mu.Unlock()

				if n == 1 {
					time.Sleep(30 * time.Millisecond)
					return Override[testState](loading{n: 1})
				}
				// Only yields 12 if the first result was applied before.
				return MutateAs[loading, testState](func(l loading) testState {
					return loading{n: l.n*10 + 2}
				})
			})
		})
	})

	states := subscribe[testState, testEvent](t, m)
	assert.Equal(t, testState(loading{}), recv(t, states))

	m.Dispatch(ping{})
	m.Dispatch(ping{})

	assert.Equal(t, testState(loading{n: 1}), recv(t, states))
	assert.Equal(t, testState(loading{n: 12}), recv(t, states))
}

func TestMachine_JournalRecordsReductions(t *testing.T) {
	j := &memJournal{}
	m := newTestMachine(idle{}, WithJournal(j), WithIDGenerator(NewFixedGenerator("journaled")))
	m.Spec(startLoads)

	states := subscribe[testState, testEvent](t, m)
	recv(t, states)
	m.Dispatch(start{})
	recv(t, states)

	require.Eventually(t, func() bool { return len(j.all()) >= 3 }, recvTimeout, 5*time.Millisecond)

	got := j.all()
	assert.Equal(t, "initial", got[0].Kind)
	assert.True(t, got[0].Emitted)
	assert.Equal(t, "event", got[1].Kind)
	assert.Equal(t, "engine.start", got[1].EventType)
	assert.Equal(t, "change", got[2].Kind)
	assert.True(t, got[2].Applied)
	assert.True(t, got[2].Emitted)
	assert.Equal(t, testState(loading{}), got[2].State)

	for i, tr := range got {
		assert.Equal(t, "journaled", tr.MachineID)
		assert.Equal(t, int64(i+1), tr.Seq)
	}
}

type memJournal struct {
	mu sync.Mutex
	ts []Transition
}

func (j *memJournal) Record(_ context.Context, t Transition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ts = append(j.ts, t)
	return nil
}

func (j *memJournal) all() []Transition {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Transition(nil), j.ts...)
}
