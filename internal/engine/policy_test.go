package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSource adapts a channel to the trigger source shape runPolicy expects.
func chanSource[T any](ch <-chan T) func(context.Context) (T, bool) {
	return func(ctx context.Context) (T, bool) {
		select {
		case v, ok := <-ch:
			return v, ok
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

type emitted struct {
	mu    sync.Mutex
	items []int
}

func (e *emitted) add(v int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, v)
	return true
}

func (e *emitted) snapshot() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.items...)
}

func TestExecutionPolicy_String(t *testing.T) {
	assert.Equal(t, "cancel_previous", CancelPrevious.String())
	assert.Equal(t, "ordered", Ordered.String())
	assert.Equal(t, "unordered", Unordered.String())
	assert.Equal(t, "ExecutionPolicy(9)", ExecutionPolicy(9).String())
}

func TestParseExecutionPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want ExecutionPolicy
	}{
		{"cancel_previous", CancelPrevious},
		{"cancel-previous", CancelPrevious},
		{"ORDERED", Ordered},
		{" unordered ", Unordered},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExecutionPolicy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseExecutionPolicy("latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid execution policy")
}

func TestRunPolicy_Ordered_RunsOneAtATime(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	var out emitted
	var running, maxRunning int
	var mu sync.Mutex

	runPolicy(context.Background(), Ordered, chanSource(ch), func(ctx context.Context, v int, emit func(func() bool) bool) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)
		emit(func() bool { return out.add(v) })

		mu.Lock()
		running--
		mu.Unlock()
	})

	assert.Equal(t, []int{1, 2, 3}, out.snapshot())
	assert.Equal(t, 1, maxRunning)
}

func TestRunPolicy_Unordered_RunsConcurrently(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	// Every handler waits for all three to be running.
	var started sync.WaitGroup
	started.Add(3)

	var out emitted
	runPolicy(context.Background(), Unordered, chanSource(ch), func(ctx context.Context, v int, emit func(func() bool) bool) {
		started.Done()
		started.Wait()
		emit(func() bool { return out.add(v) })
	})

	assert.ElementsMatch(t, []int{1, 2, 3}, out.snapshot())
}

func TestRunPolicy_CancelPrevious_DropsSuperseded(t *testing.T) {
	ch := make(chan int)
	var out emitted
	var dropped emitted

	done := make(chan struct{})
	go func() {
		defer close(done)
		runPolicy(context.Background(), CancelPrevious, chanSource(ch), func(ctx context.Context, v int, emit func(func() bool) bool) {
			if v < 3 {
				<-ctx.Done()
			}
			if !emit(func() bool { return out.add(v) }) {
				dropped.add(v)
			}
		})
	}()

	for i := 1; i <= 3; i++ {
		ch <- i
	}
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runPolicy did not return")
	}

	assert.Equal(t, []int{3}, out.snapshot())
	assert.ElementsMatch(t, []int{1, 2}, dropped.snapshot())
}

func TestRunPolicy_ContextCancelStopsHandlers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan int, 1)
	ch <- 1

	handlerDone := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		runPolicy(ctx, Unordered, chanSource(ch), func(ctx context.Context, v int, emit func(func() bool) bool) {
			<-ctx.Done()
			close(handlerDone)
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		t.Fatal("handler was not cancelled")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runPolicy did not return")
	}
}
