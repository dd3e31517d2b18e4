package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ExecutionPolicy governs how a stream of triggers turns into concurrent
// handler invocations. No policy reorders the triggers themselves; only
// execution and cancellation differ.
type ExecutionPolicy int

const (
	// CancelPrevious cancels the still-running handler when the next trigger
	// arrives. Results of the cancelled handler are discarded.
	CancelPrevious ExecutionPolicy = iota
	// Ordered runs one handler at a time in trigger order. Triggers queue.
	Ordered
	// Unordered runs every handler concurrently. Completions interleave
	// arbitrarily and nothing is cancelled.
	Unordered
)

// String returns the policy name as used in config files and logs.
func (p ExecutionPolicy) String() string {
	switch p {
	case CancelPrevious:
		return "cancel_previous"
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	default:
		return fmt.Sprintf("ExecutionPolicy(%d)", int(p))
	}
}

// ParseExecutionPolicy parses a policy name. Matching is case-insensitive and
// accepts both "cancel_previous" and "cancel-previous".
func ParseExecutionPolicy(name string) (ExecutionPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_") {
	case "cancel_previous":
		return CancelPrevious, nil
	case "ordered":
		return Ordered, nil
	case "unordered":
		return Unordered, nil
	default:
		return 0, fmt.Errorf("invalid execution policy %q: must be cancel_previous, ordered, or unordered", name)
	}
}

// runPolicy pulls triggers from next until it reports false and dispatches
// them to handle under policy. It returns once every handler it started has
// returned. Cancelling ctx cancels every running handler.
//
// handle receives a per-invocation context and an emit function. emit runs
// send unless the invocation has been cancelled, and returns false when the
// result was dropped. The check and the send happen under the same lock the
// policy cancels with, so a cancelled invocation can never leak a result past
// the trigger that superseded it.
func runPolicy[T any](
	ctx context.Context,
	policy ExecutionPolicy,
	next func(context.Context) (T, bool),
	handle func(ctx context.Context, item T, emit func(func() bool) bool),
) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		cancel context.CancelFunc
	)

	guardedEmit := func(runCtx context.Context) func(func() bool) bool {
		return func(send func() bool) bool {
			mu.Lock()
			defer mu.Unlock()
			if runCtx.Err() != nil {
				return false
			}
			return send()
		}
	}

	// A source that ends does not cancel the handlers it started; ctx does.
	defer wg.Wait()

	for {
		item, ok := next(ctx)
		if !ok {
			return
		}

		switch policy {
		case Ordered:
			runCtx, runCancel := context.WithCancel(ctx)
			handle(runCtx, item, guardedEmit(runCtx))
			runCancel()

		case Unordered:
			runCtx, runCancel := context.WithCancel(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer runCancel()
				handle(runCtx, item, guardedEmit(runCtx))
			}()

		default: // CancelPrevious
			runCtx, runCancel := context.WithCancel(ctx)
			mu.Lock()
			if cancel != nil {
				cancel()
			}
			cancel = runCancel
			mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer runCancel()
				handle(runCtx, item, guardedEmit(runCtx))
			}()
		}
	}
}
