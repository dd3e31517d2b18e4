package example

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/flowstate/internal/engine"
)

// NewPaginationMachine creates the pagination machine over api.
//
// States:
//
//	LoadFirstPage          → ShowContent | LoadingFirstPageError
//	LoadingFirstPageError  → LoadFirstPage on RetryLoadingFirstPage
//	ShowContent            LoadNextPage sets the sub-status to loading, which
//	                       fetches CurrentPage+1; a failed fetch shows the
//	                       error sub-status for the reset delay.
//	                       ToggleFavorite starts a mark-as-favorite child per
//	                       item id whose states replace that item.
func NewPaginationMachine(api TodoAPI, opts ...Option) *engine.Machine[PaginationState, Action] {
	o := newOptions(opts)

	m := engine.New[PaginationState, Action](
		LoadFirstPage{},
		o.machineOptions(PaginationMachineName, engine.WithStateEqual(StatesEqual))...,
	)
	m.Spec(func(s *engine.Spec[PaginationState, Action]) {
		engine.InState(s, func(b *engine.Block[LoadFirstPage, PaginationState, Action]) {
			b.OnEnter(func(ctx context.Context, _ LoadFirstPage) engine.ChangedState[PaginationState] {
				return loadFirstPage(ctx, api, o)
			})
		})

		engine.InState(s, func(b *engine.Block[LoadingFirstPageError, PaginationState, Action]) {
			engine.On(b, engine.CancelPrevious, func(context.Context, RetryLoadingFirstPage, LoadingFirstPageError) engine.ChangedState[PaginationState] {
				return engine.Override[PaginationState](LoadFirstPage{})
			})
		})

		engine.InState(s, func(b *engine.Block[ShowContent, PaginationState, Action]) {
			engine.On(b, engine.CancelPrevious, func(_ context.Context, _ LoadNextPage, state ShowContent) engine.ChangedState[PaginationState] {
				if !state.CanLoadNextPage {
					return engine.NoChange[PaginationState]()
				}
				return mutateContent(func(c ShowContent) ShowContent {
					c.NextPageLoadingState = NextPageLoading
					return c
				})
			})
		})

		engine.InStateWhere(s, loadingNextPage, func(b *engine.Block[ShowContent, PaginationState, Action]) {
			b.OnEnter(func(ctx context.Context, state ShowContent) engine.ChangedState[PaginationState] {
				return loadNextPage(ctx, api, o, state)
			})
		})

		engine.InStateWhere(s, nextPageFailed, func(b *engine.Block[ShowContent, PaginationState, Action]) {
			b.OnEnter(func(ctx context.Context, _ ShowContent) engine.ChangedState[PaginationState] {
				if sleep(ctx, o.resetDelay) != nil {
					return engine.NoChange[PaginationState]()
				}
				return mutateContent(func(c ShowContent) ShowContent {
					c.NextPageLoadingState = NextPageIdle
					return c
				})
			})
		})

		engine.InState(s, func(b *engine.Block[ShowContent, PaginationState, Action]) {
			engine.OnStartMachine(b,
				func(toggle ToggleFavorite, state ShowContent) engine.StateMachine[TodoRepository, Action] {
					repo, ok := state.find(toggle.ID)
					if !ok {
						o.logger.Warn("toggle favorite for unknown item", "id", toggle.ID)
						return nil
					}
					return NewMarkAsFavorite(api, repo, opts...)
				},
				func(a Action) (Action, bool) { return a, true },
				func(_ ShowContent, repo TodoRepository) engine.ChangedState[PaginationState] {
					return mutateContent(func(c ShowContent) ShowContent {
						return c.withItem(repo)
					})
				},
			)
		})
	})
	return m
}

func loadFirstPage(ctx context.Context, api TodoAPI, o *options) engine.ChangedState[PaginationState] {
	result, err := api.LoadPage(ctx, 0)
	if err != nil {
		if ctx.Err() != nil {
			return engine.NoChange[PaginationState]()
		}
		o.logger.Warn("load first page failed", "error", err)
		return engine.Override[PaginationState](LoadingFirstPageError{Cause: err})
	}

	if result.NoNextPage() {
		return engine.Override[PaginationState](ShowContent{
			Items:                []TodoRepository{},
			NextPageLoadingState: NextPageIdle,
			CurrentPage:          1,
			CanLoadNextPage:      false,
		})
	}
	return engine.Override[PaginationState](ShowContent{
		Items:                result.Items,
		NextPageLoadingState: NextPageIdle,
		CurrentPage:          result.Page,
		CanLoadNextPage:      true,
	})
}

func loadNextPage(ctx context.Context, api TodoAPI, o *options, state ShowContent) engine.ChangedState[PaginationState] {
	page := state.CurrentPage + 1

	result, err := api.LoadPage(ctx, page)
	switch {
	case err != nil && ctx.Err() != nil:
		return engine.NoChange[PaginationState]()
	case err != nil:
		o.logger.Warn("load next page failed", "page", page, "error", err)
		return mutateContent(func(c ShowContent) ShowContent {
			c.NextPageLoadingState = NextPageError
			return c
		})
	case result.NoNextPage():
		return mutateContent(func(c ShowContent) ShowContent {
			c.NextPageLoadingState = NextPageIdle
			c.CanLoadNextPage = false
			return c
		})
	default:
		return mutateContent(func(c ShowContent) ShowContent {
			items := make([]TodoRepository, 0, len(c.Items)+len(result.Items))
			c.Items = append(append(items, c.Items...), result.Items...)
			c.CanLoadNextPage = true
			c.CurrentPage = page
			c.NextPageLoadingState = NextPageIdle
			return c
		})
	}
}

func loadingNextPage(c ShowContent) bool {
	return c.CanLoadNextPage && c.NextPageLoadingState == NextPageLoading
}

func nextPageFailed(c ShowContent) bool {
	return c.NextPageLoadingState == NextPageError
}

func mutateContent(fn func(ShowContent) ShowContent) engine.ChangedState[PaginationState] {
	return engine.MutateAs[ShowContent, PaginationState](func(c ShowContent) PaginationState {
		return fn(c)
	})
}

// ErrNotStarted is returned by Pagination.Dispatch before Start.
var ErrNotStarted = errors.New("pagination not started")

// Pagination wraps the pagination machine for callers that prefer a
// listener callback over a channel.
type Pagination struct {
	machine *engine.Machine[PaginationState, Action]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPagination creates a stopped Pagination over api.
func NewPagination(api TodoAPI, opts ...Option) *Pagination {
	return &Pagination{machine: NewPaginationMachine(api, opts...)}
}

// Machine returns the wrapped machine.
func (p *Pagination) Machine() *engine.Machine[PaginationState, Action] {
	return p.machine
}

// Start subscribes to the machine and calls listener with every state from a
// single goroutine. Starting an already started Pagination is a no-op.
func (p *Pagination) Start(ctx context.Context, listener func(PaginationState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	states := p.machine.States(runCtx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		for st := range states {
			listener(st)
		}
	}()
}

// Dispatch forwards action to the machine.
func (p *Pagination) Dispatch(action Action) (err error) {
	defer func() {
		if v := recover(); v != nil {
			ce := engine.RecoverContractError(v)
			if ce == nil || !engine.IsContractError(ce, engine.ErrCodeNoSubscriber) {
				panic(v)
			}
			err = errors.Join(ErrNotStarted, ce)
		}
	}()
	p.machine.Dispatch(action)
	return nil
}

// Stop cancels the subscription and waits for the listener to return.
func (p *Pagination) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
