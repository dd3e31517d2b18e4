package example

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSimulatedNetwork is returned by SimulatedAPI for injected failures.
var ErrSimulatedNetwork = errors.New("faked network error")

// PageResult is one fetched page. A result without items means there is no
// further page.
type PageResult struct {
	Page  int
	Items []TodoRepository
}

// NoNextPage reports whether the requested page was past the end.
func (r PageResult) NoNextPage() bool {
	return len(r.Items) == 0
}

//go:generate mockgen -source=api.go -destination=api_mock.go -package=example

// TodoAPI is the remote service the example machines call. Both calls may
// fail; the machines turn failures into error states.
type TodoAPI interface {
	LoadPage(ctx context.Context, page int) (PageResult, error)
	MarkAsFavorite(ctx context.Context, id string, favorite bool) error
}

// SimulatedConfig tunes SimulatedAPI.
type SimulatedConfig struct {
	TotalItems int
	PageSize   int
	// FailEvery makes every n-th call fail, starting with the first.
	// Zero disables failures.
	FailEvery int
	Delay     time.Duration
}

// DefaultSimulatedConfig returns 121 items in pages of 30, a 2s delay, and a
// failure on every 4th call.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		TotalItems: 121,
		PageSize:   30,
		FailEvery:  4,
		Delay:      2 * time.Second,
	}
}

// SimulatedAPI is an in-memory TodoAPI with artificial latency and failure
// injection. Calls to both methods share one failure counter.
//
// Thread-safety: SimulatedAPI is safe for concurrent use.
type SimulatedAPI struct {
	cfg   SimulatedConfig
	items []TodoRepository

	mu      sync.Mutex
	counter int
}

// NewSimulatedAPI creates a SimulatedAPI with items "0".."TotalItems-1".
func NewSimulatedAPI(cfg SimulatedConfig) *SimulatedAPI {
	items := make([]TodoRepository, cfg.TotalItems)
	for i := range items {
		items[i] = TodoRepository{
			ID:             fmt.Sprintf("%d", i),
			Name:           fmt.Sprintf("TODO %d", i),
			FavoriteStatus: NotFavorite,
		}
	}
	return &SimulatedAPI{cfg: cfg, items: items}
}

// LoadPage returns the items of page, or an empty result past the end.
func (a *SimulatedAPI) LoadPage(ctx context.Context, page int) (PageResult, error) {
	if err := sleep(ctx, a.cfg.Delay); err != nil {
		return PageResult{}, err
	}
	if a.shouldFail() {
		return PageResult{}, fmt.Errorf("load page %d: %w", page, ErrSimulatedNetwork)
	}

	start := page * a.cfg.PageSize
	if page < 0 || start >= len(a.items) {
		return PageResult{Page: page}, nil
	}
	end := min(start+a.cfg.PageSize, len(a.items))

	items := make([]TodoRepository, end-start)
	copy(items, a.items[start:end])
	return PageResult{Page: page, Items: items}, nil
}

// MarkAsFavorite pretends to store the flag remotely.
func (a *SimulatedAPI) MarkAsFavorite(ctx context.Context, id string, favorite bool) error {
	if err := sleep(ctx, a.cfg.Delay); err != nil {
		return err
	}
	if a.shouldFail() {
		return fmt.Errorf("mark %s favorite=%t: %w", id, favorite, ErrSimulatedNetwork)
	}
	return nil
}

// Calls returns the number of calls made so far.
func (a *SimulatedAPI) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter
}

func (a *SimulatedAPI) shouldFail() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.counter
	a.counter++
	return a.cfg.FailEvery > 0 && n%a.cfg.FailEvery == 0
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
