package harness

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/flowstate/internal/example"
)

// scriptedAPI is a latency-free example.TodoAPI whose failures are chosen by
// the scenario, so every run fails at the same points.
type scriptedAPI struct {
	script APIScript

	mu        sync.Mutex
	loads     int
	marks     int
	failedIDs map[string]bool
}

var _ example.TodoAPI = (*scriptedAPI)(nil)

func newScriptedAPI(script APIScript) *scriptedAPI {
	return &scriptedAPI{script: script, failedIDs: map[string]bool{}}
}

func (a *scriptedAPI) LoadPage(ctx context.Context, page int) (example.PageResult, error) {
	if err := ctx.Err(); err != nil {
		return example.PageResult{}, err
	}

	a.mu.Lock()
	a.loads++
	fail := slices.Contains(a.script.FailLoads, a.loads)
	a.mu.Unlock()

	if fail {
		return example.PageResult{}, fmt.Errorf("load page %d: %w", page, example.ErrSimulatedNetwork)
	}

	start := page * a.script.PageSize
	if page < 0 || start >= a.script.TotalItems {
		return example.PageResult{Page: page}, nil
	}
	end := min(start+a.script.PageSize, a.script.TotalItems)

	items := make([]example.TodoRepository, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, example.TodoRepository{
			ID:   strconv.Itoa(i),
			Name: fmt.Sprintf("TODO %d", i),
		})
	}
	return example.PageResult{Page: page, Items: items}, nil
}

func (a *scriptedAPI) MarkAsFavorite(ctx context.Context, id string, favorite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.marks++
	fail := slices.Contains(a.script.FailMarks, id) && !a.failedIDs[id]
	if fail {
		a.failedIDs[id] = true
	}
	a.mu.Unlock()

	if fail {
		return fmt.Errorf("mark %s favorite=%t: %w", id, favorite, example.ErrSimulatedNetwork)
	}
	return nil
}

func (a *scriptedAPI) calls() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]int{
		MethodLoadPage:       a.loads,
		MethodMarkAsFavorite: a.marks,
	}
}
