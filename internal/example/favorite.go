package example

import (
	"context"

	"github.com/roach88/flowstate/internal/engine"
)

// NewMarkAsFavorite creates the child machine that toggles the favorite flag
// of repo. It starts with the toggle in progress and flips the status repo had
// when the machine was created.
//
// States:
//
//	OperationInProgress → Favorite / NotFavorite (stargazers ±1)
//	                    → OperationFailed
//	OperationFailed     → starting status after the reset delay
//	                    → OperationInProgress on RetryToggleFavorite{repo.ID}
func NewMarkAsFavorite(api TodoAPI, repo TodoRepository, opts ...Option) *engine.Machine[TodoRepository, Action] {
	o := newOptions(opts)

	// An item whose previous toggle never settled counts as not favorite.
	startStatus := repo.FavoriteStatus
	if startStatus != Favorite {
		startStatus = NotFavorite
	}

	initial := repo
	initial.FavoriteStatus = OperationInProgress

	m := engine.New[TodoRepository, Action](initial, o.machineOptions(FavoriteMachineName)...)
	m.Spec(func(s *engine.Spec[TodoRepository, Action]) {
		engine.InStateWhere(s, hasStatus(OperationInProgress), func(b *engine.Block[TodoRepository, TodoRepository, Action]) {
			b.OnEnter(func(ctx context.Context, state TodoRepository) engine.ChangedState[TodoRepository] {
				return markAsFavorite(ctx, api, o, state, startStatus)
			})
		})

		engine.InStateWhere(s, hasStatus(OperationFailed), func(b *engine.Block[TodoRepository, TodoRepository, Action]) {
			b.OnEnter(func(ctx context.Context, _ TodoRepository) engine.ChangedState[TodoRepository] {
				if sleep(ctx, o.resetDelay) != nil {
					return engine.NoChange[TodoRepository]()
				}
				return withStatus(startStatus)
			})
			engine.On(b, engine.CancelPrevious, func(_ context.Context, retry RetryToggleFavorite, state TodoRepository) engine.ChangedState[TodoRepository] {
				// Every running child sees every retry.
				if retry.ID != state.ID {
					return engine.NoChange[TodoRepository]()
				}
				return withStatus(OperationInProgress)
			})
		})
	})
	return m
}

func markAsFavorite(ctx context.Context, api TodoAPI, o *options, state TodoRepository, startStatus FavoriteStatus) engine.ChangedState[TodoRepository] {
	favorite := startStatus == NotFavorite

	if err := api.MarkAsFavorite(ctx, state.ID, favorite); err != nil {
		if ctx.Err() != nil {
			return engine.NoChange[TodoRepository]()
		}
		o.logger.Warn("mark as favorite failed",
			"id", state.ID,
			"favorite", favorite,
			"error", err,
		)
		return withStatus(OperationFailed)
	}

	return engine.Mutate(func(cur TodoRepository) TodoRepository {
		if favorite {
			cur.FavoriteStatus = Favorite
			cur.StargazersCount++
		} else {
			cur.FavoriteStatus = NotFavorite
			cur.StargazersCount--
		}
		return cur
	})
}

func hasStatus(status FavoriteStatus) func(TodoRepository) bool {
	return func(r TodoRepository) bool {
		return r.FavoriteStatus == status
	}
}

func withStatus(status FavoriteStatus) engine.ChangedState[TodoRepository] {
	return engine.Mutate(func(cur TodoRepository) TodoRepository {
		cur.FavoriteStatus = status
		return cur
	})
}
