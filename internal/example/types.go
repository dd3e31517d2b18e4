package example

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// FavoriteStatus is the favorite flag of one item, including the transient
// states of a toggle in flight.
type FavoriteStatus int

const (
	NotFavorite FavoriteStatus = iota
	Favorite
	OperationInProgress
	OperationFailed
)

// String returns the status name used in traces and scenario files.
func (s FavoriteStatus) String() string {
	switch s {
	case NotFavorite:
		return "not_favorite"
	case Favorite:
		return "favorite"
	case OperationInProgress:
		return "operation_in_progress"
	case OperationFailed:
		return "operation_failed"
	default:
		return fmt.Sprintf("FavoriteStatus(%d)", int(s))
	}
}

// MarshalText renders the status by name.
func (s FavoriteStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TodoRepository is one listed item.
type TodoRepository struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	StargazersCount int            `json:"stargazers_count"`
	FavoriteStatus  FavoriteStatus `json:"favorite_status"`
}

// NextPageLoadingState is the sub-status of ShowContent for the page after
// the last one shown.
type NextPageLoadingState int

const (
	NextPageIdle NextPageLoadingState = iota
	NextPageLoading
	NextPageError
)

// String returns the sub-status name used in traces and scenario files.
func (s NextPageLoadingState) String() string {
	switch s {
	case NextPageIdle:
		return "idle"
	case NextPageLoading:
		return "loading"
	case NextPageError:
		return "error"
	default:
		return fmt.Sprintf("NextPageLoadingState(%d)", int(s))
	}
}

// MarshalText renders the sub-status by name.
func (s NextPageLoadingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PaginationState is the state of the pagination machine. It is one of
// LoadFirstPage, LoadingFirstPageError or ShowContent.
type PaginationState interface {
	isPaginationState()
}

// LoadFirstPage is the initial state: page 0 is being fetched.
type LoadFirstPage struct{}

// LoadingFirstPageError means fetching page 0 failed.
type LoadingFirstPageError struct {
	Cause error
}

// MarshalJSON renders the cause by its message.
func (e LoadingFirstPageError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	return json.Marshal(struct {
		Cause string `json:"cause"`
	}{cause})
}

// ShowContent lists the items loaded so far.
type ShowContent struct {
	Items                []TodoRepository     `json:"items"`
	NextPageLoadingState NextPageLoadingState `json:"next_page_loading_state"`
	CurrentPage          int                  `json:"current_page"`
	CanLoadNextPage      bool                 `json:"can_load_next_page"`
}

func (LoadFirstPage) isPaginationState()         {}
func (LoadingFirstPageError) isPaginationState() {}
func (ShowContent) isPaginationState()           {}

// withItem returns a copy of s with the item of the same id replaced by repo.
func (s ShowContent) withItem(repo TodoRepository) ShowContent {
	items := make([]TodoRepository, len(s.Items))
	for i, it := range s.Items {
		if it.ID == repo.ID {
			items[i] = repo
		} else {
			items[i] = it
		}
	}
	s.Items = items
	return s
}

// find returns the item with the given id.
func (s ShowContent) find(id string) (TodoRepository, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return TodoRepository{}, false
}

// StatesEqual reports whether two pagination states are the same value.
// ShowContent holds a slice, so it is compared item by item.
func StatesEqual(a, b PaginationState) bool {
	switch av := a.(type) {
	case ShowContent:
		bv, ok := b.(ShowContent)
		return ok &&
			av.NextPageLoadingState == bv.NextPageLoadingState &&
			av.CurrentPage == bv.CurrentPage &&
			av.CanLoadNextPage == bv.CanLoadNextPage &&
			slices.Equal(av.Items, bv.Items)
	case LoadingFirstPageError:
		bv, ok := b.(LoadingFirstPageError)
		return ok && errors.Is(av.Cause, bv.Cause)
	default:
		return a == b
	}
}

// Action is an event of the pagination and mark-as-favorite machines.
type Action interface {
	isAction()
}

// RetryLoadingFirstPage leaves LoadingFirstPageError.
type RetryLoadingFirstPage struct{}

// LoadNextPage requests the page after CurrentPage.
type LoadNextPage struct{}

// ToggleFavorite flips the favorite flag of the item with ID.
type ToggleFavorite struct {
	ID string
}

// RetryToggleFavorite retries a failed toggle of the item with ID.
type RetryToggleFavorite struct {
	ID string
}

func (RetryLoadingFirstPage) isAction() {}
func (LoadNextPage) isAction()          {}
func (ToggleFavorite) isAction()        {}
func (RetryToggleFavorite) isAction()   {}

// ParseAction parses the short action names used by the demo script and
// scenario files: "retry", "next", "toggle:<id>", "retry_toggle:<id>".
func ParseAction(s string) (Action, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(s), ":")
	switch name {
	case "retry":
		return RetryLoadingFirstPage{}, nil
	case "next":
		return LoadNextPage{}, nil
	case "toggle":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("action %q: toggle requires an item id", s)
		}
		return ToggleFavorite{ID: arg}, nil
	case "retry_toggle":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("action %q: retry_toggle requires an item id", s)
		}
		return RetryToggleFavorite{ID: arg}, nil
	default:
		return nil, fmt.Errorf("unknown action %q: must be retry, next, toggle:<id>, or retry_toggle:<id>", s)
	}
}
