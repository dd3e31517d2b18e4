package example

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errBoom = errors.New("boom")

func startPagination(t *testing.T, api TodoAPI) (<-chan PaginationState, func(Action)) {
	t.Helper()
	m := NewPaginationMachine(api, testOptions()...)
	states := subscribe[PaginationState](t, m)
	return states, func(a Action) { m.Dispatch(a) }
}

func TestPagination_FirstPageLoads(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 30)}, nil)

	states, _ := startPagination(t, api)

	assert.Equal(t, PaginationState(LoadFirstPage{}), recv(t, states))

	content := recvContent(t, states)
	assert.Len(t, content.Items, 30)
	assert.True(t, content.CanLoadNextPage)
	assert.Equal(t, 0, content.CurrentPage)
	assert.Equal(t, NextPageIdle, content.NextPageLoadingState)
}

func TestPagination_EmptyFirstPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0}, nil)

	states, _ := startPagination(t, api)
	recv(t, states)

	content := recvContent(t, states)
	assert.Empty(t, content.Items)
	assert.False(t, content.CanLoadNextPage)
	assert.Equal(t, 1, content.CurrentPage)
}

func TestPagination_FirstPageErrorAndRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{}, errBoom),
		api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 30)}, nil),
	)

	states, dispatch := startPagination(t, api)
	recv(t, states)

	failed, ok := recv(t, states).(LoadingFirstPageError)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Cause, errBoom)

	// Next page requests mean nothing while the first page failed.
	dispatch(LoadNextPage{})
	dispatch(RetryLoadingFirstPage{})

	assert.Equal(t, PaginationState(LoadFirstPage{}), recv(t, states))
	assert.Len(t, recvContent(t, states).Items, 30)
}

func TestPagination_NextPageExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 30)}, nil),
		api.EXPECT().LoadPage(gomock.Any(), 1).Return(PageResult{Page: 1}, nil),
	)

	states, dispatch := startPagination(t, api)
	recv(t, states)
	recvContent(t, states)

	dispatch(LoadNextPage{})
	loading := recvContent(t, states)
	assert.Equal(t, NextPageLoading, loading.NextPageLoadingState)

	final := recvContent(t, states)
	assert.False(t, final.CanLoadNextPage)
	assert.Equal(t, NextPageIdle, final.NextPageLoadingState)
	assert.Len(t, final.Items, 30)

	// No further page is requested once exhausted.
	dispatch(LoadNextPage{})
	select {
	case s := <-states:
		t.Fatalf("unexpected state %#v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPagination_NextPageAppends(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 30)}, nil),
		api.EXPECT().LoadPage(gomock.Any(), 1).Return(PageResult{Page: 1, Items: repos(30, 60)}, nil),
	)

	states, dispatch := startPagination(t, api)
	recv(t, states)
	recvContent(t, states)

	dispatch(LoadNextPage{})
	recvContent(t, states)

	content := recvContent(t, states)
	assert.Len(t, content.Items, 60)
	assert.Equal(t, "59", content.Items[59].ID)
	assert.Equal(t, 1, content.CurrentPage)
	assert.True(t, content.CanLoadNextPage)
}

func TestPagination_NextPageErrorResets(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 30)}, nil),
		api.EXPECT().LoadPage(gomock.Any(), 1).Return(PageResult{}, errBoom),
	)

	states, dispatch := startPagination(t, api)
	recv(t, states)
	recvContent(t, states)

	dispatch(LoadNextPage{})
	assert.Equal(t, NextPageLoading, recvContent(t, states).NextPageLoadingState)
	assert.Equal(t, NextPageError, recvContent(t, states).NextPageLoadingState)

	reset := recvContent(t, states)
	assert.Equal(t, NextPageIdle, reset.NextPageLoadingState)
	assert.True(t, reset.CanLoadNextPage)
	assert.Equal(t, 0, reset.CurrentPage)
}

func TestPagination_ToggleFavoriteChildren(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 30)}, nil)

	firstStarted := make(chan struct{})
	firstCancelled := make(chan struct{})
	release7 := make(chan struct{})
	var calls7 atomic.Int32

	api.EXPECT().MarkAsFavorite(gomock.Any(), "7", true).Times(2).DoAndReturn(
		func(ctx context.Context, _ string, _ bool) error {
			if calls7.Add(1) == 1 {
				close(firstStarted)
				<-ctx.Done()
				close(firstCancelled)
				return ctx.Err()
			}
			select {
			case <-release7:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	api.EXPECT().MarkAsFavorite(gomock.Any(), "9", true).Return(nil)

	states, dispatch := startPagination(t, api)
	recv(t, states)
	recvContent(t, states)

	dispatch(ToggleFavorite{ID: "7"})
	content := recvContent(t, states)
	assert.Equal(t, OperationInProgress, itemByID(t, content, "7").FavoriteStatus)

	waitClosed(t, firstStarted, "first toggle of 7 never called the API")

	// A second toggle of the same item replaces the running child.
	dispatch(ToggleFavorite{ID: "7"})
	waitClosed(t, firstCancelled, "first toggle of 7 was not cancelled")

	// A different item runs alongside.
	dispatch(ToggleFavorite{ID: "9"})
	content = recvContent(t, states)
	assert.Equal(t, OperationInProgress, itemByID(t, content, "9").FavoriteStatus)

	content = recvContent(t, states)
	nine := itemByID(t, content, "9")
	assert.Equal(t, Favorite, nine.FavoriteStatus)
	assert.Equal(t, 1, nine.StargazersCount)
	assert.Equal(t, OperationInProgress, itemByID(t, content, "7").FavoriteStatus)

	close(release7)
	content = recvContent(t, states)
	seven := itemByID(t, content, "7")
	assert.Equal(t, Favorite, seven.FavoriteStatus)
	assert.Equal(t, 1, seven.StargazersCount)
	assert.Equal(t, Favorite, itemByID(t, content, "9").FavoriteStatus)
}

func TestPagination_ToggleUnknownItemIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockTodoAPI(ctrl)
	api.EXPECT().LoadPage(gomock.Any(), 0).Return(PageResult{Page: 0, Items: repos(0, 3)}, nil)

	states, dispatch := startPagination(t, api)
	recv(t, states)
	recvContent(t, states)

	dispatch(ToggleFavorite{ID: "404"})
	select {
	case s := <-states:
		t.Fatalf("unexpected state %#v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(recvTimeout):
		t.Fatal(msg)
	}
}
