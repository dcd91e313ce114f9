package search_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/opac-search-client/internal/testutil"
	"github.com/Sternrassler/opac-search-client/pkg/catalog"
	"github.com/Sternrassler/opac-search-client/pkg/search"
	"github.com/Sternrassler/opac-search-client/pkg/transport"
)

// pagePresenter keeps the loaded pages and connectivity messages.
type pagePresenter struct {
	loading chan struct{}
	loaded  chan *catalog.ResultPage
	errors  chan string
}

func newPagePresenter() *pagePresenter {
	return &pagePresenter{
		loading: make(chan struct{}, 16),
		loaded:  make(chan *catalog.ResultPage, 16),
		errors:  make(chan string, 16),
	}
}

func (p *pagePresenter) LoadingStarted()                       { p.loading <- struct{}{} }
func (p *pagePresenter) Loaded(page *catalog.ResultPage)       { p.loaded <- page }
func (p *pagePresenter) ConnectivityError(message string)      { p.errors <- message }
func (p *pagePresenter) Redirect(itemID string)                {}
func (p *pagePresenter) ItemSelected(index int, itemID string) {}

func (p *pagePresenter) waitLoaded(t *testing.T) *catalog.ResultPage {
	t.Helper()
	select {
	case page := <-p.loaded:
		return page
	case msg := <-p.errors:
		t.Fatalf("unexpected connectivity error %q", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a page")
	}
	return nil
}

func TestController_NewSearchNeverPagesPreviousSession(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResults(testutil.Items(25, "one-"), 10)

	cfg := transport.DefaultConfig(mock.URL(), "opac-search-client-test/1.0 (test@example.com)")
	client, err := transport.New(cfg)
	require.NoError(t, err)
	defer client.Close()

	presenter := newPagePresenter()
	ctrl, err := search.New(client, presenter, search.DefaultConfig())
	require.NoError(t, err)
	defer ctrl.Close()

	ctx := context.Background()
	require.NoError(t, ctrl.Start(ctx, catalog.NewQuery(map[string]string{"title": "one"})))
	<-presenter.loading
	first := presenter.waitLoaded(t)
	require.Equal(t, "one-1", first.Items[0].ID)
	require.Equal(t, "s-1", client.SearchID())

	entered := make(chan struct{})
	release := make(chan struct{})
	mock.SetHandler("/search", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"search_id":"two","page":1,"total_pages":2,"results":[{"id":"two-1","title":"Two"}]}`))
	})

	require.NoError(t, ctrl.Start(ctx, catalog.NewQuery(map[string]string{"title": "two"})))
	<-presenter.loading
	<-entered

	assert.ErrorIs(t, ctrl.GoToPage(ctx, +1), search.ErrSearchNotReady)
	assert.Empty(t, client.SearchID(), "the previous session must be gone while the new search runs")

	close(release)
	loaded := presenter.waitLoaded(t)
	assert.Equal(t, "two-1", loaded.Items[0].ID)

	state, err := ctrl.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Page)
	assert.Equal(t, 1, state.CachedPages)
	assert.Equal(t, "two", client.SearchID())
	assert.Empty(t, mock.GetPageRequests(), "no page of the previous search may be requested")
}
