package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/opac-search-client/pkg/catalog"
)

const signalTimeout = 2 * time.Second

type signalKind string

const (
	sigLoading      signalKind = "loading"
	sigLoaded       signalKind = "loaded"
	sigConnectivity signalKind = "connectivity"
	sigRedirect     signalKind = "redirect"
	sigSelected     signalKind = "selected"
)

type signal struct {
	kind    signalKind
	page    *catalog.ResultPage
	message string
	itemID  string
	index   int
}

// recordingPresenter pushes every signal onto a channel.
type recordingPresenter struct {
	signals chan signal
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{signals: make(chan signal, 128)}
}

func (p *recordingPresenter) LoadingStarted() { p.signals <- signal{kind: sigLoading} }

func (p *recordingPresenter) Loaded(page *catalog.ResultPage) {
	p.signals <- signal{kind: sigLoaded, page: page}
}

func (p *recordingPresenter) ConnectivityError(message string) {
	p.signals <- signal{kind: sigConnectivity, message: message}
}

func (p *recordingPresenter) Redirect(itemID string) {
	p.signals <- signal{kind: sigRedirect, itemID: itemID}
}

func (p *recordingPresenter) ItemSelected(index int, itemID string) {
	p.signals <- signal{kind: sigSelected, index: index, itemID: itemID}
}

// next waits for the next signal.
func (p *recordingPresenter) next(t *testing.T) signal {
	t.Helper()
	select {
	case s := <-p.signals:
		return s
	case <-time.After(signalTimeout):
		t.Fatal("timed out waiting for a presenter signal")
		return signal{}
	}
}

// immediate returns a signal that must already have been emitted.
func (p *recordingPresenter) immediate(t *testing.T) signal {
	t.Helper()
	select {
	case s := <-p.signals:
		return s
	default:
		t.Fatal("expected a signal to have been emitted synchronously")
		return signal{}
	}
}

// expectNone fails if any signal is pending.
func (p *recordingPresenter) expectNone(t *testing.T) {
	t.Helper()
	select {
	case s := <-p.signals:
		t.Fatalf("unexpected signal %+v", s)
	default:
	}
}

type searchFunc func(ctx context.Context, query catalog.Query) (*catalog.ResultPage, error)
type pageFunc func(ctx context.Context, page int) (*catalog.ResultPage, error)

// fakeTransport records calls and answers through configurable functions.
type fakeTransport struct {
	mu            sync.Mutex
	searchCalls   []catalog.Query
	pageCalls     []int
	search        searchFunc
	getPage       pageFunc
	lastErrorCode string
}

func (f *fakeTransport) Search(ctx context.Context, query catalog.Query) (*catalog.ResultPage, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, query)
	fn := f.search
	f.mu.Unlock()
	if fn == nil {
		return makePage(1, 10, "A"), nil
	}
	return fn(ctx, query)
}

func (f *fakeTransport) SearchGetPage(ctx context.Context, page int) (*catalog.ResultPage, error) {
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, page)
	fn := f.getPage
	f.mu.Unlock()
	if fn == nil {
		return makePage(page, 10, fmt.Sprintf("P%d-", page)), nil
	}
	return fn(ctx, page)
}

func (f *fakeTransport) LastErrorCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErrorCode
}

func (f *fakeTransport) calls() (searches int, pages []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searchCalls), append([]int(nil), f.pageCalls...)
}

// gatedPages returns a pageFunc that blocks each page until its gate is released.
func gatedPages(gates map[int]chan struct{}) pageFunc {
	return func(ctx context.Context, page int) (*catalog.ResultPage, error) {
		if gate, ok := gates[page]; ok {
			<-gate
		}
		return makePage(page, 10, fmt.Sprintf("P%d-", page)), nil
	}
}

// makePage builds a page of n items whose ids start with prefix.
func makePage(page, n int, prefix string) *catalog.ResultPage {
	items := make([]catalog.Item, n)
	for i := range items {
		items[i] = catalog.Item{
			ID:    fmt.Sprintf("%s%d", prefix, i+1),
			Title: fmt.Sprintf("Title %d.%d", page, i+1),
		}
	}
	return &catalog.ResultPage{Items: items, Page: page, TotalPages: 10}
}

type countingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *countingReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *countingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
