// Package search implements the asynchronous search-and-pagination
// controller. It owns the state of one search session, runs catalog fetches
// in the background, discards results that were superseded by newer
// navigation, caches completed pages and reports every outcome to a
// Presenter.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/opac-search-client/pkg/catalog"
	"github.com/Sternrassler/opac-search-client/pkg/diagnostics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed is returned by intents issued after Close.
	ErrClosed = errors.New("search controller closed")

	// ErrNoSession is returned by navigation intents before the first Start.
	ErrNoSession = errors.New("no search session started")

	// ErrInvalidDelta is returned by GoToPage for a delta other than -1 or +1.
	ErrInvalidDelta = errors.New("page delta must be -1 or +1")

	// ErrPageOutOfRange is returned by GoToPage when the target page is below 1.
	ErrPageOutOfRange = errors.New("page out of range")

	// ErrSearchNotReady is returned by GoToPage for an uncached page while
	// the session's search has not loaded. The search keeps running.
	ErrSearchNotReady = errors.New("search has not loaded yet")
)

// DefaultHostUnreachableMessage is shown when the catalog host cannot be resolved.
const DefaultHostUnreachableMessage = "The library catalog could not be reached. Check your connection and try again."

// NoSearchMessage is shown when the catalog no longer holds the session's search.
const NoSearchMessage = "The search is no longer available. Start a new search."

// Transport performs the actual catalog calls. Both methods block until the
// backend answered or ctx is done.
type Transport interface {
	Search(ctx context.Context, query catalog.Query) (*catalog.ResultPage, error)
	SearchGetPage(ctx context.Context, page int) (*catalog.ResultPage, error)
}

// Presenter receives the controller's signals. All methods are called from
// the controller's loop goroutine, one at a time. They must return promptly
// and must not call back into the controller synchronously.
type Presenter interface {
	LoadingStarted()
	Loaded(page *catalog.ResultPage)
	// ConnectivityError is called with an empty message for a generic error.
	ConnectivityError(message string)
	// Redirect is called with an empty itemID when the backend did not name the record.
	Redirect(itemID string)
	ItemSelected(index int, itemID string)
}

// Config holds the controller configuration.
type Config struct {
	// Reporter receives unexpected transport failures (default: diagnostics.Nop).
	Reporter diagnostics.Reporter

	// HostUnreachableMessage is passed to ConnectivityError for DNS/host failures.
	HostUnreachableMessage string

	// MailboxSize is the capacity of the loop's command queue.
	MailboxSize int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Reporter:               diagnostics.Nop,
		HostUnreachableMessage: DefaultHostUnreachableMessage,
		MailboxSize:            16,
	}
}

// State is a snapshot of the session.
type State struct {
	SessionID   string
	Query       catalog.Query
	Page        int
	Loading     bool
	Result      *catalog.ResultPage
	CachedPages int
}

// CanGoBack reports whether GoToPage(-1) would be accepted.
func (s State) CanGoBack() bool {
	return s.SessionID != "" && s.Page > 1
}

// CanGoForward reports whether the current result announces a next page.
func (s State) CanGoForward() bool {
	return !s.Loading && s.Result.HasNext()
}

type fetchHandle struct {
	generation uint64
	request    Request
	cancel     context.CancelFunc
}

// Controller drives a catalog search session.
//
// Every intent is executed on a single loop goroutine that exclusively owns
// the session state; fetches run on worker goroutines and hand their
// outcome back to the loop. Each fetch captures the session generation when
// it starts, and its completion is applied only if the generation is still
// current. Cancellation of superseded fetches is best effort.
type Controller struct {
	transport Transport
	presenter Presenter
	config    Config
	logger    zerolog.Logger

	mailbox   chan func()
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	lifetime  context.Context
	shutdown  context.CancelFunc
	workers   sync.WaitGroup

	// loop-owned
	sessionID  string
	query      catalog.Query
	page       int
	current    *catalog.ResultPage
	cache      *PageCache
	generation uint64
	active     *fetchHandle

	// searchLoaded is set once the latest new-search fetch succeeded; page
	// fetches before that would read another search's backend session.
	searchLoaded bool

	// completed, if set, is called on the loop after each completion with
	// whether it was applied.
	completed func(applied bool)
}

// New creates a controller and starts its loop. Call Close to stop it.
func New(transport Transport, presenter Presenter, cfg Config) (*Controller, error) {
	c, err := newController(transport, presenter, cfg)
	if err != nil {
		return nil, err
	}
	c.startLoop()
	return c, nil
}

func newController(transport Transport, presenter Presenter, cfg Config) (*Controller, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if presenter == nil {
		return nil, fmt.Errorf("presenter is required")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = diagnostics.Nop
	}
	if cfg.HostUnreachableMessage == "" {
		cfg.HostUnreachableMessage = DefaultHostUnreachableMessage
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 16
	}

	lifetime, shutdown := context.WithCancel(context.Background())

	return &Controller{
		transport: transport,
		presenter: presenter,
		config:    cfg,
		logger:    log.With().Str("component", "search-controller").Logger(),
		mailbox:   make(chan func(), cfg.MailboxSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		lifetime:  lifetime,
		shutdown:  shutdown,
		cache:     NewPageCache(),
	}, nil
}

func (c *Controller) startLoop() {
	go c.run()
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.quit:
			return
		case fn := <-c.mailbox:
			fn()
		}
	}
}

// do runs fn on the loop and waits for its result. If ctx ends after fn was
// queued, fn still runs but its result is dropped.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}

	reply := make(chan error, 1)
	select {
	case c.mailbox <- func() { reply <- fn() }:
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins a new search session with query. The previous session, its
// page cache and any in-flight fetch are abandoned.
func (c *Controller) Start(ctx context.Context, query catalog.Query) error {
	return c.do(ctx, func() error {
		c.invalidate()

		c.sessionID = uuid.NewString()
		c.query = query
		c.page = 1
		c.current = nil
		c.cache = NewPageCache()

		c.logger.Info().
			Str("session_id", c.sessionID).
			Strs("query_keys", query.Keys()).
			Msg("Starting search session")

		c.presenter.LoadingStarted()
		c.launch(Request{Kind: RequestNewSearch, Query: query})
		return nil
	})
}

// GoToPage moves delta (-1 or +1) pages from the current page. A cached
// target page is delivered before GoToPage returns; otherwise a fetch is
// started and its outcome is signalled later. An uncached page cannot be
// fetched until the session's search has loaded (ErrSearchNotReady).
func (c *Controller) GoToPage(ctx context.Context, delta int) error {
	if delta != 1 && delta != -1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidDelta, delta)
	}

	return c.do(ctx, func() error {
		if c.sessionID == "" {
			return ErrNoSession
		}
		target := c.page + delta
		if target < 1 {
			return fmt.Errorf("%w: page %d", ErrPageOutOfRange, target)
		}

		cached, ok := c.cache.Get(target)
		if !ok && !c.searchLoaded {
			return fmt.Errorf("%w: page %d", ErrSearchNotReady, target)
		}

		c.invalidate()
		c.presenter.LoadingStarted()
		c.page = target

		if ok {
			pageCacheTotal.WithLabelValues("hit").Inc()
			c.logger.Debug().
				Str("session_id", c.sessionID).
				Int("page", target).
				Msg("Page cache hit")
			c.current = cached
			c.presenter.Loaded(cached)
			return nil
		}

		pageCacheTotal.WithLabelValues("miss").Inc()
		c.current = nil
		c.launch(Request{Kind: RequestPage, Page: target})
		return nil
	})
}

// Reload refetches the current page, bypassing the page cache. Page 1 is
// refetched by rerunning the session's query.
func (c *Controller) Reload(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.sessionID == "" {
			return ErrNoSession
		}

		c.invalidate()
		c.presenter.LoadingStarted()
		c.current = nil

		if c.page == 1 {
			c.launch(Request{Kind: RequestNewSearch, Query: c.query})
		} else {
			c.launch(Request{Kind: RequestPage, Page: c.page})
		}
		return nil
	})
}

// SelectItem forwards an item selection to the presenter.
func (c *Controller) SelectItem(ctx context.Context, index int, itemID string) error {
	return c.do(ctx, func() error {
		c.presenter.ItemSelected(index, itemID)
		return nil
	})
}

// State returns a snapshot of the current session.
func (c *Controller) State(ctx context.Context) (State, error) {
	var state State
	err := c.do(ctx, func() error {
		state = State{
			SessionID:   c.sessionID,
			Query:       c.query,
			Page:        c.page,
			Loading:     c.active != nil,
			Result:      c.current,
			CachedPages: c.cache.Len(),
		}
		return nil
	})
	return state, err
}

// Close stops the loop, cancels the in-flight fetch and waits for workers.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.stopped
		c.shutdown()
		c.workers.Wait()
		c.logger.Debug().Msg("Search controller closed")
	})
	return nil
}

// invalidate makes any in-flight fetch stale and asks it to stop.
func (c *Controller) invalidate() {
	c.generation++
	if c.active != nil {
		c.active.cancel()
		c.logger.Debug().
			Str("session_id", c.sessionID).
			Uint64("generation", c.active.generation).
			Str("request_kind", c.active.request.Kind.String()).
			Msg("Cancelled superseded fetch")
		c.active = nil
	}
}

// launch starts a fetch for req under the current generation.
func (c *Controller) launch(req Request) {
	ctx, cancel := context.WithCancel(c.lifetime)
	handle := &fetchHandle{
		generation: c.generation,
		request:    req,
		cancel:     cancel,
	}
	c.active = handle
	if req.Kind == RequestNewSearch {
		c.searchLoaded = false
	}

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		defer cancel()

		outcome := c.fetch(ctx, req)

		select {
		case c.mailbox <- func() { c.handleCompletion(handle, outcome) }:
		case <-c.quit:
		}
	}()
}

// fetch runs on a worker goroutine and must not touch session state.
func (c *Controller) fetch(ctx context.Context, req Request) Outcome {
	start := time.Now()

	var (
		page *catalog.ResultPage
		err  error
	)
	switch req.Kind {
	case RequestNewSearch:
		page, err = c.transport.Search(ctx, req.Query)
	case RequestPage:
		page, err = c.transport.SearchGetPage(ctx, req.Page)
	default:
		err = fmt.Errorf("unknown request kind %d", req.Kind)
	}

	var coder catalog.ErrorCoder
	if page == nil && err == nil {
		coder, _ = c.transport.(catalog.ErrorCoder)
	}
	outcome := Classify(page, err, coder)

	fetchDuration.WithLabelValues(req.Kind.String()).Observe(time.Since(start).Seconds())
	fetchesTotal.WithLabelValues(req.Kind.String(), outcome.Kind.String()).Inc()

	return outcome
}

// handleCompletion applies a fetch outcome if the fetch is still current.
func (c *Controller) handleCompletion(handle *fetchHandle, outcome Outcome) {
	applied := handle.generation == c.generation && c.active == handle
	if c.completed != nil {
		defer c.completed(applied)
	}

	if !applied {
		staleCompletionsTotal.Inc()
		c.logger.Debug().
			Uint64("generation", handle.generation).
			Uint64("current_generation", c.generation).
			Str("request_kind", handle.request.Kind.String()).
			Str("outcome", outcome.Kind.String()).
			Msg("Discarding stale fetch completion")
		return
	}
	c.active = nil

	event := c.logger.Info()
	if outcome.Kind != OutcomeSuccess {
		event = c.logger.Warn()
	}
	event.
		Str("session_id", c.sessionID).
		Uint64("generation", handle.generation).
		Int("page", c.page).
		Str("request_kind", handle.request.Kind.String()).
		Str("outcome", outcome.Kind.String()).
		Msg("Fetch completed")

	switch outcome.Kind {
	case OutcomeSuccess:
		if handle.request.Kind == RequestNewSearch {
			c.searchLoaded = true
		}
		c.current = outcome.Page
		if c.cache.Put(c.page, outcome.Page) {
			pageCacheTotal.WithLabelValues("store").Inc()
		} else {
			pageCacheTotal.WithLabelValues("skip").Inc()
		}
		c.presenter.Loaded(outcome.Page)

	case OutcomeRedirect:
		c.current = nil
		c.presenter.Redirect(outcome.ItemID)

	case OutcomeConnectivityFailure:
		c.presenter.ConnectivityError(c.connectivityMessage(outcome))

	case OutcomeOtherFailure:
		c.logger.Error().
			Err(outcome.Err).
			Str("session_id", c.sessionID).
			Int("page", c.page).
			Msg("Unclassified catalog failure")
		c.config.Reporter.Report(outcome.Err)
		c.presenter.ConnectivityError("")
	}
}

func (c *Controller) connectivityMessage(outcome Outcome) string {
	switch outcome.Reason {
	case ReasonHostUnreachable:
		return c.config.HostUnreachableMessage
	case ReasonBackend:
		return outcome.Message
	case ReasonNoSearch:
		return NoSearchMessage
	default:
		return ""
	}
}
