package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/opac-search-client/internal/config"
	"github.com/Sternrassler/opac-search-client/pkg/cache"
	"github.com/Sternrassler/opac-search-client/pkg/catalog"
	"github.com/Sternrassler/opac-search-client/pkg/diagnostics"
	"github.com/Sternrassler/opac-search-client/pkg/logging"
	"github.com/Sternrassler/opac-search-client/pkg/metrics"
	"github.com/Sternrassler/opac-search-client/pkg/ratelimit"
	"github.com/Sternrassler/opac-search-client/pkg/search"
	"github.com/Sternrassler/opac-search-client/pkg/transport"
)

type searchOptions struct {
	configPath string
	debug      bool
	query      catalog.Query
}

// session is the part of the controller the interactive loop drives.
type session interface {
	Start(ctx context.Context, query catalog.Query) error
	GoToPage(ctx context.Context, delta int) error
	Reload(ctx context.Context) error
	SelectItem(ctx context.Context, index int, itemID string) error
	State(ctx context.Context) (search.State, error)
}

func runSearch(ctx context.Context, opts searchOptions, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := logging.LogLevel(cfg.Log.Level)
	if opts.debug {
		level = logging.LevelDebug
	}
	logging.Setup(logging.Config{Level: level, Pretty: cfg.Log.Pretty})
	logger := logging.NewLogger("catalog-search")

	client, cleanup, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, logger)
		defer stop()
	}

	controllerCfg := search.DefaultConfig()
	controllerCfg.Reporter = newReporter(logger)
	if cfg.Messages.HostUnreachable != "" {
		controllerCfg.HostUnreachableMessage = cfg.Messages.HostUnreachable
	}

	controller, err := search.New(client, newTextPresenter(out), controllerCfg)
	if err != nil {
		return fmt.Errorf("creating search controller: %w", err)
	}
	defer controller.Close()

	if !opts.query.IsZero() {
		if err := controller.Start(ctx, opts.query); err != nil {
			return err
		}
	}

	return runInteractive(ctx, controller, in, out)
}

// newReporter counts unexpected failures for /metrics and logs them.
func newReporter(logger zerolog.Logger) diagnostics.Reporter {
	return diagnostics.Multi(diagnostics.Counter, diagnostics.NewLogReporter(logger))
}

// buildTransport wires the HTTP transport with the optional Redis response
// cache and quota store. An unreachable Redis disables both.
func buildTransport(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*transport.Client, func(), error) {
	tcfg := transport.DefaultConfig(cfg.Backend.BaseURL, cfg.Backend.UserAgent)
	tcfg.Timeout = cfg.Backend.Timeout.Duration
	tcfg.Retry.MaxAttempts = cfg.Backend.MaxAttempts

	var quotaStore ratelimit.Store
	cleanup := func() {}

	if cfg.Cache.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()

		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("Redis unavailable, response cache disabled")
			redisClient.Close()
		} else {
			logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Connected to Redis")
			tcfg.Cache = cache.NewManager(redisClient)
			if cfg.Cache.ShareQuota {
				host := cfg.Backend.BaseURL
				if u, err := url.Parse(cfg.Backend.BaseURL); err == nil {
					host = u.Host
				}
				quotaStore = ratelimit.NewRedisStore(redisClient, host)
			}
			cleanup = func() { redisClient.Close() }
		}
	}

	tcfg.Quota = ratelimit.NewTracker(quotaStore, logging.NewLogger("quota"))

	client, err := transport.New(tcfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating catalog transport: %w", err)
	}

	return client, func() {
		client.Close()
		cleanup()
	}, nil
}

// serveMetrics exposes /metrics and /health on addr until the returned
// function is called.
func serveMetrics(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

const helpText = `Commands:
  n              next page
  p              previous page
  r              reload the current page
  s <number>     select a result on the current page
  new k=v ...    start a new search
  q              quit
`

// runInteractive reads one command per line from in until q or EOF.
func runInteractive(ctx context.Context, s session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, helpText)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "q", "quit", "exit":
			return nil
		case "n", "next":
			err = nextPage(ctx, s)
		case "p", "prev":
			err = s.GoToPage(ctx, -1)
		case "r", "reload":
			err = s.Reload(ctx)
		case "s", "select":
			err = selectItem(ctx, s, fields[1:])
		case "new":
			var query catalog.Query
			if query, err = parseQuery(fields[1:]); err == nil {
				err = s.Start(ctx, query)
			}
		case "h", "help", "?":
			fmt.Fprint(out, helpText)
		default:
			fmt.Fprintf(out, "Unknown command %q (h for help)\n", fields[0])
		}

		switch {
		case err == nil:
		case errors.Is(err, search.ErrClosed), errors.Is(err, context.Canceled):
			return err
		case errors.Is(err, search.ErrNoSession):
			fmt.Fprintln(out, "No search yet. Use: new key=value")
		case errors.Is(err, search.ErrPageOutOfRange):
			fmt.Fprintln(out, "Already on the first page.")
		case errors.Is(err, errLastPage):
			fmt.Fprintln(out, "Already on the last page.")
		case errors.Is(err, search.ErrSearchNotReady):
			fmt.Fprintln(out, "The search has not loaded yet. Wait for it or retry with r.")
		default:
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

var errLastPage = errors.New("already on the last page")

// nextPage moves forward unless the loaded page is known to be the last.
func nextPage(ctx context.Context, s session) error {
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if state.Result != nil && !state.Loading && !state.CanGoForward() {
		return errLastPage
	}
	return s.GoToPage(ctx, 1)
}

// selectItem resolves a 1-based result number on the current page.
func selectItem(ctx context.Context, s session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: s <number>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("invalid result number %q", args[0])
	}

	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if state.Result == nil || n > state.Result.Len() {
		return fmt.Errorf("no result #%d on this page", n)
	}

	return s.SelectItem(ctx, n-1, state.Result.Items[n-1].ID)
}

// parseQuery turns key=value terms into a query.
func parseQuery(terms []string) (catalog.Query, error) {
	params := make(map[string]string, len(terms))
	for _, term := range terms {
		key, value, ok := strings.Cut(term, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return catalog.Query{}, fmt.Errorf("invalid query term %q (want key=value)", term)
		}
		params[key] = strings.TrimSpace(value)
	}
	return catalog.NewQuery(params), nil
}
