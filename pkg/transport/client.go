// Package transport implements search.Transport over a JSON catalog backend
// with response caching, quota tracking and retries.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/opac-search-client/pkg/cache"
	"github.com/Sternrassler/opac-search-client/pkg/catalog"
	"github.com/Sternrassler/opac-search-client/pkg/ratelimit"
)

// HeaderRequestID carries a per-request id for correlating backend logs.
const HeaderRequestID = "X-Request-ID"

// Endpoint labels used in metrics and logs.
const (
	endpointSearch = "search"
	endpointPage   = "page"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the catalog API, e.g. "https://opac.example.org/api".
	BaseURL string

	// UserAgent header sent with every request (required).
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry controls retries of 5xx, 429 and network failures.
	Retry RetryConfig

	// Cache is an optional shared response cache.
	Cache *cache.Manager

	// Quota is an optional request quota tracker.
	Quota *ratelimit.Tracker

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration without cache or quota tracking.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   15 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client talks to one catalog backend. It keeps the backend's search
// session id so SearchGetPage pages through the last successful search.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	quota      *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger

	mu            sync.Mutex
	searchID      string
	searchEpoch   uint64
	lastErrorCode string
}

// New creates a catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cache:      cfg.Cache,
		quota:      cfg.Quota,
		config:     cfg,
		logger:     log.With().Str("component", "catalog-transport").Str("backend", baseURL.Host).Logger(),
	}, nil
}

// Search starts a new search and returns its first page.
//
// A redirect answer yields a *catalog.RedirectError. A backend error code
// yields a nil page and nil error; LastErrorCode then reports the code.
//
// The previous session is dropped when Search starts, so SearchGetPage
// returns ErrNoSearch until this search succeeds.
func (c *Client) Search(ctx context.Context, query catalog.Query) (*catalog.ResultPage, error) {
	c.mu.Lock()
	c.searchID = ""
	c.searchEpoch++
	epoch := c.searchEpoch
	c.mu.Unlock()

	resp, err := c.fetch(ctx, endpointSearch, c.baseURL.JoinPath("search"), query.Values())
	if err != nil {
		return nil, err
	}
	return c.apply(ctx, resp, epoch)
}

// SearchGetPage returns a page of the last successful search.
func (c *Client) SearchGetPage(ctx context.Context, page int) (*catalog.ResultPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}

	searchID := c.SearchID()
	if searchID == "" {
		return nil, ErrNoSearch
	}

	target := c.baseURL.JoinPath("search", url.PathEscape(searchID), "page", strconv.Itoa(page))
	resp, err := c.fetch(ctx, endpointPage, target, nil)
	if err != nil {
		return nil, err
	}
	return c.apply(ctx, resp, 0)
}

// LastErrorCode returns the error code of the last response that carried
// one, or "" if the last response was a page or redirect.
func (c *Client) LastErrorCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErrorCode
}

// SearchID returns the backend session id of the last successful search.
func (c *Client) SearchID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchID
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// apply records session state from a decoded response and converts it.
// epoch is the Search call the response answers, or 0 for a page. A
// response whose request was cancelled leaves the state untouched, and a
// search overtaken by a newer Search does not record its session.
func (c *Client) apply(ctx context.Context, resp *catalog.SearchResponse, epoch uint64) (*catalog.ResultPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		if resp.Error == catalog.ErrorCodeRedirect && resp.RedirectID != "" {
			c.lastErrorCode = ""
			return nil, &catalog.RedirectError{ItemID: resp.RedirectID}
		}
		c.lastErrorCode = resp.Error
		c.logger.Debug().Str("error_code", resp.Error).Msg("Backend returned an error code")
		return nil, nil
	}
	c.lastErrorCode = ""

	if resp.Redirect {
		return nil, &catalog.RedirectError{ItemID: resp.RedirectID}
	}

	if epoch != 0 && epoch == c.searchEpoch {
		c.searchID = resp.SearchID
	}
	return resp.ResultPage(), nil
}

// fetch performs a GET and decodes the catalog body. Client errors that
// carry a JSON error code are returned as a decoded response.
func (c *Client) fetch(ctx context.Context, endpoint string, target *url.URL, params url.Values) (*catalog.SearchResponse, error) {
	if params != nil {
		target.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	var decoded catalog.SearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &Error{StatusCode: resp.StatusCode, ErrorClass: ErrorClassClient, Message: resp.Status}
		}
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &Error{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "invalid response body",
			Err:        err,
		}
	}

	if resp.StatusCode >= 400 && decoded.Error == "" {
		return nil, &Error{StatusCode: resp.StatusCode, ErrorClass: ErrorClassClient, Message: resp.Status}
	}

	return &decoded, nil
}

// do sends req through quota gating, the response cache and the retry loop.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	ctx := req.Context()
	requestID := uuid.NewString()
	logger := c.logger.With().Str("endpoint", endpoint).Str("request_id", requestID).Logger()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.quota != nil {
		allowed, err := c.quota.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("quota check: %w", err)
		}
		if !allowed {
			logger.Warn().Msg("Request blocked by quota tracker")
			requestsTotal.WithLabelValues(endpoint, "quota_blocked").Inc()
			return nil, &Error{
				ErrorClass: ErrorClassRateLimit,
				Message:    "request blocked",
				Err:        ratelimit.ErrQuotaExhausted,
			}
		}
	}

	// Search responses open a backend session and are never shared.
	cacheable := c.cache != nil && endpoint != endpointSearch

	var cacheKey cache.CacheKey
	var stale *cache.CacheEntry
	if cacheable {
		cacheKey = cache.CacheKey{
			Backend:     req.URL.Host,
			Endpoint:    req.URL.Path,
			QueryParams: req.URL.Query(),
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		if err == nil {
			logger.Debug().Msg("Serving catalog response from cache")
			requestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return cache.EntryToResponse(entry, req), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}

		if entry, err := c.cache.GetStale(ctx, cacheKey); err == nil && cache.ShouldMakeConditionalRequest(entry) {
			stale = entry
			cache.AddConditionalHeaders(req, entry)
			logger.Debug().Str("etag", entry.ETag).Msg("Making conditional request")
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)

	logger.Debug().Str("url", req.URL.String()).Msg("Executing catalog request")

	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, logger, classifyError, func() error {
		r, err := c.httpClient.Do(req)
		if err != nil {
			errorsTotal.WithLabelValues(string(classifyError(err))).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			logger.Debug().Err(err).Msg("HTTP request failed")
			return err
		}

		if c.quota != nil {
			if err := c.quota.UpdateFromHeaders(ctx, r.Header); err != nil {
				logger.Warn().Err(err).Msg("Failed to update quota from headers")
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()
		if r.StatusCode < 400 {
			resp = r
			return nil
		}

		errorClass := classifyStatus(r.StatusCode)
		errorsTotal.WithLabelValues(string(errorClass)).Inc()
		logger.Warn().
			Int("status", r.StatusCode).
			Str("error_class", string(errorClass)).
			Msg("Catalog request error")

		if shouldRetry(errorClass) {
			r.Body.Close()
			return &Error{StatusCode: r.StatusCode, ErrorClass: errorClass, Message: r.Status}
		}

		// Client errors are not retried; the caller reads the body.
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		if stale == nil {
			return nil, &Error{StatusCode: resp.StatusCode, ErrorClass: ErrorClassServer, Message: "unexpected 304 without cached entry"}
		}
		cache.NotModifiedResponses.Inc()
		logger.Debug().Msg("304 Not Modified - using cache")

		refreshed, err := c.cache.Refresh(ctx, cacheKey, expiresFrom(resp.Header))
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to refresh cached response")
			refreshed = stale
		}
		return cache.EntryToResponse(refreshed, req), nil
	}

	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", endpoint, err)
		}
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// expiresFrom returns the Expires header time, or now+cache.DefaultTTL.
func expiresFrom(header http.Header) time.Time {
	if expires, err := http.ParseTime(header.Get("Expires")); err == nil {
		return expires
	}
	return time.Now().Add(cache.DefaultTTL)
}

// classifyStatus maps an HTTP error status to its class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// classifyError maps a failed attempt to its class.
func classifyError(err error) ErrorClass {
	var catalogErr *Error
	if errors.As(err, &catalogErr) {
		return catalogErr.ErrorClass
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTemporary {
		return ErrorClassUnreachable
	}
	return ErrorClassNetwork
}
