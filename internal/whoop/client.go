// Package whoop is the rate-limited, self-refreshing client for the WHOOP
// developer API.
//
// Every request goes through the same loop:
//
//	acquire rate limit token → get valid access token → GET
//	  429 → sleep Retry-After, try again
//	  401 → refresh once, try again (a second 401 is fatal)
//	  other non-2xx → ErrUpstream
//	  2xx → decode JSON
//
// The loop is capped at MaxAttempts iterations.
package whoop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/metrics"
	"github.com/sakif/healthos/internal/ratelimit"
)

const (
	DefaultBaseURL     = "https://api.prod.whoop.com/developer"
	DefaultMaxAttempts = 100

	// PageSize is the page size requested from collection endpoints.
	PageSize = 25

	defaultRetryAfter = 60 * time.Second
	maxErrorBody      = 4 << 10
)

// Acquirer gates outbound requests. *ratelimit.Limiter satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// TokenSource supplies access tokens. *TokenManager satisfies it.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

type Config struct {
	BaseURL     string
	MaxAttempts int
}

type Client struct {
	baseURL     string
	maxAttempts int
	http        *http.Client
	limiter     Acquirer
	tokens      TokenSource
	breaker     *gobreaker.CircuitBreaker[*response]
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

func New(cfg Config, httpClient *http.Client, limiter Acquirer, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		maxAttempts: cfg.MaxAttempts,
		http:        httpClient,
		limiter:     limiter,
		tokens:      tokens,
		breaker:     newBreaker(logger),
		sleep:       ratelimit.Sleep,
		logger:      logger,
	}
}

type response struct {
	status     int
	body       []byte
	retryAfter time.Duration
}

// Call performs an authenticated GET on path and decodes the JSON body into
// out (which may be nil).
func (c *Client) Call(ctx context.Context, path string, params url.Values, out any) error {
	refreshed := false

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		token, err := c.tokens.ValidToken(ctx)
		if err != nil {
			return err
		}

		resp, err := c.do(ctx, path, params, token)
		if err != nil {
			return err
		}

		switch {
		case resp.status == http.StatusTooManyRequests:
			metrics.UpstreamRetries.WithLabelValues("throttled").Inc()
			c.logger.Warn("upstream throttled, backing off",
				slog.String("path", path),
				slog.Duration("retry_after", resp.retryAfter),
				slog.Int("attempt", attempt))
			if err := c.sleep(ctx, resp.retryAfter); err != nil {
				return err
			}
			continue

		case resp.status == http.StatusUnauthorized:
			if refreshed {
				return apperror.Reauthenticate("Access token rejected after refresh")
			}
			metrics.UpstreamRetries.WithLabelValues("unauthorized").Inc()
			c.logger.Info("access token rejected, refreshing", slog.String("path", path))
			if err := c.tokens.Refresh(ctx); err != nil {
				return err
			}
			refreshed = true
			continue

		case resp.status < 200 || resp.status > 299:
			return apperror.Upstream(resp.status, path, string(resp.body))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("whoop: decoding %s: %w", path, err)
		}
		return nil
	}

	return apperror.Unavailable(fmt.Sprintf("WHOOP API %s: giving up after %d attempts", path, c.maxAttempts))
}

// do sends one GET through the circuit breaker and reads the whole body.
func (c *Client) do(ctx context.Context, path string, params url.Values, token string) (*response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
		if err != nil {
			return nil, err
		}

		r := &response{
			status:     httpResp.StatusCode,
			body:       body,
			retryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now()),
		}
		if r.status >= 500 {
			return r, errServerStatus
		}
		return r, nil
	})
	metrics.UpstreamRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
	case resp != nil:
		// 5xx: the breaker recorded the failure, the caller gets the response.
		err = nil
	case isBreakerRejection(err):
		metrics.UpstreamRequests.WithLabelValues(path, "breaker_open").Inc()
		return nil, apperror.Unavailable(fmt.Sprintf("WHOOP API unavailable (circuit %s)", err))
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.UpstreamRequests.WithLabelValues(path, "error").Inc()
		return nil, apperror.Unavailable(fmt.Sprintf("WHOOP API request to %s failed: %v", path, err))
	}

	metrics.UpstreamRequests.WithLabelValues(path, strconv.Itoa(resp.status)).Inc()
	if len(resp.body) > maxErrorBody && (resp.status < 200 || resp.status > 299) {
		resp.body = resp.body[:maxErrorBody]
	}
	return resp, nil
}

// parseRetryAfter reads delta-seconds or an HTTP date. Missing or
// unparseable values fall back to 60 seconds.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

type page struct {
	Records   []json.RawMessage `json:"records"`
	NextToken string            `json:"next_token"`
}

// FetchPaginated walks a collection endpoint with limit=25 until the
// response carries no next_token, returning all records in order.
func (c *Client) FetchPaginated(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var (
		all  []json.RawMessage
		next string
	)
	for pageNum := 1; ; pageNum++ {
		q := url.Values{}
		for k, v := range params {
			q[k] = append([]string(nil), v...)
		}
		q.Set("limit", strconv.Itoa(PageSize))
		if next != "" {
			q.Set("nextToken", next)
		}

		var p page
		if err := c.Call(ctx, path, q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Records...)
		c.logger.Debug("fetched page",
			slog.String("path", path),
			slog.Int("page", pageNum),
			slog.Int("records", len(p.Records)))

		if p.NextToken == "" {
			return all, nil
		}
		next = p.NextToken
	}
}
