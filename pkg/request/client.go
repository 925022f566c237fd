// Package request is the outbound HTTP client shared by every cloud adapter.
// Requests to one provider are serialized through a queue; failures are
// retried with exponential backoff.
package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ocular/pkg/config"
	"ocular/pkg/store"
	"ocular/pkg/tracker"
	"ocular/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("Ocular/%s", version.Version)

// StatusError is returned for non-retryable HTTP error responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error: status %d", e.Code)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      store.CacheStore
	tracker    *tracker.Tracker
	backoff    *cooldown

	retries   int
	timeout   time.Duration
	baseDelay time.Duration

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, e.g. with an OAuth client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

type job struct {
	ctx      context.Context
	method   string
	url      string
	body     []byte
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. cache and t may be nil.
func New(cfg config.RequestConfig, cache store.CacheStore, t *tracker.Tracker, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		cache:      cache,
		tracker:    t,
		backoff:    newCooldown(nil, time.Duration(cfg.Backoff.BaseDelay), time.Duration(cfg.Backoff.MaxDelay)),
		retries:    cfg.Retries,
		timeout:    time.Duration(cfg.Timeout),
		baseDelay:  time.Duration(cfg.Backoff.BaseDelay),
		queues:     make(map[string]chan job),
	}
	if c.retries <= 0 {
		c.retries = 1
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 500 * time.Millisecond
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get performs a GET request, cached when cacheKey is set.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, u, nil, headers, cacheKey)
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, u string, body []byte, contentType string) ([]byte, error) {
	return c.PostWithHeaders(ctx, u, body, map[string]string{"Content-Type": contentType})
}

// PostWithHeaders performs a POST request with custom headers.
func (c *Client) PostWithHeaders(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	return c.send(ctx, http.MethodPost, u, body, headers, "")
}

// PostWithCache performs a POST request whose response is cached under cacheKey.
func (c *Client) PostWithCache(ctx context.Context, u string, body []byte, headers map[string]string, cacheKey string) ([]byte, error) {
	return c.send(ctx, http.MethodPost, u, body, headers, cacheKey)
}

// Do performs an uncached request with any method.
func (c *Client) Do(ctx context.Context, method, u string, body []byte, headers map[string]string) ([]byte, error) {
	return c.send(ctx, method, u, body, headers, "")
}

func (c *Client) send(ctx context.Context, method, u string, body []byte, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{
		ctx:      ctx,
		method:   method,
		url:      u,
		body:     body,
		headers:  headers,
		cacheKey: cacheKey,
		respChan: respChan,
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	switch {
	case strings.HasPrefix(host, "maps.googleapis.com"):
		return "maps"
	case strings.HasPrefix(host, "firestore.googleapis.com"):
		return "firestore"
	case strings.HasPrefix(host, "texttospeech.googleapis.com"):
		return "tts"
	case strings.HasPrefix(host, "speech.googleapis.com"):
		return "stt"
	case strings.HasPrefix(host, "translation.googleapis.com"):
		return "translate"
	case strings.HasSuffix(host, "generativelanguage.googleapis.com"):
		return "gemini"
	case strings.HasSuffix(host, "twilio.com"):
		return "twilio"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller.
	select {
	case q <- j:
	case <-j.ctx.Done():
		j.respChan <- jobResult{err: j.ctx.Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if j.ctx.Err() != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", j.ctx.Err())
			j.respChan <- jobResult{err: j.ctx.Err()}
			continue
		}

		if err := c.backoff.Wait(j.ctx, provider); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}
		body, err := c.executeWithBackoff(provider, j)

		if err == nil {
			c.tracker.TrackSuccess(provider)
			c.backoff.Succeed(provider)
			if j.cacheKey != "" && c.cache != nil {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "provider", provider, "error", err)
				}
			}
		} else if j.ctx.Err() == nil {
			c.tracker.TrackFailure(provider)
			var se *StatusError
			if !errors.As(err, &se) {
				if d := c.backoff.Fail(provider); d > 0 {
					slog.Debug("Provider cooling down", "provider", provider, "pause", d)
				}
			}
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

func (c *Client) newRequest(ctx context.Context, j job) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if j.body != nil {
		body = bytes.NewReader(j.body)
	}
	req, err := http.NewRequestWithContext(ctx, j.method, j.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	uaSet := false
	for k, v := range j.headers {
		req.Header.Set(k, v)
		if http.CanonicalHeaderKey(k) == "User-Agent" {
			uaSet = true
		}
	}
	if !uaSet {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	return req, nil
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(provider string, j job) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.tracker.TrackRetry(provider)
			sleepDur := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseDelay
			select {
			case <-time.After(sleepDur):
			case <-j.ctx.Done():
				return nil, j.ctx.Err()
			}
		}

		body, retry, err := c.attempt(j)
		if err == nil {
			return body, nil
		}
		if j.ctx.Err() != nil {
			return nil, j.ctx.Err()
		}
		lastErr = err
		if !retry {
			return nil, err
		}
		slog.Warn("Request failed, retrying", "provider", provider, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// attempt performs one round trip under the per-request timeout.
func (c *Client) attempt(j job) (body []byte, retry bool, err error) {
	ctx := j.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, j)
	if err != nil {
		return nil, false, err
	}
	slog.Debug("Network Request", "method", req.Method, "host", req.URL.Host, "path", req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, &StatusError{Code: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, false, &StatusError{Code: resp.StatusCode, Body: msg}
	}
	if readErr != nil {
		return nil, true, fmt.Errorf("read error: %w", readErr)
	}
	return data, false, nil
}
