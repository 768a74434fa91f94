// Package httpx is the outbound HTTP engine shared by every venue
// adapter: retries with exponential backoff, per-venue circuit breakers,
// proxy rotation and transparent gzip/deflate/brotli decoding.
package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/xZoluGames/skinarb/internal/config"
	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/proxy"
	"github.com/xZoluGames/skinarb/internal/telemetry"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Request is one outbound call on behalf of a venue.
type Request struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	Venue    string
	UseProxy bool
	Timeout  time.Duration // overrides the engine default when > 0
}

// Response is a fully buffered, decoded reply.
type Response struct {
	Status  int
	Body    []byte
	Header  http.Header
	ViaPool string // proxy pool used, empty for direct
}

// Engine issues requests with retry, breaker and proxy policy applied.
type Engine struct {
	cfg     *config.Config
	proxies *proxy.Manager
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	direct *http.Transport

	mu         sync.Mutex
	transports map[proxy.Endpoint]*http.Transport
	breakers   map[string]*gobreaker.CircuitBreaker
}

// NewEngine wires the engine. proxies and metrics may be nil.
func NewEngine(cfg *config.Config, proxies *proxy.Manager, metrics *telemetry.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		proxies:    proxies,
		metrics:    metrics,
		logger:     logger.With().Str("component", "httpx").Logger(),
		direct:     newTransport(cfg, nil),
		transports: make(map[proxy.Endpoint]*http.Transport),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func newTransport(cfg *config.Config, proxyURL *url.URL) *http.Transport {
	t := &http.Transport{
		MaxIdleConns:        cfg.Settings.MaxConnections,
		MaxIdleConnsPerHost: cfg.Settings.MaxConnectionsPerHost,
		MaxConnsPerHost:     cfg.Settings.MaxConnectionsPerHost,
		IdleConnTimeout:     90 * time.Second,
		// Accept-Encoding is set by hand so the engine, not net/http,
		// owns decompression (br is outside net/http's repertoire).
		DisableCompression: true,
	}
	if proxyURL != nil {
		t.Proxy = http.ProxyURL(proxyURL)
	}
	return t
}

func (e *Engine) transportFor(ep proxy.Endpoint) *http.Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.transports[ep]; ok {
		return t
	}
	u, err := url.Parse(string(ep))
	if err != nil {
		return e.direct
	}
	t := newTransport(e.cfg, u)
	e.transports[ep] = t
	return t
}

func (e *Engine) breakerFor(venue string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[venue]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        venue,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures > 5
		},
	})
	e.breakers[venue] = b
	return b
}

// Do executes one request, retrying retryable failures with exponential
// backoff up to the configured attempt budget. Non-2xx statuses below 429
// fail immediately.
func (e *Engine) Do(ctx context.Context, req Request) (*Response, error) {
	attempts := e.cfg.Scraper(req.Venue).MaxRetries + 1
	base := time.Duration(e.cfg.Settings.RetryBackoffMS) * time.Millisecond
	ceil := time.Duration(e.cfg.Settings.RetryBackoffCapMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(
				float64(base)*math.Pow(2, float64(attempt-1)),
				float64(ceil),
			))
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.KindCanceled, req.Venue, ctx.Err())
			case <-time.After(backoff):
			}
		}
		resp, err := e.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errs.IsRetryable(err) {
			return nil, err
		}
		e.logger.Debug().Err(err).Str("venue", req.Venue).Int("attempt", attempt+1).Msg("retrying")
	}
	return nil, lastErr
}

func (e *Engine) attempt(ctx context.Context, req Request) (*Response, error) {
	transport := e.direct
	var pool string
	if req.UseProxy && e.proxies != nil {
		if ep, name, ok := e.proxies.Acquire(); ok {
			transport = e.transportFor(ep)
			pool = name
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.RequestTimeout(req.Venue)
	}
	client := &http.Client{Transport: transport, Timeout: timeout}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, req.Venue, err)
	}
	httpReq.Header.Set("User-Agent", defaultUserAgent)
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	out, err := e.breakerFor(req.Venue).Execute(func() (any, error) {
		resp, err := client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.Wrap(errs.KindCanceled, req.Venue, ctx.Err())
			}
			return nil, errs.Wrap(errs.KindNetwork, req.Venue, err)
		}
		defer resp.Body.Close()

		decoded, err := decodeBody(resp)
		if err != nil {
			return nil, errs.Wrap(errs.KindNetwork, req.Venue, fmt.Errorf("read body: %w", err))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, errs.HTTPStatus(req.Venue, resp.StatusCode, truncate(decoded, 200))
		}
		return &Response{
			Status:  resp.StatusCode,
			Body:    decoded,
			Header:  resp.Header,
			ViaPool: pool,
		}, nil
	})
	elapsed := time.Since(start)

	ok := err == nil
	if e.metrics != nil {
		e.metrics.ObserveRequest(req.Venue, elapsed, ok)
	}
	if pool != "" && e.proxies != nil {
		if ok {
			e.proxies.RecordSuccess(pool, elapsed)
		} else {
			e.proxies.RecordFailure(pool)
		}
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.Wrap(errs.KindNetwork, req.Venue, err)
		}
		return nil, err
	}
	return out.(*Response), nil
}

// decodeBody buffers and decompresses the reply per Content-Encoding.
func decodeBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	default:
		return raw, nil
	}
}

// DecodeJSON unmarshals a response body, reporting an empty body as its
// own parse failure rather than a generic syntax error.
func DecodeJSON(venue string, resp *Response, v any) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return errs.New(errs.KindParse, venue, "empty response body")
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return errs.Wrap(errs.KindParse, venue, err)
	}
	return nil
}

// BatchResult pairs one request slot with its outcome.
type BatchResult struct {
	Resp *Response
	Err  error
}

// Batch runs requests concurrently (at most workers in flight) and returns
// results in input order. Individual failures occupy their slot; the batch
// itself only fails on context cancellation.
func (e *Engine) Batch(ctx context.Context, reqs []Request, workers int) []BatchResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]BatchResult, len(reqs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range reqs {
		select {
		case <-ctx.Done():
			results[i] = BatchResult{Err: errs.Wrap(errs.KindCanceled, reqs[i].Venue, ctx.Err())}
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			resp, err := e.Do(ctx, reqs[i])
			results[i] = BatchResult{Resp: resp, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
