package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/metrics"
)

const breakerName = "places-api"

type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single HTTP attempt, distinct from the pipeline
	// deadline wrapping the whole request.
	Timeout time.Duration
	// MaxRetries caps retries after the initial attempt.
	MaxRetries uint64
	// RequestsPerSecond throttles the shared external resource; the same
	// limiter serves every concurrent pipeline run.
	RequestsPerSecond float64
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
}

// Client queries the lookup service with bounded exponential backoff, a
// shared rate limiter, and a circuit breaker so a dead upstream fails
// fast instead of queueing work.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]Business]
	retries uint64
}

func NewClient(cfg Config) *Client {
	cfg.applyDefaults()

	metrics.BreakerState.WithLabelValues(breakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[[]Business](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("places breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker: cb,
		retries: cfg.MaxRetries,
	}
}

// ReserveLimiter exposes the shared limiter so other clients of the same
// rate budget (the text-generation caller) can wait on it too.
func (c *Client) ReserveLimiter() *rate.Limiter { return c.limiter }

// SearchNearby returns businesses matching keyword around the point.
// Transient failures (429, 5xx, network) are retried with exponential
// backoff up to the configured cap; anything else aborts immediately.
func (c *Client) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]Business, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	results, err := c.breaker.Execute(func() ([]Business, error) {
		return c.searchWithRetry(ctx, lat, lon, radiusMeters, keyword)
	})
	if err != nil {
		metrics.PlacesLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PlacesLookups.WithLabelValues("ok").Inc()
	return results, nil
}

func (c *Client) searchWithRetry(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]Business, error) {
	var results []Business
	op := func() error {
		var err error
		results, err = c.searchOnce(ctx, lat, lon, radiusMeters, keyword)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) searchOnce(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]Business, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(radiusMeters))
	q.Set("keyword", keyword)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/places/search?"+q.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("places search status=%d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("places search status=%d body=%s", resp.StatusCode, truncate(body, 200)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("places search decode: %w", err))
	}
	if parsed.Status != "" && !strings.EqualFold(parsed.Status, "ok") {
		return nil, backoff.Permanent(fmt.Errorf("places search status=%q", parsed.Status))
	}
	return parsed.Results, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
