package data

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// RetryConfig bounds the download retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultRetryConfig is tuned for a static file host: a few quick retries,
// then give up and let the circuit breaker take over.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     15 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client downloads dataset files with bounded retries behind a circuit
// breaker, so a dead host fails fast instead of stalling a run on every
// ticker.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cfg     RetryConfig
	log     *logrus.Logger
}

// NewClient builds a download client. A nil httpClient uses a default with
// a 30s request timeout.
func NewClient(httpClient *http.Client, log *logrus.Logger, cfg ...RetryConfig) *Client {
	c := DefaultRetryConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	settings := gobreaker.Settings{
		Name:        "DatasetClient",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Warn("dataset circuit breaker state changed")
		},
	}

	return &Client{
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     c,
		log:     log,
	}
}

// Download fetches url, retrying transient failures with exponential
// backoff plus jitter. Permanent API errors (4xx other than 429) return
// immediately.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.cfg.InitialBackoff

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.WithFields(logrus.Fields{"attempt": attempt + 1, "url": url}).
				Debug("retrying dataset download")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(backoff + jitter(backoff)):
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}

		body, err := c.fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsPermanent() {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("dataset host unavailable: %w", err)
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, &APIError{Status: resp.StatusCode, URL: url}
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// jitter returns a random duration in [0, d/2) to spread retries out.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(d)/2+1))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
