// Package client implements the retrying HTTP fetch client for the remote
// document API.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
	"github.com/JakeFAU/ecfr-snapshot/internal/metrics"
)

// Config controls client behavior.
type Config struct {
	UserAgent string
	// Timeout bounds each individual attempt, not the whole fetch.
	Timeout time.Duration
	// MaxAttempts is the total try budget per URL. Defaults to 5.
	MaxAttempts int
	Backoff     BackoffPolicy
	// OnThrottle is invoked with the planned backoff delay whenever the
	// remote answers 429, so the rate limiter can pause new admissions.
	OnThrottle func(delay time.Duration)
}

// Client fetches URLs with retry and exponential backoff. A 404 is terminal
// immediately; 429, 5xx, and network errors retry until the budget runs out.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client with a pooled transport.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: newHTTPTransport()},
		logger: logger,
	}
}

// Fetch issues GET requests for url until an attempt reaches a terminal
// state. The returned error is ecfr.ErrTitleNotFound for a 404, a
// *ecfr.FetchError otherwise.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		lastStatus int
		lastErr    error
	)
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry()
			if err := c.sleep(ctx, c.cfg.Backoff.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		body, status, err := c.do(ctx, url)
		if ctx.Err() != nil {
			// Run cancellation outranks attempt classification.
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", url, ecfr.ErrTitleNotFound)
		}

		switch classify(status, err) {
		case stateSuccess:
			return body, nil
		case stateTerminal:
			return nil, &ecfr.FetchError{Status: status, URL: url, Attempts: attempt + 1, Err: err}
		case stateTransient:
			lastStatus, lastErr = status, err
			if status == http.StatusTooManyRequests && c.cfg.OnThrottle != nil {
				c.cfg.OnThrottle(c.cfg.Backoff.Delay(attempt))
			}
			c.logger.Debug("transient fetch failure",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
	}
	return nil, &ecfr.FetchError{Status: lastStatus, URL: url, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

func (c *Client) do(ctx context.Context, url string) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/xml, application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFetch(0, time.Since(start))
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveFetch(resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
