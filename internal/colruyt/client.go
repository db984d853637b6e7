package colruyt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Merilairon/colruyt-scraper/config"
	"github.com/Merilairon/colruyt-scraper/metrics"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "colruyt").Logger()

// Fetcher is the transport contract the collector consumes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, host string, query url.Values, skipAuth bool) ([]byte, error)
}

// StatusError reports a non-2xx gateway response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Client fetches from the Colruyt gateway with bounded retries,
// exponential backoff and per-attempt proxy rotation. The gateway auth
// header is bootstrapped lazily and cached for the process lifetime.
type Client struct {
	cfg  config.ColruytConfig
	pool *ProxyPool

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration

	mu         sync.Mutex
	authHeader string
	authValue  string
}

func NewClient(cfg config.ColruytConfig) (*Client, error) {
	var proxies []string
	if cfg.ProxyEnabled {
		proxies = cfg.Proxies
	}
	pool, err := NewProxyPool(proxies, cfg.RequestTimeout())
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		pool:   pool,
		sleep:  sleepContext,
		jitter: randomJitter,
	}, nil
}

// Fetch issues a GET against the gateway and returns the response
// body. Retryable failures (408/5xx, transport timeouts) are retried
// up to the configured attempt budget; everything else propagates
// immediately.
func (c *Client) Fetch(ctx context.Context, rawURL, host string, query url.Values, skipAuth bool) ([]byte, error) {
	if !skipAuth {
		if err := c.ensureToken(ctx); err != nil {
			return nil, fmt.Errorf("bootstrapping auth header: %w", err)
		}
	}

	tries := c.maxTries()
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		if attempt > 0 {
			metrics.RecordUpstreamRetry(host)
			if err := c.sleep(ctx, backoffDelay(attempt-1)+c.jitter()); err != nil {
				return nil, err
			}
		}

		body, err := c.do(ctx, rawURL, host, query, skipAuth)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		logger.Warn().Err(err).Msgf("Retryable fetch failure (attempt %d/%d) for %s", attempt+1, tries, rawURL)
	}
	return nil, fmt.Errorf("fetch %s: attempts exhausted after %d tries: %w", rawURL, tries, lastErr)
}

// do performs a single attempt through one randomly drawn client.
func (c *Client) do(ctx context.Context, rawURL, host string, query url.Values, skipAuth bool) ([]byte, error) {
	target := rawURL
	if len(query) > 0 {
		target = rawURL + "?" + query.Encode()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", target, err)
	}
	req.Host = host
	req.Header.Set("Accept", "application/json")
	if !skipAuth {
		name, value := c.cachedToken()
		req.Header.Set(name, value)
	}

	start := time.Now()
	resp, err := c.pool.Client().Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(host, 0, time.Since(start))
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	metrics.RecordUpstreamRequest(host, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}
	return body, nil
}

// ensureToken performs the one-shot bootstrap call and caches the
// resulting auth header. The first caller wins; concurrent callers
// block until it finishes and then observe the cached value.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authValue != "" {
		return nil
	}

	body, err := c.Fetch(ctx, c.cfg.ConfigURL, c.cfg.ConfigHost, nil, true)
	if err != nil {
		return err
	}

	var bootstrap configResponse
	if err := json.Unmarshal(body, &bootstrap); err != nil {
		return fmt.Errorf("decoding bootstrap response: %w", err)
	}
	if len(bootstrap.DataService.Headers) == 0 {
		return fmt.Errorf("bootstrap response carries no auth header")
	}

	name, value, found := strings.Cut(bootstrap.DataService.Headers[0], ":")
	if !found {
		return fmt.Errorf("malformed auth header entry %q", bootstrap.DataService.Headers[0])
	}
	c.authHeader = strings.TrimSpace(name)
	c.authValue = strings.TrimSpace(value)
	logger.Info().Msgf("Bootstrapped gateway auth header %q", c.authHeader)
	return nil
}

func (c *Client) cachedToken() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authHeader, c.authValue
}

func (c *Client) maxTries() int {
	if c.cfg.MaxTries > 0 {
		return c.cfg.MaxTries
	}
	return 10
}

// retryable reports whether a failure may succeed on another attempt.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// backoffDelay returns the base delay after the zero-based failed
// attempt n: 2^n seconds. Jitter is added by the caller.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func randomJitter() time.Duration {
	return time.Duration(rand.Intn(1000)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
