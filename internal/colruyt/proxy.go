package colruyt

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// ProxyPool owns one HTTP client per configured proxy plus a direct
// client. Every attempt draws uniformly at random; no affinity is kept
// across retries of the same request.
type ProxyPool struct {
	clients []*http.Client
	direct  *http.Client
}

func NewProxyPool(proxies []string, timeout time.Duration) (*ProxyPool, error) {
	pool := &ProxyPool{direct: &http.Client{Timeout: timeout}}
	for _, raw := range proxies {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed proxy url %q: %w", raw, err)
		}
		switch parsed.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q in %q", parsed.Scheme, raw)
		}
		pool.clients = append(pool.clients, &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
		})
	}
	return pool, nil
}

// Client returns the HTTP client to use for one attempt.
func (p *ProxyPool) Client() *http.Client {
	if len(p.clients) == 0 {
		return p.direct
	}
	return p.clients[p.pick()]
}

func (p *ProxyPool) pick() int {
	return rand.Intn(len(p.clients))
}

// Size reports the number of configured proxies.
func (p *ProxyPool) Size() int {
	return len(p.clients)
}
