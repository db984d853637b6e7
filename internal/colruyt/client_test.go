package colruyt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Merilairon/colruyt-scraper/config"
)

const bootstrapBody = `{"dataService":{"headers":["X-Gateway-APIKey: token-abc123","Accept-Language: nl"]}}`

func newTestClient(t *testing.T, cfg config.ColruytConfig) (*Client, *[]time.Duration) {
	t.Helper()
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 5
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	delays := &[]time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	client.jitter = func() time.Duration { return 0 }
	return client, delays
}

func TestFetchRetriesOnServerErrors(t *testing.T) {
	var productHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bootstrapBody)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&productHits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"productsFound":1,"products":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, delays := newTestClient(t, config.ColruytConfig{ConfigURL: srv.URL + "/config"})

	body, err := client.Fetch(context.Background(), srv.URL+"/products", "apip.test", nil, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !strings.Contains(string(body), `"productsFound":1`) {
		t.Errorf("unexpected body: %s", body)
	}
	if got := atomic.LoadInt32(&productHits); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 backoff delays, got %d", len(*delays))
	}
	if (*delays)[1] <= (*delays)[0] {
		t.Errorf("expected growing backoff, got %v then %v", (*delays)[0], (*delays)[1])
	}
}

func TestFetchFatalStatusDoesNotRetry(t *testing.T) {
	var productHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bootstrapBody)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&productHits, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, delays := newTestClient(t, config.ColruytConfig{ConfigURL: srv.URL + "/config"})

	_, err := client.Fetch(context.Background(), srv.URL+"/products", "apip.test", nil, false)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Errorf("expected StatusError 404, got %v", err)
	}
	if got := atomic.LoadInt32(&productHits); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no backoff, observed %v", *delays)
	}
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	var productHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bootstrapBody)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&productHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, delays := newTestClient(t, config.ColruytConfig{ConfigURL: srv.URL + "/config", MaxTries: 3})

	_, err := client.Fetch(context.Background(), srv.URL+"/products", "apip.test", nil, false)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("expected last status in error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Errorf("expected wrapped StatusError, got %v", err)
	}
	if got := atomic.LoadInt32(&productHits); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(*delays) != 2 {
		t.Errorf("expected 2 backoff delays, got %d", len(*delays))
	}
}

func TestTokenBootstrappedOncePerProcess(t *testing.T) {
	var configHits int32
	var seenTokens []string
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&configHits, 1)
		fmt.Fprint(w, bootstrapBody)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		seenTokens = append(seenTokens, r.Header.Get("X-Gateway-APIKey"))
		fmt.Fprint(w, `{"productsFound":0,"products":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newTestClient(t, config.ColruytConfig{ConfigURL: srv.URL + "/config"})

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), srv.URL+"/products", "apip.test", nil, false); err != nil {
			t.Fatalf("Fetch %d returned error: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&configHits); got != 1 {
		t.Errorf("expected one bootstrap call, got %d", got)
	}
	if len(seenTokens) != 3 {
		t.Fatalf("expected 3 catalog requests, got %d", len(seenTokens))
	}
	for i, token := range seenTokens {
		if token != "token-abc123" {
			t.Errorf("request %d carried token %q", i, token)
		}
	}
}

func TestSkipAuthOmitsTokenAndBootstrap(t *testing.T) {
	var configHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&configHits, 1)
		fmt.Fprint(w, bootstrapBody)
	})
	var token string
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Gateway-APIKey")
		fmt.Fprint(w, `{"productsFound":0,"products":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newTestClient(t, config.ColruytConfig{ConfigURL: srv.URL + "/config"})

	if _, err := client.Fetch(context.Background(), srv.URL+"/products", "apip.test", nil, true); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got := atomic.LoadInt32(&configHits); got != 0 {
		t.Errorf("expected no bootstrap call, got %d", got)
	}
	if token != "" {
		t.Errorf("expected no token header, got %q", token)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", &StatusError{Code: http.StatusServiceUnavailable}, true},
		{"internal error", &StatusError{Code: http.StatusInternalServerError}, true},
		{"bad gateway", &StatusError{Code: http.StatusBadGateway}, true},
		{"gateway timeout", &StatusError{Code: http.StatusGatewayTimeout}, true},
		{"request timeout", &StatusError{Code: http.StatusRequestTimeout}, true},
		{"not found", &StatusError{Code: http.StatusNotFound}, false},
		{"unauthorized", &StatusError{Code: http.StatusUnauthorized}, false},
		{"too many requests", &StatusError{Code: http.StatusTooManyRequests}, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), true},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Errorf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if got := backoffDelay(attempt); got != expected {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestBootstrapRejectsMalformedHeaderList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dataService":{"headers":[]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newTestClient(t, config.ColruytConfig{ConfigURL: srv.URL + "/config"})

	_, err := client.Fetch(context.Background(), srv.URL+"/products", "apip.test", nil, false)
	if err == nil || !strings.Contains(err.Error(), "no auth header") {
		t.Errorf("expected bootstrap failure, got %v", err)
	}
}
