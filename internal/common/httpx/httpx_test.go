package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
)

func TestMatchHost(t *testing.T) {
	cases := []struct {
		pattern, host string
		want          bool
	}{
		{"*", "anything.example", true},
		{"api.example.com", "api.example.com", true},
		{"api.example.com", "API.EXAMPLE.COM", true},
		{"api.example.com", "other.example.com", false},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "example.com", true},
		{"*.example.com", "example.org", false},
	}
	for _, tc := range cases {
		if got := matchHost(tc.pattern, tc.host); got != tc.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", tc.pattern, tc.host, got, tc.want)
		}
	}
}

func TestDoBlocksDisallowedHost(t *testing.T) {
	c := NewFromConfig(&config.HTTPClientConfig{HostAllowlist: []string{"allowed.example"}})
	req, _ := http.NewRequest(http.MethodGet, "http://blocked.example/", nil)
	if _, err := c.Do(req); err != ErrHostNotAllowed {
		t.Errorf("expected ErrHostNotAllowed, got %v", err)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewFromConfig(&config.HTTPClientConfig{Retry: 2, BackoffMinMs: 1, BackoffMaxMs: 2})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected retried success, got %v %v", resp, err)
	}
	resp.Body.Close()
	if hits != 2 {
		t.Errorf("expected 2 attempts, got %d", hits)
	}
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewFromConfig(&config.HTTPClientConfig{
		Retry: 1, BackoffMinMs: 1, BackoffMaxMs: 2,
		MaxConsecutiveFailures: 2, CircuitOpenSeconds: 30,
	})
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		if resp, _ := c.Do(req); resp != nil {
			resp.Body.Close()
		}
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := c.Do(req); err != ErrCircuitOpen {
		t.Errorf("expected the circuit to be open, got %v", err)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	min, max := 10*time.Millisecond, 20*time.Millisecond
	for i := 0; i < 50; i++ {
		d := backoffJitter(min, max)
		if d < min || d >= max {
			t.Fatalf("jitter %v out of [%v, %v)", d, min, max)
		}
	}
	if backoffJitter(max, min) != max {
		t.Errorf("inverted bounds must return the lower bound argument")
	}
}
