package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// mockHealthHTTPClient implements HealthHTTPClient for testing health checks.
type mockHealthHTTPClient struct {
	DoFunc func(*http.Request) (*http.Response, error)
	calls  int32
}

func (m *mockHealthHTTPClient) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (m *mockHealthHTTPClient) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

func statusResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

// =============================================================================
// UNIT TESTS: CheckHealth
// =============================================================================

func TestCheckHealth_ImmediateSuccess(t *testing.T) {
	client := &mockHealthHTTPClient{}
	h := NewDefaultHealthCheckerWithHTTPClient(client, "/health", time.Millisecond, nil)

	if !h.CheckHealth(context.Background(), "127.0.0.1", 8000, time.Second) {
		t.Fatal("expected healthy")
	}
	if client.Calls() != 1 {
		t.Errorf("calls = %d, want 1", client.Calls())
	}
}

// TestCheckHealth_BecomesHealthy simulates a server that starts listening
// on the third attempt.
func TestCheckHealth_BecomesHealthy(t *testing.T) {
	client := &mockHealthHTTPClient{}
	client.DoFunc = func(req *http.Request) (*http.Response, error) {
		if client.Calls() < 3 {
			return nil, errors.New("connection refused")
		}
		return statusResponse(200), nil
	}
	h := NewDefaultHealthCheckerWithHTTPClient(client, "/health", time.Millisecond, nil)

	if !h.CheckHealth(context.Background(), "127.0.0.1", 8001, 100*time.Millisecond) {
		t.Fatal("expected healthy after retries")
	}
	if client.Calls() != 3 {
		t.Errorf("calls = %d, want 3", client.Calls())
	}
}

func TestCheckHealth_AttemptBudget(t *testing.T) {
	client := &mockHealthHTTPClient{DoFunc: func(*http.Request) (*http.Response, error) {
		return statusResponse(503), nil
	}}
	h := NewDefaultHealthCheckerWithHTTPClient(client, "/health", time.Millisecond, nil)

	if h.CheckHealth(context.Background(), "127.0.0.1", 8000, 5*time.Millisecond) {
		t.Fatal("expected unhealthy")
	}
	if client.Calls() != 5 {
		t.Errorf("calls = %d, want ceil(5ms/1ms) = 5", client.Calls())
	}
}

func TestCheckHealth_Non2xxIsUnhealthy(t *testing.T) {
	for _, code := range []int{199, 301, 404, 500} {
		client := &mockHealthHTTPClient{DoFunc: func(*http.Request) (*http.Response, error) {
			return statusResponse(code), nil
		}}
		h := NewDefaultHealthCheckerWithHTTPClient(client, "/health", time.Millisecond, nil)
		if err := h.Probe(context.Background(), "127.0.0.1", 8000); err == nil {
			t.Errorf("status %d: expected error", code)
		}
	}
}

func TestCheckHealth_ContextCancelled(t *testing.T) {
	client := &mockHealthHTTPClient{DoFunc: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}
	h := NewDefaultHealthCheckerWithHTTPClient(client, "/health", 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if h.CheckHealth(ctx, "127.0.0.1", 8000, 30*time.Second) {
		t.Fatal("expected false after cancel")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("CheckHealth took %s after cancel", elapsed)
	}
}

func TestCheckHealth_RequestURL(t *testing.T) {
	var got string
	client := &mockHealthHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		got = req.URL.String()
		return statusResponse(200), nil
	}}
	h := NewDefaultHealthCheckerWithHTTPClient(client, "/health", time.Millisecond, nil)

	h.CheckHealth(context.Background(), "0.0.0.0", 8123, time.Second)

	if got != "http://127.0.0.1:8123/health" {
		t.Errorf("URL = %q", got)
	}
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		host string
		path string
		want string
	}{
		{"127.0.0.1", "/health", "http://127.0.0.1:8000/health"},
		{"", "/health", "http://127.0.0.1:8000/health"},
		{"0.0.0.0", "health", "http://127.0.0.1:8000/health"},
		{"::", "/health", "http://[::1]:8000/health"},
		{"[::1]", "/health", "http://[::1]:8000/health"},
		{"localhost", "/healthz", "http://localhost:8000/healthz"},
	}
	for _, tt := range tests {
		if got := healthURL(tt.host, 8000, tt.path); got != tt.want {
			t.Errorf("healthURL(%q, %q) = %q, want %q", tt.host, tt.path, got, tt.want)
		}
	}
}

// =============================================================================
// INTEGRATION: real HTTP server
// =============================================================================

func TestCheckHealth_RealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	port, _ := strconv.Atoi(portStr)

	h := NewDefaultHealthChecker("/health", 10*time.Millisecond, nil)
	if !h.CheckHealth(context.Background(), host, port, time.Second) {
		t.Fatal("expected healthy against httptest server")
	}

	h = NewDefaultHealthChecker("/missing", 10*time.Millisecond, nil)
	if h.CheckHealth(context.Background(), host, port, 30*time.Millisecond) {
		t.Fatal("404 must not count as healthy")
	}
}

func TestMockHealthChecker_RecordsCalls(t *testing.T) {
	m := &MockHealthChecker{}
	if !m.CheckHealth(context.Background(), "h", 1, time.Second) {
		t.Error("mock defaults to healthy")
	}
	calls := m.Calls()
	if len(calls) != 1 || calls[0].Port != 1 || calls[0].Timeout != time.Second {
		t.Errorf("calls = %+v", calls)
	}
}
