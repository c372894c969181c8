package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/termmcp/term-mcp-deepseek/pkg/logging"
)

// =============================================================================
// INTERFACES
// =============================================================================

// HealthChecker confirms that a freshly spawned server answers HTTP.
//
// # Description
//
// Health is advisory. A false result from CheckHealth is reported as a
// warning and the server is left running: slow first starts (pip caches,
// model warm-up) are normal.
//
// # Examples
//
//	checker := NewDefaultHealthChecker("/health", time.Second, logger)
//	if !checker.CheckHealth(ctx, "127.0.0.1", 8000, 30*time.Second) {
//	    printer.Warning("server did not become healthy")
//	}
type HealthChecker interface {
	// CheckHealth polls the health endpoint once per interval until it
	// answers 2xx (true) or timeout worth of attempts are spent (false).
	// Returns false promptly if ctx is cancelled.
	CheckHealth(ctx context.Context, host string, port int, timeout time.Duration) bool

	// Probe performs a single health request. Nil means 2xx.
	Probe(ctx context.Context, host string, port int) error
}

// HealthHTTPClient is the subset of *http.Client used for probes.
//
// # Assumptions
//
//   - Caller handles response body closing
type HealthHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// STRUCTS
// =============================================================================

// DefaultHealthChecker polls GET http://host:port{path}.
//
// # Thread Safety
//
// Safe for concurrent use; it holds no mutable state.
type DefaultHealthChecker struct {
	httpClient HealthHTTPClient
	path       string
	interval   time.Duration
	logger     *logging.Logger
}

// MockHealthChecker is a mock implementation for testing.
//
// # Examples
//
//	mock := &MockHealthChecker{
//	    CheckHealthFunc: func(ctx context.Context, host string, port int, timeout time.Duration) bool {
//	        return port == 8001
//	    },
//	}
type MockHealthChecker struct {
	CheckHealthFunc func(ctx context.Context, host string, port int, timeout time.Duration) bool
	ProbeFunc       func(ctx context.Context, host string, port int) error

	CheckHealthCalls []HealthCheckCall
	mu               sync.Mutex
}

// HealthCheckCall records a call to CheckHealth.
type HealthCheckCall struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// NewDefaultHealthChecker creates a checker with a 2-second per-request
// HTTP timeout.
func NewDefaultHealthChecker(path string, interval time.Duration, logger *logging.Logger) *DefaultHealthChecker {
	return NewDefaultHealthCheckerWithHTTPClient(&http.Client{Timeout: 2 * time.Second}, path, interval, logger)
}

// NewDefaultHealthCheckerWithHTTPClient creates a checker with an injected
// HTTP client, used by tests to simulate a server coming up.
func NewDefaultHealthCheckerWithHTTPClient(client HealthHTTPClient, path string, interval time.Duration, logger *logging.Logger) *DefaultHealthChecker {
	if path == "" {
		path = "/health"
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultHealthChecker{
		httpClient: client,
		path:       path,
		interval:   interval,
		logger:     logger,
	}
}

// =============================================================================
// DefaultHealthChecker METHODS
// =============================================================================

// CheckHealth polls until healthy or out of attempts.
//
// # Description
//
// Makes ceil(timeout/interval) attempts (30 with the defaults), sleeping
// one interval between them. The first 2xx wins.
//
// # Inputs
//
//   - ctx: Cancellation; an interrupted poll returns false.
//   - host: Bind host of the server. Wildcards are probed on loopback.
//   - port: Resolved port.
//   - timeout: Total polling budget.
//
// # Outputs
//
//   - bool: True once the endpoint answered 2xx.
func (h *DefaultHealthChecker) CheckHealth(ctx context.Context, host string, port int, timeout time.Duration) bool {
	attempts := int((timeout + h.interval - 1) / h.interval)
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := h.Probe(ctx, host, port)
		if err == nil {
			h.logger.Debug("health check passed", "port", port, "attempt", attempt)
			return true
		}
		h.logger.Debug("health check pending", "port", port, "attempt", attempt, "error", err)

		if attempt == attempts {
			break
		}
		h.sleepWithContext(ctx, h.interval)
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Probe sends one GET to the health endpoint.
func (h *DefaultHealthChecker) Probe(ctx context.Context, host string, port int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(host, port, h.path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// sleepWithContext sleeps for duration or until ctx is done.
func (h *DefaultHealthChecker) sleepWithContext(ctx context.Context, duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// healthURL builds the probe URL. A server bound to a wildcard address is
// reached through loopback.
func healthURL(host string, port int, path string) string {
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::", "[::]":
		host = "::1"
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// =============================================================================
// MockHealthChecker METHODS
// =============================================================================

// CheckHealth records the call and delegates to CheckHealthFunc.
// Default: healthy.
func (m *MockHealthChecker) CheckHealth(ctx context.Context, host string, port int, timeout time.Duration) bool {
	m.mu.Lock()
	m.CheckHealthCalls = append(m.CheckHealthCalls, HealthCheckCall{Host: host, Port: port, Timeout: timeout})
	m.mu.Unlock()

	if m.CheckHealthFunc != nil {
		return m.CheckHealthFunc(ctx, host, port, timeout)
	}
	return true
}

// Probe delegates to ProbeFunc. Default: healthy.
func (m *MockHealthChecker) Probe(ctx context.Context, host string, port int) error {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, host, port)
	}
	return nil
}

// Calls returns a copy of the recorded CheckHealth calls.
func (m *MockHealthChecker) Calls() []HealthCheckCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HealthCheckCall, len(m.CheckHealthCalls))
	copy(out, m.CheckHealthCalls)
	return out
}

// Compile-time interface compliance check.
var (
	_ HealthChecker = (*DefaultHealthChecker)(nil)
	_ HealthChecker = (*MockHealthChecker)(nil)
)
