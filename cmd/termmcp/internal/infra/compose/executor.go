// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose delegates `--mode docker` to the Docker Compose CLI.
//
// termmcp never manages containers itself. It detects which compose front
// end is installed (the `docker compose` plugin or the standalone
// `docker-compose`), then shells out for up, down, logs and ps.
package compose

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
)

var (
	// ErrComposeNotFound is returned when neither compose front end is installed.
	ErrComposeNotFound = errors.New("docker compose not found")

	// ErrComposeFileMissing is returned when the compose file doesn't exist.
	ErrComposeFileMissing = errors.New("compose file not found")

	// ErrInvalidConfig is returned for unusable ComposeConfig values.
	ErrInvalidConfig = errors.New("invalid compose configuration")
)

// ComposeExecutor runs compose operations for the project.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ComposeExecutor interface {
	// Up starts the services detached.
	Up(ctx context.Context, opts UpOptions) (*ComposeResult, error)

	// Down stops and removes the services.
	Down(ctx context.Context) (*ComposeResult, error)

	// Logs writes service logs to w, following them if opts.Follow is set
	// until ctx is cancelled.
	Logs(ctx context.Context, opts LogsOptions, w io.Writer) error

	// Status reports the state of each service.
	Status(ctx context.Context) (*ComposeStatus, error)

	// Command returns the detected front end, e.g. "docker compose".
	Command() string
}

// =============================================================================
// Configuration and Results
// =============================================================================

// ComposeConfig provides configuration for compose operations.
type ComposeConfig struct {
	// Dir is the project directory. Default: current directory.
	Dir string

	// File is the compose file, relative to Dir. Default: "docker-compose.yml".
	File string

	// ProjectName is passed with -p when non-empty.
	ProjectName string

	// Env is the environment given to compose for ${VAR} interpolation.
	// Nil inherits os.Environ().
	Env []string

	// DefaultTimeout bounds up, down and ps. Default: 5 minutes.
	DefaultTimeout time.Duration
}

// UpOptions configures the Up operation.
type UpOptions struct {
	// Build maps to --build.
	Build bool
}

// LogsOptions configures the Logs operation.
type LogsOptions struct {
	// Follow maps to -f.
	Follow bool

	// Tail limits the backlog per service. Zero means all.
	Tail int
}

// ComposeResult contains the outcome of a captured compose command.
type ComposeResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// Command is the full command line, for error messages.
	Command string
}

// ComposeStatus contains the current state of compose services.
type ComposeStatus struct {
	Services []ServiceStatus

	// Running is the count of services in state "running".
	Running int
}

// ServiceStatus contains the status of a single service.
type ServiceStatus struct {
	Service string
	Name    string
	State   string

	// Health is "healthy", "unhealthy", "starting" or empty when the
	// service has no health check.
	Health string

	// Ports lists published host ports.
	Ports []int
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultComposeExecutor implements ComposeExecutor with the compose CLI.
type DefaultComposeExecutor struct {
	config ComposeConfig
	proc   process.Manager
	binary string
	prefix []string
	mu     sync.Mutex
}

// NewDefaultComposeExecutor detects the compose front end and validates the
// compose file.
//
// # Description
//
// Prefers the `docker compose` plugin, verified with `docker compose
// version`, and falls back to a standalone `docker-compose` binary.
//
// # Inputs
//
//   - ctx: Bounds the detection probe.
//   - cfg: Compose configuration; zero values get defaults.
//   - proc: Process manager used for every invocation.
//
// # Outputs
//
//   - *DefaultComposeExecutor: Ready executor.
//   - error: ErrComposeNotFound, ErrComposeFileMissing or ErrInvalidConfig.
func NewDefaultComposeExecutor(ctx context.Context, cfg ComposeConfig, proc process.Manager) (*DefaultComposeExecutor, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager is required", ErrInvalidConfig)
	}
	applyComposeConfigDefaults(&cfg)

	binary, prefix, err := detectCompose(ctx, proc)
	if err != nil {
		return nil, err
	}

	composePath := filepath.Join(cfg.Dir, cfg.File)
	if _, err := os.Stat(composePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrComposeFileMissing, composePath)
	}

	return &DefaultComposeExecutor{
		config: cfg,
		proc:   proc,
		binary: binary,
		prefix: prefix,
	}, nil
}

func applyComposeConfigDefaults(cfg *ComposeConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.File == "" {
		cfg.File = "docker-compose.yml"
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
}

func detectCompose(ctx context.Context, proc process.Manager) (string, []string, error) {
	if _, err := proc.LookPath("docker"); err == nil {
		_, _, code, err := proc.RunInDir(ctx, "", nil, "docker", "compose", "version")
		if err == nil && code == 0 {
			return "docker", []string{"compose"}, nil
		}
	}
	if _, err := proc.LookPath("docker-compose"); err == nil {
		return "docker-compose", nil, nil
	}
	return "", nil, ErrComposeNotFound
}

// Command returns the detected front end.
func (e *DefaultComposeExecutor) Command() string {
	return strings.Join(append([]string{e.binary}, e.prefix...), " ")
}

// Up runs `compose up -d`.
func (e *DefaultComposeExecutor) Up(ctx context.Context, opts UpOptions) (*ComposeResult, error) {
	args := []string{"up", "-d"}
	if opts.Build {
		args = append(args, "--build")
	}
	return e.runCompose(ctx, args)
}

// Down runs `compose down`.
func (e *DefaultComposeExecutor) Down(ctx context.Context) (*ComposeResult, error) {
	return e.runCompose(ctx, []string{"down"})
}

// Logs streams `compose logs`.
func (e *DefaultComposeExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	args := e.buildArgs("logs")
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	return e.proc.RunStreaming(ctx, e.config.Dir, w, e.binary, args...)
}

// Status runs `compose ps --format json` and parses the result.
func (e *DefaultComposeExecutor) Status(ctx context.Context) (*ComposeStatus, error) {
	result, err := e.runCompose(ctx, []string{"ps", "--all", "--format", "json"})
	if err != nil {
		return nil, err
	}
	return parseStatus(result.Stdout)
}

func (e *DefaultComposeExecutor) buildArgs(sub ...string) []string {
	args := append([]string{}, e.prefix...)
	args = append(args, "-f", e.config.File)
	if e.config.ProjectName != "" {
		args = append(args, "-p", e.config.ProjectName)
	}
	return append(args, sub...)
}

// runCompose executes a captured compose command with the default timeout.
func (e *DefaultComposeExecutor) runCompose(ctx context.Context, sub []string) (*ComposeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	args := e.buildArgs(sub...)
	cmdStr := e.binary + " " + strings.Join(args, " ")

	execCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, e.config.Dir, e.config.Env, e.binary, args...)

	result := &ComposeResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, fmt.Errorf("compose command failed: %w", err)
	}
	if exitCode != 0 {
		return result, fmt.Errorf("%s exited with code %d: %s", cmdStr, exitCode, strings.TrimSpace(stderr))
	}
	return result, nil
}

// psEntry is one service from `compose ps --format json`.
type psEntry struct {
	Name       string `json:"Name"`
	Service    string `json:"Service"`
	State      string `json:"State"`
	Health     string `json:"Health"`
	Publishers []struct {
		PublishedPort int `json:"PublishedPort"`
	} `json:"Publishers"`
}

// parseStatus accepts both output shapes compose has shipped: a single
// JSON array (v2 before 2.21) and one JSON object per line (later).
func parseStatus(output string) (*ComposeStatus, error) {
	status := &ComposeStatus{Services: []ServiceStatus{}}

	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return status, nil
	}

	var entries []psEntry
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(strings.NewReader(trimmed))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var entry psEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
			}
			entries = append(entries, entry)
		}
	}

	for _, entry := range entries {
		svc := ServiceStatus{
			Service: entry.Service,
			Name:    entry.Name,
			State:   entry.State,
			Health:  entry.Health,
		}
		seen := make(map[int]bool)
		for _, p := range entry.Publishers {
			if p.PublishedPort > 0 && !seen[p.PublishedPort] {
				seen[p.PublishedPort] = true
				svc.Ports = append(svc.Ports, p.PublishedPort)
			}
		}
		sort.Ints(svc.Ports)
		if entry.State == "running" {
			status.Running++
		}
		status.Services = append(status.Services, svc)
	}
	return status, nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockComposeExecutor is a test double for ComposeExecutor. Unset function
// fields succeed with empty results.
type MockComposeExecutor struct {
	UpFunc     func(context.Context, UpOptions) (*ComposeResult, error)
	DownFunc   func(context.Context) (*ComposeResult, error)
	LogsFunc   func(context.Context, LogsOptions, io.Writer) error
	StatusFunc func(context.Context) (*ComposeStatus, error)

	UpCalls   []UpOptions
	DownCalls int
	LogsCalls []LogsOptions
	mu        sync.Mutex
}

// Up implements ComposeExecutor.
func (m *MockComposeExecutor) Up(ctx context.Context, opts UpOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.mu.Unlock()

	if m.UpFunc != nil {
		return m.UpFunc(ctx, opts)
	}
	return &ComposeResult{}, nil
}

// Down implements ComposeExecutor.
func (m *MockComposeExecutor) Down(ctx context.Context) (*ComposeResult, error) {
	m.mu.Lock()
	m.DownCalls++
	m.mu.Unlock()

	if m.DownFunc != nil {
		return m.DownFunc(ctx)
	}
	return &ComposeResult{}, nil
}

// Logs implements ComposeExecutor.
func (m *MockComposeExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	m.mu.Lock()
	m.LogsCalls = append(m.LogsCalls, opts)
	m.mu.Unlock()

	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, opts, w)
	}
	return nil
}

// Status implements ComposeExecutor.
func (m *MockComposeExecutor) Status(ctx context.Context) (*ComposeStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &ComposeStatus{Services: []ServiceStatus{}}, nil
}

// Command implements ComposeExecutor.
func (m *MockComposeExecutor) Command() string {
	return "docker compose"
}

// Compile-time interface compliance check.
var (
	_ ComposeExecutor = (*DefaultComposeExecutor)(nil)
	_ ComposeExecutor = (*MockComposeExecutor)(nil)
)
