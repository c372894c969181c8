// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package main implements termmcp, the lifecycle manager for the terminal +
DeepSeek chat server.

# Control Flow

	CLI flags ─▶ StartupConfig ─▶ mode dispatch
	                                 │
	         ┌───────────────────────┼────────────────────────┐
	         ▼                       ▼                        ▼
	       http                    stdio                    docker
	  env file check          env file check           env file check
	  stale record purge      venv bootstrap           port resolution
	  venv bootstrap          foreground run           compose up
	  port resolution                                  health poll
	  spawn + PID record
	  health poll

The PID record (.server.pid) is the only state that outlives an
invocation. It is owned by the session package and touched only through
Validate, Acquire and Release.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/config"
	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/compose"
	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/session"
	"github.com/termmcp/term-mcp-deepseek/pkg/logging"
	"github.com/termmcp/term-mcp-deepseek/pkg/ux"
)

// stopPollInterval is how often StopServer re-checks a signalled pid.
const stopPollInterval = 100 * time.Millisecond

// =============================================================================
// TYPES
// =============================================================================

// Session describes one running Application Server.
type Session struct {
	Host string
	Port int
	PID  int
	Mode Mode
}

// StartResult reports what StartServer did.
type StartResult struct {
	Session Session

	// RequestedPort is --port; Session.Port differs when auto-port moved it.
	RequestedPort int

	// Attached is true when the server ran in the foreground (verbose or
	// stdio) and has already exited by the time the result is returned.
	Attached bool

	// Healthy is true once the health endpoint answered 2xx.
	Healthy bool

	// HealthErr wraps ErrHealthCheckTimeout when a detached server did not
	// become healthy. The server is left running.
	HealthErr error

	// StalePurged is true when a stale PID record was removed first.
	StalePurged bool

	// LogPath is where a detached server writes its output.
	LogPath string
}

// StopResult reports what StopServer did.
type StopResult struct {
	PID int

	// NoRecord: there was nothing to stop.
	NoRecord bool

	// WasStale: the record named a dead process and was removed.
	WasStale bool

	// Forced: SIGTERM was ignored for the grace period and SIGKILL was sent.
	Forced bool

	// Docker: the stop was delegated to compose down.
	Docker bool
}

// SessionStatus is the answer to `termmcp status`.
type SessionStatus struct {
	Running bool
	PID     int

	// Port is the listening port reported by lsof, 0 when unknown.
	Port int

	Mode Mode

	// Stale: a record existed for a dead process and was removed.
	Stale bool

	RecordPath string

	// Services is set in docker mode.
	Services []compose.ServiceStatus
}

// LifecycleManager starts, stops and inspects the Application Server.
type LifecycleManager interface {
	StartServer(ctx context.Context, cfg StartupConfig) (*StartResult, error)
	StopServer(ctx context.Context, cfg StartupConfig) (*StopResult, error)
	Restart(ctx context.Context, cfg StartupConfig) (*StartResult, error)
	Status(ctx context.Context, cfg StartupConfig) (*SessionStatus, error)
	Logs(ctx context.Context, cfg StartupConfig, w io.Writer, follow bool) error
}

// ComposeFactory builds a compose executor with env for interpolation.
type ComposeFactory func(ctx context.Context, env []string) (compose.ComposeExecutor, error)

// LifecycleDeps are the collaborators of DefaultLifecycleManager. Nil
// fields get production defaults.
type LifecycleDeps struct {
	Project    *config.ProjectConfig
	Proc       process.Manager
	Prober     PortProber
	Health     HealthChecker
	Lock       process.ProcessLocker
	Compose    ComposeFactory
	Printer    *ux.Printer
	Logger     *logging.Logger
	Executable func() (string, error)
	Environ    func() []string
	Sleep      func(ctx context.Context, d time.Duration)
}

// DefaultLifecycleManager implements LifecycleManager.
//
// # Thread Safety
//
// Intended for one command per process; the lock helpers are guarded so
// the verbose callback may release the CLI lock from the exec goroutine.
type DefaultLifecycleManager struct {
	project    *config.ProjectConfig
	proc       process.Manager
	ports      *PortResolver
	health     HealthChecker
	record     *session.Record
	lock       process.ProcessLocker
	compose    ComposeFactory
	out        *ux.Printer
	logger     *logging.Logger
	executable func() (string, error)
	environ    func() []string
	sleep      func(ctx context.Context, d time.Duration)

	lockMu sync.Mutex
}

// NewDefaultLifecycleManager wires a manager from deps.
func NewDefaultLifecycleManager(deps LifecycleDeps) *DefaultLifecycleManager {
	m := &DefaultLifecycleManager{
		project:    deps.Project,
		proc:       deps.Proc,
		health:     deps.Health,
		lock:       deps.Lock,
		compose:    deps.Compose,
		out:        deps.Printer,
		logger:     deps.Logger,
		executable: deps.Executable,
		environ:    deps.Environ,
		sleep:      deps.Sleep,
	}
	if m.project == nil {
		cfg := config.DefaultConfig()
		m.project = &cfg
	}
	if m.proc == nil {
		m.proc = process.NewDefaultManager()
	}
	if m.logger == nil {
		m.logger = logging.Nop()
	}
	if m.out == nil {
		m.out = ux.NewStdPrinter()
	}
	if m.health == nil {
		m.health = NewDefaultHealthChecker(m.project.Server.HealthPath, m.project.Timing.HealthInterval, m.logger)
	}
	if m.compose == nil {
		m.compose = m.defaultCompose
	}
	if m.executable == nil {
		m.executable = os.Executable
	}
	if m.environ == nil {
		m.environ = os.Environ
	}
	if m.sleep == nil {
		m.sleep = sleepWithContext
	}
	m.ports = NewPortResolver(deps.Prober, m.project.Server.MaxPortProbes, m.logger)
	m.record = session.NewRecord(m.project.State.PIDFile)
	return m
}

// =============================================================================
// START
// =============================================================================

// StartServer dispatches on cfg.Mode.
//
// # Description
//
// http: validates the env file, purges a stale PID record (a live one is
// ErrAlreadyRunning), bootstraps the runtime, resolves the port, spawns
// the server and records its pid. Detached servers are then health
// polled; verbose servers run attached until they exit.
//
// stdio: runs the stdio entry point in the foreground. No port, no PID
// record, no health check.
//
// docker: validates the env file, resolves the port and delegates to
// compose up, then health polls the published port.
//
// # Outputs
//
//   - *StartResult: Session details. HealthErr is advisory.
//   - error: Fatal pre-flight or spawn failures. Nothing is left running
//     and no record is left behind when an error is returned.
func (m *DefaultLifecycleManager) StartServer(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeStdio:
		return m.runStdio(ctx, cfg)
	case ModeDocker:
		if err := m.acquireLock(); err != nil {
			return nil, err
		}
		defer m.releaseLock()
		return m.startDocker(ctx, cfg)
	default:
		if err := m.acquireLock(); err != nil {
			return nil, err
		}
		defer m.releaseLock()
		return m.startHTTP(ctx, cfg)
	}
}

func (m *DefaultLifecycleManager) startHTTP(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	env, err := LoadEnvironment(m.project.Env.File, m.project.Env.CredentialKey)
	if err != nil {
		return nil, err
	}

	result := &StartResult{RequestedPort: cfg.Port, LogPath: m.project.State.ServerLog}

	state, pid, err := m.record.Validate(m.proc.IsAlive)
	if err != nil {
		return nil, fmt.Errorf("failed to check PID record: %w", err)
	}
	switch state {
	case session.StateLive:
		return nil, fmt.Errorf("%w (PID %d, record %s)", ErrAlreadyRunning, pid, m.record.Path())
	case session.StateStale:
		result.StalePurged = true
		m.warnStale(pid)
	}

	argv, err := m.serverCommand(ctx, ModeHTTP, m.out.Step)
	if err != nil {
		return nil, err
	}

	port, err := m.ports.Resolve(cfg.Host, cfg.Port, cfg.AutoPort)
	if err != nil {
		return nil, err
	}
	if port != cfg.Port {
		m.out.Warning("Port %d is in use, using %d instead", cfg.Port, port)
	}

	sess := Session{Host: cfg.Host, Port: port, Mode: ModeHTTP}
	spec := process.Spec{
		Name: argv[0],
		Args: argv[1:],
		Env:  env.ChildEnv(m.environ(), cfg.Host, port),
	}
	m.logger.Info("starting server", "argv", argv, "host", cfg.Host, "port", port, "verbose", cfg.Verbose)

	if cfg.Verbose {
		return m.runVerbose(ctx, spec, sess, result)
	}

	spec.LogPath = m.project.State.ServerLog
	pid, err = m.proc.StartDetached(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	if err := m.record.Acquire(pid); err != nil {
		_ = m.proc.Signal(pid, syscall.SIGTERM)
		return nil, fmt.Errorf("failed to record server PID: %w", err)
	}
	sess.PID = pid
	result.Session = sess

	timeout := m.project.Timing.HealthTimeout
	m.out.Step("Waiting for %s (up to %s)", healthURL(cfg.Host, port, m.project.Server.HealthPath), timeout)
	if m.health.CheckHealth(ctx, cfg.Host, port, timeout) {
		result.Healthy = true
		return result, nil
	}

	if ctx.Err() == nil && !m.proc.IsAlive(pid) {
		if err := m.record.Release(); err != nil {
			m.logger.Warn("failed to remove PID record", "error", err)
		}
		return nil, fmt.Errorf("%w (PID %d); see %s", ErrServerExited, pid, m.project.State.ServerLog)
	}

	if ctx.Err() != nil {
		result.HealthErr = fmt.Errorf("%w: interrupted", ErrHealthCheckTimeout)
	} else {
		result.HealthErr = fmt.Errorf("%w: no answer from %s within %s", ErrHealthCheckTimeout,
			healthURL(cfg.Host, port, m.project.Server.HealthPath), timeout)
	}
	return result, nil
}

// runVerbose owns the child for the duration of the call: the pid is
// recorded once it starts and the record is removed when it exits.
func (m *DefaultLifecycleManager) runVerbose(ctx context.Context, spec process.Spec, sess Session, result *StartResult) (*StartResult, error) {
	var recorded bool

	err := m.proc.RunAttached(ctx, spec, func(pid int) {
		sess.PID = pid
		if err := m.record.Acquire(pid); err != nil {
			m.logger.Warn("failed to record server PID", "pid", pid, "error", err)
		} else {
			recorded = true
		}
		// `termmcp stop` from another terminal must be able to run.
		m.releaseLock()
		m.out.Success("Server running at http://%s:%d (PID %d). Press Ctrl-C to stop.", sess.Host, sess.Port, pid)
	})

	if recorded {
		if rerr := m.record.Release(); rerr != nil {
			m.logger.Warn("failed to remove PID record", "error", rerr)
		}
	}

	result.Session = sess
	result.Attached = true
	if err != nil {
		return result, fmt.Errorf("server exited: %w", err)
	}
	return result, nil
}

func (m *DefaultLifecycleManager) runStdio(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	env, err := LoadEnvironment(m.project.Env.File, m.project.Env.CredentialKey)
	if err != nil {
		return nil, err
	}

	// stdout belongs to the protocol; progress goes to stderr.
	progress := func(format string, args ...any) {
		fmt.Fprintf(m.out.Err, format+"\n", args...)
	}
	argv, err := m.serverCommand(ctx, ModeStdio, progress)
	if err != nil {
		return nil, err
	}

	spec := process.Spec{
		Name: argv[0],
		Args: argv[1:],
		Env:  env.ChildEnv(m.environ(), "", 0),
	}
	m.logger.Info("starting stdio server", "argv", argv)

	result := &StartResult{Session: Session{Mode: ModeStdio}, Attached: true}
	err = m.proc.RunAttached(ctx, spec, func(pid int) {
		result.Session.PID = pid
	})
	if err != nil {
		return result, fmt.Errorf("stdio server exited: %w", err)
	}
	return result, nil
}

func (m *DefaultLifecycleManager) startDocker(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	env, err := LoadEnvironment(m.project.Env.File, m.project.Env.CredentialKey)
	if err != nil {
		return nil, err
	}

	port, err := m.ports.Resolve(cfg.Host, cfg.Port, cfg.AutoPort)
	if err != nil {
		return nil, err
	}
	if port != cfg.Port {
		m.out.Warning("Port %d is in use, publishing on %d instead", cfg.Port, port)
	}

	exec, err := m.compose(ctx, env.ChildEnv(m.environ(), cfg.Host, port))
	if err != nil {
		return nil, err
	}

	m.out.Step("Starting containers with %s", exec.Command())
	if _, err := exec.Up(ctx, compose.UpOptions{}); err != nil {
		return nil, err
	}

	result := &StartResult{
		Session:       Session{Host: cfg.Host, Port: port, Mode: ModeDocker},
		RequestedPort: cfg.Port,
	}
	timeout := m.project.Timing.HealthTimeout
	if m.health.CheckHealth(ctx, cfg.Host, port, timeout) {
		result.Healthy = true
	} else {
		result.HealthErr = fmt.Errorf("%w: no answer from %s within %s", ErrHealthCheckTimeout,
			healthURL(cfg.Host, port, m.project.Server.HealthPath), timeout)
	}
	return result, nil
}

// serverCommand returns the argv of the Application Server for mode.
func (m *DefaultLifecycleManager) serverCommand(ctx context.Context, mode Mode, progress func(string, ...any)) ([]string, error) {
	if m.project.Server.Runtime == config.RuntimeNative {
		if mode == ModeStdio {
			return nil, fmt.Errorf("%w: stdio mode requires the python runtime", ErrInvalidMode)
		}
		exe, err := m.executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate termmcp binary: %w", err)
		}
		return []string{exe, "serve"}, nil
	}

	entry := m.project.Server.HTTPEntry
	if mode == ModeStdio {
		entry = m.project.Server.StdioEntry
	}
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("server entry point %s: %w", entry, err)
	}

	venv := NewVenvBootstrapper(m.proc, m.project.Python.Executable, m.project.Python.VenvDir,
		m.project.Python.Requirements, m.logger, progress)
	python, err := venv.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return []string{python, entry}, nil
}

// =============================================================================
// STOP
// =============================================================================

// StopServer terminates the recorded server.
//
// # Description
//
// Sends SIGTERM to the recorded pid's process group, waits up to the stop
// grace period, then sends SIGKILL. The PID record is removed whatever
// happens. With no record, or a record for a dead process, this is a
// warning and not an error, so stopping twice is safe.
func (m *DefaultLifecycleManager) StopServer(ctx context.Context, cfg StartupConfig) (*StopResult, error) {
	if cfg.Mode == ModeDocker {
		return m.stopDocker(ctx)
	}

	if err := m.acquireLock(); err != nil {
		return nil, err
	}
	defer m.releaseLock()

	state, pid, err := m.record.Validate(m.proc.IsAlive)
	if err != nil {
		return nil, fmt.Errorf("failed to check PID record: %w", err)
	}
	switch state {
	case session.StateNone:
		m.out.Warning("No PID record at %s; server is not running", m.record.Path())
		return &StopResult{NoRecord: true}, nil
	case session.StateStale:
		m.warnStale(pid)
		return &StopResult{PID: pid, WasStale: true}, nil
	}

	defer func() {
		if err := m.record.Release(); err != nil {
			m.logger.Warn("failed to remove PID record", "error", err)
		}
	}()

	result := &StopResult{PID: pid}
	m.logger.Info("stopping server", "pid", pid)

	if err := m.proc.Signal(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, process.ErrProcessGone) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to stop server (PID %d): %w", pid, err)
	}

	grace := m.project.Timing.StopGrace
	if m.waitForExit(ctx, pid, grace) {
		return result, nil
	}

	m.out.Warning("Server (PID %d) did not exit within %s, sending SIGKILL", pid, grace)
	if err := m.proc.Signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, process.ErrProcessGone) {
		return nil, fmt.Errorf("failed to kill server (PID %d): %w", pid, err)
	}
	result.Forced = true
	m.waitForExit(ctx, pid, grace)
	return result, nil
}

func (m *DefaultLifecycleManager) stopDocker(ctx context.Context) (*StopResult, error) {
	exec, err := m.compose(ctx, nil)
	if err != nil {
		return nil, err
	}
	if _, err := exec.Down(ctx); err != nil {
		return nil, err
	}
	return &StopResult{Docker: true}, nil
}

// waitForExit polls pid until it is gone or d has elapsed.
func (m *DefaultLifecycleManager) waitForExit(ctx context.Context, pid int, d time.Duration) bool {
	polls := int(d / stopPollInterval)
	if polls < 1 {
		polls = 1
	}
	for i := 0; i < polls; i++ {
		if !m.proc.IsAlive(pid) {
			return true
		}
		m.sleep(ctx, stopPollInterval)
		if ctx.Err() != nil {
			break
		}
	}
	return !m.proc.IsAlive(pid)
}

// =============================================================================
// RESTART, STATUS, LOGS
// =============================================================================

// Restart stops the server (best effort), waits the settle delay and starts
// it again.
func (m *DefaultLifecycleManager) Restart(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	if _, err := m.StopServer(ctx, cfg); err != nil {
		m.out.Warning("Stop failed, starting anyway: %v", err)
	}

	m.sleep(ctx, m.project.Timing.RestartSettle)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.StartServer(ctx, cfg)
}

// Status reports on the recorded server, clearing a stale record.
func (m *DefaultLifecycleManager) Status(ctx context.Context, cfg StartupConfig) (*SessionStatus, error) {
	if cfg.Mode == ModeDocker {
		exec, err := m.compose(ctx, nil)
		if err != nil {
			return nil, err
		}
		st, err := exec.Status(ctx)
		if err != nil {
			return nil, err
		}
		return &SessionStatus{Mode: ModeDocker, Running: st.Running > 0, Services: st.Services}, nil
	}

	status := &SessionStatus{Mode: cfg.Mode, RecordPath: m.record.Path()}

	state, pid, err := m.record.Validate(m.proc.IsAlive)
	if err != nil {
		return nil, fmt.Errorf("failed to check PID record: %w", err)
	}
	switch state {
	case session.StateNone:
		return status, nil
	case session.StateStale:
		status.Stale = true
		status.PID = pid
		m.warnStale(pid)
		return status, nil
	}

	status.Running = true
	status.PID = pid

	ports, err := m.proc.ListeningPorts(ctx, pid)
	switch {
	case err != nil:
		m.logger.Debug("could not resolve listening port", "pid", pid, "error", err)
	case len(ports) > 0:
		status.Port = ports[0]
	}
	return status, nil
}

// Logs prints the server log, following it when requested.
func (m *DefaultLifecycleManager) Logs(ctx context.Context, cfg StartupConfig, w io.Writer, follow bool) error {
	if cfg.Mode == ModeDocker {
		exec, err := m.compose(ctx, nil)
		if err != nil {
			return err
		}
		return exec.Logs(ctx, compose.LogsOptions{Follow: follow, Tail: 200}, w)
	}

	err := FollowFile(ctx, m.project.State.ServerLog, w, follow)
	if errors.Is(err, ErrNoLogFile) {
		m.out.Warning("No server log at %s yet", m.project.State.ServerLog)
		return nil
	}
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *DefaultLifecycleManager) warnStale(pid int) {
	if pid > 0 {
		m.out.Warning("Process %d is not running; removed stale PID record %s", pid, m.record.Path())
		return
	}
	m.out.Warning("Removed unreadable PID record %s", m.record.Path())
}

func (m *DefaultLifecycleManager) defaultCompose(ctx context.Context, env []string) (compose.ComposeExecutor, error) {
	exec, err := compose.NewDefaultComposeExecutor(ctx, compose.ComposeConfig{
		File:        m.project.Docker.ComposeFile,
		ProjectName: m.project.Docker.ProjectName,
		Env:         env,
	}, m.proc)
	if errors.Is(err, compose.ErrComposeNotFound) {
		return nil, &ToolMissingError{
			Tool: "docker compose",
			Hint: "install Docker with the compose plugin: https://docs.docker.com/compose/install/",
		}
	}
	return exec, err
}

func (m *DefaultLifecycleManager) acquireLock() error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if m.lock == nil {
		return nil
	}
	return m.lock.Acquire()
}

func (m *DefaultLifecycleManager) releaseLock() {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if m.lock == nil {
		return
	}
	if err := m.lock.Release(); err != nil {
		m.logger.Warn("failed to release CLI lock", "error", err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// =============================================================================
// MOCK
// =============================================================================

// MockLifecycleManager is a test double for LifecycleManager. Unset
// function fields succeed with empty results.
type MockLifecycleManager struct {
	StartServerFunc func(ctx context.Context, cfg StartupConfig) (*StartResult, error)
	StopServerFunc  func(ctx context.Context, cfg StartupConfig) (*StopResult, error)
	RestartFunc     func(ctx context.Context, cfg StartupConfig) (*StartResult, error)
	StatusFunc      func(ctx context.Context, cfg StartupConfig) (*SessionStatus, error)
	LogsFunc        func(ctx context.Context, cfg StartupConfig, w io.Writer, follow bool) error

	// Calls records "Method" names in order; Configs the matching configs.
	Calls   []string
	Configs []StartupConfig
	mu      sync.Mutex
}

func (m *MockLifecycleManager) record(method string, cfg StartupConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
	m.Configs = append(m.Configs, cfg)
}

func (m *MockLifecycleManager) StartServer(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	m.record("StartServer", cfg)
	if m.StartServerFunc != nil {
		return m.StartServerFunc(ctx, cfg)
	}
	return &StartResult{Session: Session{Host: cfg.Host, Port: cfg.Port, Mode: cfg.Mode}, Healthy: true}, nil
}

func (m *MockLifecycleManager) StopServer(ctx context.Context, cfg StartupConfig) (*StopResult, error) {
	m.record("StopServer", cfg)
	if m.StopServerFunc != nil {
		return m.StopServerFunc(ctx, cfg)
	}
	return &StopResult{NoRecord: true}, nil
}

func (m *MockLifecycleManager) Restart(ctx context.Context, cfg StartupConfig) (*StartResult, error) {
	m.record("Restart", cfg)
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, cfg)
	}
	return &StartResult{Session: Session{Host: cfg.Host, Port: cfg.Port, Mode: cfg.Mode}, Healthy: true}, nil
}

func (m *MockLifecycleManager) Status(ctx context.Context, cfg StartupConfig) (*SessionStatus, error) {
	m.record("Status", cfg)
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, cfg)
	}
	return &SessionStatus{Mode: cfg.Mode}, nil
}

func (m *MockLifecycleManager) Logs(ctx context.Context, cfg StartupConfig, w io.Writer, follow bool) error {
	m.record("Logs", cfg)
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, cfg, w, follow)
	}
	return nil
}

// Compile-time interface compliance check.
var (
	_ LifecycleManager = (*DefaultLifecycleManager)(nil)
	_ LifecycleManager = (*MockLifecycleManager)(nil)
)
