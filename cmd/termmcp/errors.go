// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/config"
	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

var (
	// ErrToolMissing: a required executable is not in PATH.
	ErrToolMissing = errors.New("required tool not found")

	// ErrMissingConfiguration: the env file or its credential is absent.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrPortConflict: the requested port is busy and auto-port is off.
	ErrPortConflict = errors.New("port conflict")

	// ErrNoAvailablePort: auto-port probing ran out of candidates.
	ErrNoAvailablePort = errors.New("no available port")

	// ErrInvalidMode: --mode is not http, stdio or docker.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidPort: --port is outside [1, 65535].
	ErrInvalidPort = errors.New("invalid port")

	// ErrHealthCheckTimeout: the server never answered /health. Advisory.
	ErrHealthCheckTimeout = errors.New("health check timeout")

	// ErrAlreadyRunning: a live PID record exists.
	ErrAlreadyRunning = errors.New("server already running")

	// ErrServerExited: the detached server died before becoming healthy.
	ErrServerExited = errors.New("server exited during startup")
)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// ToolMissingError names the executable that could not be found.
type ToolMissingError struct {
	Tool string
	Hint string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("%s is not installed or not in PATH", e.Tool)
}

func (e *ToolMissingError) Unwrap() error { return ErrToolMissing }

// MissingConfigurationError describes what is wrong with the env file.
type MissingConfigurationError struct {
	Path   string
	Key    string
	Reason string
}

func (e *MissingConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Path, e.Key, e.Reason)
}

func (e *MissingConfigurationError) Unwrap() error { return ErrMissingConfiguration }

// PortConflictError reports a busy port with auto-port disabled.
type PortConflictError struct {
	Host string
	Port int
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d on %s is already in use", e.Port, e.Host)
}

func (e *PortConflictError) Unwrap() error { return ErrPortConflict }

// NoAvailablePortError reports an exhausted probe range.
type NoAvailablePortError struct {
	Start    int
	Attempts int
}

func (e *NoAvailablePortError) Error() string {
	return fmt.Sprintf("no free port found after %d attempts above %d", e.Attempts, e.Start)
}

func (e *NoAvailablePortError) Unwrap() error { return ErrNoAvailablePort }

// =============================================================================
// REMEDIATION HINTS
// =============================================================================

// hintFor returns a one-line remediation for errors the operator can fix,
// or "" when there is nothing useful to add.
func hintFor(err error) string {
	var tool *ToolMissingError
	if errors.As(err, &tool) && tool.Hint != "" {
		return tool.Hint
	}

	var missing *MissingConfigurationError
	if errors.As(err, &missing) {
		key := missing.Key
		if key == "" {
			key = "DEEPSEEK_API_KEY"
		}
		return fmt.Sprintf("create %s containing %s=<your key> (see https://platform.deepseek.com/api_keys)", missing.Path, key)
	}

	var conflict *PortConflictError
	if errors.As(err, &conflict) {
		return fmt.Sprintf("choose another port with --port, or drop --no-auto-port to pick the next free one (lsof -i :%d shows the owner)", conflict.Port)
	}

	var held *process.ErrLockHeld
	if errors.As(err, &held) {
		return "wait for the other termmcp command to finish"
	}

	switch {
	case errors.Is(err, ErrNoAvailablePort):
		return "free a port or pass a different --port"
	case errors.Is(err, ErrInvalidMode):
		return "valid modes are: http, stdio, docker"
	case errors.Is(err, ErrAlreadyRunning):
		return "run `termmcp stop` or `termmcp restart`"
	case errors.Is(err, ErrServerExited):
		return "see the server log with `termmcp logs`"
	case errors.Is(err, config.ErrInvalidConfig):
		return "fix termmcp.yaml or remove it to use the defaults"
	}

	// The error line already shows the last line of stderr.
	if stderr := ExtractStderr(err); strings.Contains(stderr, "\n") {
		return "command output:\n" + tailLines(stderr, 5)
	}
	return ""
}
