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
	"testing"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/config"
	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&ToolMissingError{Tool: "python3"}, ErrToolMissing},
		{&MissingConfigurationError{Path: ".env", Key: "DEEPSEEK_API_KEY", Reason: "is empty"}, ErrMissingConfiguration},
		{&PortConflictError{Host: "127.0.0.1", Port: 8000}, ErrPortConflict},
		{&NoAvailablePortError{Start: 8000, Attempts: 100}, ErrNoAvailablePort},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("start: %w", tt.err)
		if !errors.Is(wrapped, tt.want) {
			t.Errorf("%T does not unwrap to %v", tt.err, tt.want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ToolMissingError{Tool: "python3"}, "python3 is not installed or not in PATH"},
		{&MissingConfigurationError{Path: ".env", Reason: "environment file not found"}, ".env: environment file not found"},
		{&MissingConfigurationError{Path: ".env", Key: "DEEPSEEK_API_KEY", Reason: "is empty"}, ".env: DEEPSEEK_API_KEY is empty"},
		{&PortConflictError{Host: "127.0.0.1", Port: 8000}, "port 8000 on 127.0.0.1 is already in use"},
		{&NoAvailablePortError{Start: 8000, Attempts: 100}, "no free port found after 100 attempts above 8000"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestHintFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"tool hint", &ToolMissingError{Tool: "python3", Hint: "install python"}, "install python"},
		{"missing env", &MissingConfigurationError{Path: ".env", Key: "DEEPSEEK_API_KEY"}, "DEEPSEEK_API_KEY=<your key>"},
		{"missing env file", &MissingConfigurationError{Path: ".env"}, "create .env"},
		{"port conflict", &PortConflictError{Port: 8000}, "lsof -i :8000"},
		{"no port", fmt.Errorf("x: %w", &NoAvailablePortError{}), "free a port"},
		{"bad mode", fmt.Errorf("%w: \"ftp\"", ErrInvalidMode), "http, stdio, docker"},
		{"running", fmt.Errorf("%w (PID 1)", ErrAlreadyRunning), "termmcp stop"},
		{"exited", ErrServerExited, "termmcp logs"},
		{"lock", &process.ErrLockHeld{HolderPID: 7, LockPath: ".termmcp.lock"}, "other termmcp command"},
		{"config", fmt.Errorf("termmcp.yaml: %w", config.ErrInvalidConfig), "termmcp.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hintFor(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("hintFor() = %q, want it to contain %q", got, tt.want)
			}
		})
	}

	if got := hintFor(errors.New("boom")); got != "" {
		t.Errorf("hintFor(plain) = %q, want empty", got)
	}
}

func TestHintFor_CommandOutput(t *testing.T) {
	stderr := "Collecting flask\nERROR: Could not find a version\nERROR: No matching distribution found for flask"
	err := fmt.Errorf("bootstrap: %w", NewCommandError("venv/bin/python -m pip install", 1, stderr, nil))

	hint := hintFor(err)
	if !strings.HasPrefix(hint, "command output:\n") || !strings.Contains(hint, "Collecting flask") {
		t.Errorf("hint = %q", hint)
	}

	single := NewCommandError("docker compose up", 1, "no such service", nil)
	if got := hintFor(single); got != "" {
		t.Errorf("single-line stderr is already in the error line, hint = %q", got)
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := NewCommandError("python3 -m venv venv", 1, "  line one\nensurepip is not available\n", inner)

	if got := err.Error(); got != "python3 -m venv venv (exit 1): ensurepip is not available" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, inner) {
		t.Error("CommandError must unwrap to the wrapped error")
	}
	if !err.HasStderr() {
		t.Error("HasStderr() = false")
	}
	if got := ExtractStderr(fmt.Errorf("ctx: %w", err)); got != "line one\nensurepip is not available" {
		t.Errorf("ExtractStderr() = %q", got)
	}

	noStderr := NewCommandError("pip", 2, "", inner)
	if got := noStderr.Error(); got != "pip (exit 2): exit status 1" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewCommandError("pip", 3, "", nil).Error(); got != "pip (exit 3)" {
		t.Errorf("Error() = %q", got)
	}
	if ExtractStderr(errors.New("x")) != "" {
		t.Error("ExtractStderr of a plain error must be empty")
	}
}

func TestTailLines(t *testing.T) {
	s := "1\n2\n3\n4\n5\n6\n7"
	if got := tailLines(s, 3); got != "5\n6\n7" {
		t.Errorf("tailLines = %q", got)
	}
	if got := tailLines("only", 5); got != "only" {
		t.Errorf("tailLines = %q", got)
	}
}
