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
	"fmt"
	"strings"
)

// Mode selects how the Application Server is run.
type Mode string

const (
	// ModeHTTP spawns the HTTP server, records its pid and polls /health.
	ModeHTTP Mode = "http"

	// ModeStdio runs the stdio server in the foreground on the terminal.
	ModeStdio Mode = "stdio"

	// ModeDocker delegates to docker compose.
	ModeDocker Mode = "docker"
)

// Default flag values.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000
)

// ParseMode validates a --mode value. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHTTP, ModeStdio, ModeDocker:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// StartupConfig is derived once from the command line and never mutated.
type StartupConfig struct {
	Mode     Mode
	Host     string
	Port     int
	AutoPort bool
	Verbose  bool
}

// DefaultStartupConfig returns the configuration of a bare `termmcp`.
func DefaultStartupConfig() StartupConfig {
	return StartupConfig{
		Mode:     ModeHTTP,
		Host:     DefaultHost,
		Port:     DefaultPort,
		AutoPort: true,
	}
}

// NewStartupConfig builds and validates a StartupConfig from raw flag values.
func NewStartupConfig(mode, host string, port int, noAutoPort, verbose bool) (StartupConfig, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return StartupConfig{}, err
	}
	cfg := StartupConfig{
		Mode:     m,
		Host:     strings.TrimSpace(host),
		Port:     port,
		AutoPort: !noAutoPort,
		Verbose:  verbose,
	}
	if err := cfg.Validate(); err != nil {
		return StartupConfig{}, err
	}
	return cfg, nil
}

// Validate checks the port range and a non-empty host.
func (c StartupConfig) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d (want 1-65535)", ErrInvalidPort, c.Port)
	}
	if c.Host == "" {
		return fmt.Errorf("--host must not be empty")
	}
	return nil
}
