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
	"net"
	"strconv"

	"github.com/termmcp/term-mcp-deepseek/pkg/logging"
)

// MaxPort is the highest TCP port.
const MaxPort = 65535

// DefaultMaxPortProbes bounds auto-port probing.
const DefaultMaxPortProbes = 100

// PortProber classifies a port as in use or free.
//
// # Description
//
// The check is a point-in-time observation: another process may take the
// port between the probe and the server's own bind. The server reports that
// race itself when it fails to listen.
type PortProber interface {
	InUse(host string, port int) bool
}

// DefaultPortProber probes by binding host:port and releasing it at once.
// A failed bind means the port is in use (or not bindable, which is the
// same thing to the server about to start).
type DefaultPortProber struct{}

// InUse reports whether host:port cannot be bound right now.
func (DefaultPortProber) InUse(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}

// PortResolver implements the port conflict policy.
type PortResolver struct {
	prober      PortProber
	maxAttempts int
	logger      *logging.Logger
}

// NewPortResolver creates a resolver that probes at most maxAttempts
// successors of a busy port.
func NewPortResolver(prober PortProber, maxAttempts int, logger *logging.Logger) *PortResolver {
	if prober == nil {
		prober = DefaultPortProber{}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPortProbes
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PortResolver{prober: prober, maxAttempts: maxAttempts, logger: logger}
}

// Resolve returns the port the server should bind.
//
// # Description
//
// A free requested port is returned unchanged. A busy one is a
// *PortConflictError unless autoPort is set, in which case requested+1,
// requested+2, ... are probed in order and the first free port wins. The
// probe stops after maxAttempts candidates or at 65535, whichever comes
// first, with *NoAvailablePortError.
//
// # Inputs
//
//   - host: Interface the server will bind.
//   - requested: Port from --port, already validated to [1, 65535].
//   - autoPort: Whether to search upward on conflict.
//
// # Outputs
//
//   - int: Port to bind.
//   - error: *PortConflictError or *NoAvailablePortError.
func (r *PortResolver) Resolve(host string, requested int, autoPort bool) (int, error) {
	if !r.prober.InUse(host, requested) {
		return requested, nil
	}
	if !autoPort {
		return 0, &PortConflictError{Host: host, Port: requested}
	}

	r.logger.Info("requested port busy, probing upward", "port", requested, "max_attempts", r.maxAttempts)

	attempts := 0
	for candidate := requested + 1; candidate <= MaxPort && attempts < r.maxAttempts; candidate++ {
		attempts++
		if !r.prober.InUse(host, candidate) {
			r.logger.Debug("free port found", "port", candidate, "attempts", attempts)
			return candidate, nil
		}
	}
	return 0, &NoAvailablePortError{Start: requested, Attempts: attempts}
}
