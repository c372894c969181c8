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
	"math/rand"
	"net"
	"strconv"
	"sync"
	"testing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// mockPortProber reports the ports in busy as in use and records probes.
type mockPortProber struct {
	busy   map[int]bool
	probes []int
	mu     sync.Mutex
}

func newMockPortProber(busy ...int) *mockPortProber {
	m := &mockPortProber{busy: make(map[int]bool)}
	for _, p := range busy {
		m.busy[p] = true
	}
	return m
}

func (m *mockPortProber) InUse(host string, port int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, port)
	return m.busy[port]
}

func (m *mockPortProber) Probes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.probes...)
}

// =============================================================================
// UNIT TESTS
// =============================================================================

func TestPortResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		busy      []int
		requested int
		autoPort  bool
		want      int
		wantErr   error
	}{
		{"free port is kept", nil, 8000, true, 8000, nil},
		{"free port without auto-port", nil, 8000, false, 8000, nil},
		{"busy port moves up", []int{8000}, 8000, true, 8001, nil},
		{"skips several busy ports", []int{8000, 8001, 8002}, 8000, true, 8003, nil},
		{"busy port without auto-port", []int{8000}, 8000, false, 0, ErrPortConflict},
		{"top of range", []int{65535}, 65535, true, 0, ErrNoAvailablePort},
		{"near top of range", []int{65534}, 65534, true, 65535, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPortResolver(newMockPortProber(tt.busy...), 100, nil)

			got, err := r.Resolve("127.0.0.1", tt.requested, tt.autoPort)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPortResolver_ConflictErrorCarriesPort(t *testing.T) {
	r := NewPortResolver(newMockPortProber(8000), 100, nil)

	_, err := r.Resolve("127.0.0.1", 8000, false)

	var conflict *PortConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *PortConflictError, got %T", err)
	}
	if conflict.Port != 8000 || conflict.Host != "127.0.0.1" {
		t.Errorf("conflict = %+v", conflict)
	}
}

func TestPortResolver_BoundedProbing(t *testing.T) {
	busy := make([]int, 0, 200)
	for p := 8000; p < 8200; p++ {
		busy = append(busy, p)
	}
	prober := newMockPortProber(busy...)
	r := NewPortResolver(prober, 100, nil)

	_, err := r.Resolve("127.0.0.1", 8000, true)

	var none *NoAvailablePortError
	if !errors.As(err, &none) {
		t.Fatalf("expected *NoAvailablePortError, got %v", err)
	}
	if none.Attempts != 100 || none.Start != 8000 {
		t.Errorf("NoAvailablePortError = %+v, want 100 attempts from 8000", none)
	}
	// The requested port plus 100 successors.
	if n := len(prober.Probes()); n != 101 {
		t.Errorf("probed %d ports, want 101", n)
	}
}

// TestPortResolver_Properties checks, over random busy sets, that the
// result is either the requested port when free or the lowest free port
// above it, and never a busy one.
func TestPortResolver_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		requested := 1024 + rng.Intn(60000)
		var busy []int
		for p := requested; p < requested+20; p++ {
			if rng.Intn(3) > 0 {
				busy = append(busy, p)
			}
		}
		prober := newMockPortProber(busy...)
		r := NewPortResolver(prober, 100, nil)

		got, err := r.Resolve("127.0.0.1", requested, true)
		if err != nil {
			t.Fatalf("requested %d busy %v: %v", requested, busy, err)
		}
		if prober.busy[got] {
			t.Fatalf("returned busy port %d", got)
		}
		if !prober.busy[requested] && got != requested {
			t.Fatalf("free port %d not kept, got %d", requested, got)
		}
		for p := requested; p < got; p++ {
			if !prober.busy[p] {
				t.Fatalf("port %d was free but %d returned", p, got)
			}
		}

		_, err = r.Resolve("127.0.0.1", requested, false)
		if prober.busy[requested] && !errors.Is(err, ErrPortConflict) {
			t.Fatalf("busy %d without auto-port: err = %v", requested, err)
		}
	}
}

func TestDefaultPortProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	prober := DefaultPortProber{}
	if !prober.InUse("127.0.0.1", port) {
		t.Errorf("port %d held by a listener reported free", port)
	}

	ln.Close()
	if prober.InUse("127.0.0.1", port) {
		t.Errorf("port %d reported busy after close", port)
	}
}

func TestPortResolver_RealSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	if port >= MaxPort {
		t.Skip("ephemeral port at top of range")
	}

	r := NewPortResolver(nil, 100, nil)
	got, err := r.Resolve("127.0.0.1", port, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got <= port {
		t.Errorf("Resolve(%d) = %d, want a higher port", port, got)
	}

	probe, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(got)))
	if err != nil {
		t.Fatalf("resolved port %d is not bindable: %v", got, err)
	}
	probe.Close()
}
