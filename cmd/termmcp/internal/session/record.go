// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the PID sentinel file that marks a running
// Application Server.
//
// The file holds a single decimal pid followed by a newline, compatible with
// `kill $(cat .server.pid)`. It is never read or written outside this
// package: callers Acquire it after a spawn, Validate it before acting on
// it, and Release it once the process is confirmed stopped.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrNoRecord is returned by Read when no sentinel file exists.
	ErrNoRecord = errors.New("no PID record")

	// ErrCorruptRecord is returned by Read when the file is not a pid.
	ErrCorruptRecord = errors.New("corrupt PID record")

	// ErrRecordExists is returned by Acquire when a record is already present.
	ErrRecordExists = errors.New("PID record already exists")
)

// State classifies a record after validation.
type State int

const (
	// StateNone means no record exists.
	StateNone State = iota

	// StateLive means the recorded pid is running.
	StateLive

	// StateStale means a record existed but its process was gone (or the
	// file was unreadable). Validate has already removed it.
	StateStale
)

// String returns "none", "live" or "stale".
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateLive:
		return "live"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Record is the PID sentinel file at a fixed path.
//
// # Thread Safety
//
// Not synchronized. Cross-process exclusion comes from the CLI instance
// lock held by mutating commands.
type Record struct {
	path string
}

// NewRecord returns the record stored at path.
func NewRecord(path string) *Record {
	return &Record{path: path}
}

// Path returns the sentinel file path.
func (r *Record) Path() string {
	return r.path
}

// Exists reports whether the sentinel file is present.
func (r *Record) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// Read returns the recorded pid.
//
// # Outputs
//
//   - int: Recorded pid (> 0) on success.
//   - error: ErrNoRecord if the file is missing, ErrCorruptRecord if it
//     does not hold a positive integer, or a wrapped I/O error.
func (r *Record) Read() (int, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNoRecord
		}
		return 0, fmt.Errorf("read %s: %w", r.path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s contains %q", ErrCorruptRecord, r.path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Acquire records pid for a newly spawned server.
//
// # Description
//
// Fails with ErrRecordExists if a record is present; callers Validate
// first so that a stale record has already been purged. The write goes
// through a temporary file and a rename so a concurrent reader never sees
// a partial pid.
func (r *Record) Acquire(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if r.Exists() {
		return fmt.Errorf("%w: %s", ErrRecordExists, r.path)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write PID record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write PID record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write PID record: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write PID record: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write PID record: %w", err)
	}
	return nil
}

// Release removes the record. Removing a missing record is not an error.
func (r *Record) Release() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", r.path, err)
	}
	return nil
}

// Validate checks the record against the process table.
//
// # Description
//
// A record whose pid is not alive, or whose content is not a pid, is
// removed before returning StateStale. The returned pid is the recorded
// one (0 for StateNone and for a corrupt record).
//
// # Inputs
//
//   - alive: Liveness probe, normally process.Manager.IsAlive.
//
// # Outputs
//
//   - State: StateNone, StateLive or StateStale.
//   - int: Recorded pid.
//   - error: Only for I/O failures reading or removing the file.
func (r *Record) Validate(alive func(pid int) bool) (State, int, error) {
	pid, err := r.Read()
	switch {
	case errors.Is(err, ErrNoRecord):
		return StateNone, 0, nil
	case errors.Is(err, ErrCorruptRecord):
		if rmErr := r.Release(); rmErr != nil {
			return StateStale, 0, rmErr
		}
		return StateStale, 0, nil
	case err != nil:
		return StateNone, 0, err
	}

	if alive(pid) {
		return StateLive, pid, nil
	}
	if err := r.Release(); err != nil {
		return StateStale, pid, err
	}
	return StateStale, pid, nil
}
