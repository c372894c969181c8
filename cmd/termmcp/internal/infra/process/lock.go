// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcessLocker defines the interface for CLI instance locking.
//
// # Description
//
// ProcessLocker prevents two termmcp invocations from mutating the same
// project at once, e.g. `termmcp start` still polling health in one
// terminal while `termmcp stop` removes the PID record in another.
//
// # Thread Safety
//
// Implementations must be safe for use from a single goroutine. The lock
// itself provides inter-process synchronization, not intra-process.
type ProcessLocker interface {
	// Acquire attempts to get an exclusive lock without blocking.
	// Returns *ErrLockHeld if another process holds it.
	Acquire() error

	// Release releases the lock if held.
	// Safe to call multiple times or if lock was never acquired.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID of the process holding the lock.
	// Returns 0 if no process holds the lock or if unable to determine.
	HolderPID() int
}

// ProcessLockConfig configures process lock behavior.
//
// # Example
//
//	config := ProcessLockConfig{
//	    LockDir:  "/srv/term-mcp-deepseek",
//	    LockName: ".termmcp",
//	}
type ProcessLockConfig struct {
	// LockDir is the directory for the lock file.
	// Default: current working directory, so the lock is per project.
	LockDir string

	// LockName is the base name of the lock file.
	// Default: ".termmcp"
	LockName string
}

// DefaultProcessLockConfig locks the current project directory.
func DefaultProcessLockConfig() ProcessLockConfig {
	return ProcessLockConfig{
		LockDir:  ".",
		LockName: ".termmcp",
	}
}

// ProcessLock implements ProcessLocker using flock(2).
//
// # Description
//
// The lock file {LockDir}/{LockName}.lock is held with a non-blocking
// exclusive flock for the lifetime of the mutating command. The holder's
// PID is written into the lock file itself so a second invocation can say
// who it is waiting on.
//
// # Thread Safety
//
// ProcessLock is NOT safe for concurrent use from multiple goroutines.
//
// # Limitations
//
//   - Advisory lock only - other processes can ignore it if they don't check
//   - NFS and some network filesystems don't support flock properly
//   - The OS drops the flock if termmcp crashes, so a crash never wedges it
type ProcessLock struct {
	config   ProcessLockConfig
	lockPath string
	lockFile *os.File
	held     bool
}

// NewProcessLock creates a new process lock. Does not acquire it.
func NewProcessLock(config ProcessLockConfig) *ProcessLock {
	if config.LockDir == "" {
		config.LockDir = "."
	}
	if config.LockName == "" {
		config.LockName = ".termmcp"
	}

	return &ProcessLock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
	}
}

// Acquire attempts to get an exclusive lock.
//
// # Description
//
// Uses a non-blocking flock. If another process holds the lock, returns
// immediately with *ErrLockHeld carrying the holder's PID (if readable).
//
// # Outputs
//
//   - error: nil if lock acquired, *ErrLockHeld if contended, or a
//     wrapped I/O error
func (p *ProcessLock) Acquire() error {
	if p.held {
		return nil
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true

	// Best effort; the flock is what matters.
	_ = p.writePID()

	return nil
}

// Release releases the lock if held.
func (p *ProcessLock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	_ = p.lockFile.Truncate(0)
	err := unix.Flock(int(p.lockFile.Fd()), unix.LOCK_UN)

	// Close file (also releases lock if flock failed)
	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	// The lock file is left in place for faster subsequent acquires.
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld returns true if this instance currently holds the lock.
func (p *ProcessLock) IsHeld() bool {
	return p.held
}

// HolderPID returns the PID recorded in the lock file, or 0.
func (p *ProcessLock) HolderPID() int {
	return p.readHolderPID()
}

// LockPath returns the path to the lock file.
func (p *ProcessLock) LockPath() string {
	return p.lockPath
}

func (p *ProcessLock) writePID() error {
	if err := p.lockFile.Truncate(0); err != nil {
		return err
	}
	if _, err := p.lockFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.lockFile, "%d\n", os.Getpid())
	return err
}

func (p *ProcessLock) readHolderPID() int {
	data, err := os.ReadFile(p.lockPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ErrLockHeld is returned when the lock is held by another process.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another termmcp instance is running (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another termmcp instance is running (check: lsof %s)", e.LockPath)
}

// Compile-time interface satisfaction check
var _ ProcessLocker = (*ProcessLock)(nil)
