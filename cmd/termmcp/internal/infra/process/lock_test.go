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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewProcessLock_Defaults(t *testing.T) {
	lock := NewProcessLock(ProcessLockConfig{})
	if lock.LockPath() != filepath.Join(".", ".termmcp.lock") {
		t.Errorf("LockPath() = %q", lock.LockPath())
	}
}

func TestProcessLock_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	lock := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "test"})

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !lock.IsHeld() {
		t.Error("IsHeld() should be true after Acquire")
	}
	if got := lock.HolderPID(); got != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", got, os.Getpid())
	}

	// Re-acquiring a held lock is a no-op.
	if err := lock.Acquire(); err != nil {
		t.Errorf("second Acquire() error = %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if lock.IsHeld() {
		t.Error("IsHeld() should be false after Release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestProcessLock_Contention(t *testing.T) {
	dir := t.TempDir()
	first := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "test"})
	second := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "test"})

	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer first.Release()

	err := second.Acquire()
	var held *ErrLockHeld
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire() = %v, want *ErrLockHeld", err)
	}
	if held.HolderPID != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", held.HolderPID, os.Getpid())
	}
	if !strings.Contains(err.Error(), "another termmcp instance") {
		t.Errorf("error message = %q", err.Error())
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	second.Release()
}

func TestErrLockHeld_UnknownHolder(t *testing.T) {
	err := &ErrLockHeld{LockPath: "/tmp/x.lock"}
	if !strings.Contains(err.Error(), "lsof /tmp/x.lock") {
		t.Errorf("Error() = %q", err.Error())
	}
}
