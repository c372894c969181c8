// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestRecord(t *testing.T) *Record {
	t.Helper()
	return NewRecord(filepath.Join(t.TempDir(), ".server.pid"))
}

func TestRecord_AcquireReadRelease(t *testing.T) {
	r := newTestRecord(t)

	if err := r.Acquire(4242); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	if string(data) != "4242\n" {
		t.Errorf("record content = %q, want %q", string(data), "4242\n")
	}

	pid, err := r.Read()
	if err != nil || pid != 4242 {
		t.Errorf("Read() = %d, %v; want 4242, nil", pid, err)
	}

	if err := r.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if r.Exists() {
		t.Error("record should be gone after Release")
	}
}

func TestRecord_AcquireRefusesExisting(t *testing.T) {
	r := newTestRecord(t)
	if err := r.Acquire(1); err != nil {
		t.Fatal(err)
	}

	if err := r.Acquire(2); !errors.Is(err, ErrRecordExists) {
		t.Errorf("Acquire() over existing record = %v, want ErrRecordExists", err)
	}
	if pid, _ := r.Read(); pid != 1 {
		t.Errorf("existing record was overwritten with %d", pid)
	}
}

func TestRecord_AcquireInvalidPID(t *testing.T) {
	r := newTestRecord(t)
	if err := r.Acquire(0); err == nil {
		t.Error("Acquire(0) should fail")
	}
	if r.Exists() {
		t.Error("invalid pid must not create a record")
	}
}

func TestRecord_ReleaseIsIdempotent(t *testing.T) {
	r := newTestRecord(t)
	if err := r.Release(); err != nil {
		t.Errorf("Release() without record = %v", err)
	}
	if err := r.Release(); err != nil {
		t.Errorf("second Release() = %v", err)
	}
}

func TestRecord_ReadMissingAndCorrupt(t *testing.T) {
	r := newTestRecord(t)

	if _, err := r.Read(); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Read() missing = %v, want ErrNoRecord", err)
	}

	for _, content := range []string{"", "abc\n", "-5\n", "0"} {
		if err := os.WriteFile(r.Path(), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Read(); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("Read(%q) = %v, want ErrCorruptRecord", content, err)
		}
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name       string
		content    *string
		alive      bool
		wantState  State
		wantPID    int
		wantExists bool
	}{
		{name: "no record", content: nil, wantState: StateNone},
		{name: "live", content: strPtr("4242\n"), alive: true, wantState: StateLive, wantPID: 4242, wantExists: true},
		{name: "dead process", content: strPtr("4242\n"), alive: false, wantState: StateStale, wantPID: 4242},
		{name: "corrupt", content: strPtr("garbage"), alive: true, wantState: StateStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecord(t)
			if tt.content != nil {
				if err := os.WriteFile(r.Path(), []byte(*tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			state, pid, err := r.Validate(func(int) bool { return tt.alive })
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if state != tt.wantState {
				t.Errorf("state = %v, want %v", state, tt.wantState)
			}
			if pid != tt.wantPID {
				t.Errorf("pid = %d, want %d", pid, tt.wantPID)
			}
			if r.Exists() != tt.wantExists {
				t.Errorf("record exists = %v, want %v", r.Exists(), tt.wantExists)
			}
		})
	}
}

func TestRecord_ValidateNeverCreates(t *testing.T) {
	r := newTestRecord(t)
	if _, _, err := r.Validate(func(int) bool { return true }); err != nil {
		t.Fatal(err)
	}
	if r.Exists() {
		t.Error("Validate must not create a record")
	}
}

func TestState_String(t *testing.T) {
	if StateLive.String() != "live" || StateStale.String() != "stale" || StateNone.String() != "none" {
		t.Error("unexpected State strings")
	}
	if State(9).String() != "unknown" {
		t.Error("out-of-range State should be unknown")
	}
}

func strPtr(s string) *string { return &s }
