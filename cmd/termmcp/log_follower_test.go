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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitFor polls cond for up to 5 seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func TestFollowFile_NoFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	appendFile(t, path, "line 1\nline 2\n")

	var out bytes.Buffer
	if err := FollowFile(context.Background(), path, &out, false); err != nil {
		t.Fatalf("FollowFile: %v", err)
	}
	if out.String() != "line 1\nline 2\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestFollowFile_MissingWithoutFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	err := FollowFile(context.Background(), path, &bytes.Buffer{}, false)
	if !errors.Is(err, ErrNoLogFile) {
		t.Fatalf("error = %v, want ErrNoLogFile", err)
	}
}

func TestFollowFile_FollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	appendFile(t, path, "boot\n")

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- FollowFile(ctx, path, out, true) }()

	waitFor(t, "initial content", func() bool { return out.String() == "boot\n" })

	appendFile(t, path, "request 1\n")
	waitFor(t, "appended line", func() bool { return strings.Contains(out.String(), "request 1\n") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("FollowFile returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FollowFile did not return after cancel")
	}
}

func TestFollowFile_FileCreatedLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- FollowFile(ctx, path, out, true) }()

	// The follower creates the directory before watching it.
	waitFor(t, "log directory", func() bool {
		_, err := os.Stat(filepath.Dir(path))
		return err == nil
	})
	time.Sleep(50 * time.Millisecond)

	appendFile(t, path, "hello\n")
	waitFor(t, "content of the new file", func() bool { return out.String() == "hello\n" })

	cancel()
	<-done
}

func TestFollowFile_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	appendFile(t, path, "old content that is long\n")

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- FollowFile(ctx, path, out, true) }()

	waitFor(t, "initial content", func() bool { return strings.Contains(out.String(), "old content") })

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "content after truncation", func() bool { return strings.HasSuffix(out.String(), "new\n") })

	cancel()
	<-done
}
