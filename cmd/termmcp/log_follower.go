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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrNoLogFile is returned when the server log does not exist and the
// caller did not ask to follow it.
var ErrNoLogFile = errors.New("log file does not exist")

// FollowFile copies the file at path to w and, if follow is set, keeps
// copying appended data until ctx is cancelled (like tail -f).
//
// # Description
//
// The parent directory is watched rather than the file, so the follower
// survives the file being created late, truncated, removed or replaced by
// log rotation. A truncated or recreated file is re-read from the start.
//
// # Inputs
//
//   - ctx: Cancellation; returning because of ctx is not an error.
//   - path: Log file to read.
//   - w: Destination.
//   - follow: Keep watching after the current end of file.
//
// # Outputs
//
//   - error: ErrNoLogFile when the file is missing and follow is false.
func FollowFile(ctx context.Context, path string, w io.Writer, follow bool) error {
	t := &tailer{path: filepath.Clean(path), w: w}
	defer t.close()

	if err := t.open(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if !follow {
			return fmt.Errorf("%w: %s", ErrNoLogFile, path)
		}
	}
	if err := t.drain(); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// Anything written between the first drain and Add.
	if err := t.drain(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				if !t.current() {
					t.close()
				}
				if err := t.drain(); err != nil {
					return err
				}
			case ev.Has(fsnotify.Write):
				if err := t.drain(); err != nil {
					return err
				}
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				t.close()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", t.path, err)
		}
	}
}

// tailer tracks the open file and read offset for FollowFile.
type tailer struct {
	path   string
	w      io.Writer
	f      *os.File
	offset int64
}

func (t *tailer) open() error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	t.f = f
	t.offset = 0
	return nil
}

func (t *tailer) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}

// current reports whether the open handle is still the file at path.
func (t *tailer) current() bool {
	if t.f == nil {
		return false
	}
	open, err := t.f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	return os.SameFile(open, onDisk)
}

// drain copies everything past the current offset, reopening the file if
// it appeared since the last attempt and rewinding if it was truncated.
func (t *tailer) drain() error {
	if t.f == nil {
		if err := t.open(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
	}

	if info, err := t.f.Stat(); err == nil && info.Size() < t.offset {
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		t.offset = 0
	}

	n, err := io.Copy(t.w, t.f)
	t.offset += n
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	return nil
}
