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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
	"github.com/termmcp/term-mcp-deepseek/pkg/logging"
)

// requirementsStamp is written inside the venv after a successful install.
const requirementsStamp = ".requirements.sha256"

// VenvBootstrapper prepares the Python virtualenv for the python runtime.
//
// # Description
//
// Ensure is idempotent and cheap on the happy path: it creates the venv
// only when its interpreter is missing and reinstalls requirements only
// when the sha256 of the requirements file differs from the stamp left by
// the previous install.
type VenvBootstrapper struct {
	proc         process.Manager
	python       string
	venvDir      string
	requirements string
	logger       *logging.Logger

	// progress receives one line per slow step (venv creation, pip).
	progress func(format string, args ...any)
}

// NewVenvBootstrapper creates a bootstrapper. progress may be nil.
func NewVenvBootstrapper(proc process.Manager, python, venvDir, requirements string, logger *logging.Logger, progress func(string, ...any)) *VenvBootstrapper {
	if logger == nil {
		logger = logging.Nop()
	}
	if progress == nil {
		progress = func(string, ...any) {}
	}
	return &VenvBootstrapper{
		proc:         proc,
		python:       python,
		venvDir:      venvDir,
		requirements: requirements,
		logger:       logger,
		progress:     progress,
	}
}

// Python returns the venv interpreter path.
func (b *VenvBootstrapper) Python() string {
	return filepath.Join(b.venvDir, "bin", "python")
}

// Ensure creates the venv and installs requirements as needed.
//
// # Outputs
//
//   - string: Path of the venv interpreter.
//   - error: *ToolMissingError when python is not installed, *CommandError
//     when venv creation or pip fails.
func (b *VenvBootstrapper) Ensure(ctx context.Context) (string, error) {
	if _, err := b.proc.LookPath(b.python); err != nil {
		return "", &ToolMissingError{
			Tool: b.python,
			Hint: "install Python 3 (https://www.python.org/downloads/) or set python.executable in termmcp.yaml",
		}
	}

	venvPython := b.Python()
	if _, err := os.Stat(venvPython); err != nil {
		b.progress("Creating virtual environment in %s", b.venvDir)
		if err := b.run(ctx, b.python, "-m", "venv", b.venvDir); err != nil {
			return "", err
		}
		// A fresh venv has nothing installed, whatever an old stamp says.
		_ = os.Remove(b.stampPath())
	}

	if b.requirements == "" {
		return venvPython, nil
	}
	sum, err := fileSHA256(b.requirements)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.logger.Debug("no requirements file, skipping install", "path", b.requirements)
			return venvPython, nil
		}
		return "", fmt.Errorf("failed to hash %s: %w", b.requirements, err)
	}

	if stamp, err := os.ReadFile(b.stampPath()); err == nil && strings.TrimSpace(string(stamp)) == sum {
		b.logger.Debug("requirements unchanged", "sha256", sum)
		return venvPython, nil
	}

	b.progress("Installing dependencies from %s", b.requirements)
	if err := b.run(ctx, venvPython, "-m", "pip", "install", "--disable-pip-version-check", "-q", "-r", b.requirements); err != nil {
		return "", err
	}
	if err := os.WriteFile(b.stampPath(), []byte(sum+"\n"), 0o644); err != nil {
		b.logger.Warn("failed to write requirements stamp", "error", err)
	}
	return venvPython, nil
}

func (b *VenvBootstrapper) stampPath() string {
	return filepath.Join(b.venvDir, requirementsStamp)
}

func (b *VenvBootstrapper) run(ctx context.Context, name string, args ...string) error {
	cmdline := name + " " + strings.Join(args, " ")
	b.logger.Debug("running", "command", cmdline)

	_, stderr, code, err := b.proc.RunInDir(ctx, "", nil, name, args...)
	if err != nil {
		return NewCommandError(cmdline, code, stderr, err)
	}
	if code != 0 {
		return NewCommandError(cmdline, code, stderr, nil)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
