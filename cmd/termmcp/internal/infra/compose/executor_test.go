// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
)

func writeComposeFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))
	return dir
}

func pluginManager() *process.MockManager {
	return &process.MockManager{
		LookPathFunc: func(name string) (string, error) {
			if name == "docker" {
				return "/usr/bin/docker", nil
			}
			return "", errors.New("not found")
		},
	}
}

func TestNewDefaultComposeExecutor_PrefersPlugin(t *testing.T) {
	dir := writeComposeFile(t)

	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: dir}, pluginManager())
	require.NoError(t, err)
	assert.Equal(t, "docker compose", exec.Command())
}

func TestNewDefaultComposeExecutor_FallsBackToStandalone(t *testing.T) {
	dir := writeComposeFile(t)
	proc := &process.MockManager{
		LookPathFunc: func(name string) (string, error) {
			if name == "docker-compose" {
				return "/usr/local/bin/docker-compose", nil
			}
			return "", errors.New("not found")
		},
	}

	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: dir}, proc)
	require.NoError(t, err)
	assert.Equal(t, "docker-compose", exec.Command())
}

func TestNewDefaultComposeExecutor_PluginMissingFallsBack(t *testing.T) {
	dir := writeComposeFile(t)
	proc := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "docker: 'compose' is not a docker command", 1, nil
		},
	}

	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: dir}, proc)
	require.NoError(t, err)
	assert.Equal(t, "docker-compose", exec.Command())
}

func TestNewDefaultComposeExecutor_NotInstalled(t *testing.T) {
	proc := &process.MockManager{
		LookPathFunc: func(string) (string, error) { return "", errors.New("not found") },
	}

	_, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: t.TempDir()}, proc)
	assert.ErrorIs(t, err, ErrComposeNotFound)
}

func TestNewDefaultComposeExecutor_FileMissing(t *testing.T) {
	_, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: t.TempDir()}, pluginManager())
	assert.ErrorIs(t, err, ErrComposeFileMissing)
}

func TestDefaultComposeExecutor_UpDownArgs(t *testing.T) {
	dir := writeComposeFile(t)
	proc := pluginManager()
	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{
		Dir:         dir,
		ProjectName: "termmcp",
		Env:         []string{"PORT=8001"},
	}, proc)
	require.NoError(t, err)
	proc.Reset()

	_, err = exec.Up(context.Background(), UpOptions{Build: true})
	require.NoError(t, err)
	_, err = exec.Down(context.Background())
	require.NoError(t, err)

	calls := proc.CallsTo("RunInDir")
	require.Len(t, calls, 2)
	assert.Equal(t, "docker", calls[0].Name)
	assert.Equal(t, []string{"compose", "-f", "docker-compose.yml", "-p", "termmcp", "up", "-d", "--build"}, calls[0].Args)
	assert.Equal(t, dir, calls[0].Spec.Dir)
	assert.Equal(t, []string{"PORT=8001"}, calls[0].Spec.Env)
	assert.Equal(t, []string{"compose", "-f", "docker-compose.yml", "-p", "termmcp", "down"}, calls[1].Args)
}

func TestDefaultComposeExecutor_UpFailureIncludesStderr(t *testing.T) {
	dir := writeComposeFile(t)
	proc := pluginManager()
	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: dir}, proc)
	require.NoError(t, err)

	proc.RunInDirFunc = func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
		return "", "no space left on device\n", 1, nil
	}

	result, err := exec.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left on device")
	assert.Equal(t, 1, result.ExitCode)
}

func TestDefaultComposeExecutor_LogsStreams(t *testing.T) {
	dir := writeComposeFile(t)
	proc := pluginManager()
	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: dir}, proc)
	require.NoError(t, err)

	proc.RunStreamingFunc = func(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
		_, err := io.WriteString(w, "web-1 | ready\n")
		return err
	}

	var buf bytes.Buffer
	require.NoError(t, exec.Logs(context.Background(), LogsOptions{Follow: true, Tail: 50}, &buf))
	assert.Equal(t, "web-1 | ready\n", buf.String())

	calls := proc.CallsTo("RunStreaming")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"compose", "-f", "docker-compose.yml", "logs", "-f", "--tail", "50"}, calls[0].Args)
}

func TestDefaultComposeExecutor_Status(t *testing.T) {
	dir := writeComposeFile(t)
	proc := pluginManager()
	exec, err := NewDefaultComposeExecutor(context.Background(), ComposeConfig{Dir: dir}, proc)
	require.NoError(t, err)

	proc.RunInDirFunc = func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
		return `{"Name":"app-web-1","Service":"web","State":"running","Health":"healthy","Publishers":[{"PublishedPort":8000},{"PublishedPort":8000}]}
{"Name":"app-db-1","Service":"db","State":"exited","Health":"","Publishers":[]}`, "", 0, nil
	}

	status, err := exec.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status.Services, 2)
	assert.Equal(t, 1, status.Running)
	assert.Equal(t, "web", status.Services[0].Service)
	assert.Equal(t, []int{8000}, status.Services[0].Ports)
	assert.Equal(t, "exited", status.Services[1].State)
}

func TestParseStatus_ArrayShape(t *testing.T) {
	status, err := parseStatus(`[{"Name":"a-web-1","Service":"web","State":"running","Publishers":[{"PublishedPort":9000}]}]`)
	require.NoError(t, err)
	require.Len(t, status.Services, 1)
	assert.Equal(t, []int{9000}, status.Services[0].Ports)
}

func TestParseStatus_EmptyAndInvalid(t *testing.T) {
	status, err := parseStatus("  \n")
	require.NoError(t, err)
	assert.Empty(t, status.Services)

	_, err = parseStatus("not json")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "compose ps"))
}

func TestMockComposeExecutor_Defaults(t *testing.T) {
	m := &MockComposeExecutor{}
	_, err := m.Up(context.Background(), UpOptions{Build: true})
	require.NoError(t, err)
	_, err = m.Down(context.Background())
	require.NoError(t, err)

	assert.Len(t, m.UpCalls, 1)
	assert.Equal(t, 1, m.DownCalls)
}
