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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/config"
	"github.com/termmcp/term-mcp-deepseek/cmd/termmcp/internal/infra/process"
	"github.com/termmcp/term-mcp-deepseek/pkg/logging"
	"github.com/termmcp/term-mcp-deepseek/pkg/ux"
	"github.com/termmcp/term-mcp-deepseek/services/relay"
)

// =============================================================================
// WIRING
// =============================================================================

// newPrinter and newLifecycleManager are swapped by tests.
var (
	newPrinter = ux.NewStdPrinter

	newLifecycleManager = func(project *config.ProjectConfig, logger *logging.Logger, out *ux.Printer) LifecycleManager {
		lock := process.NewProcessLock(process.ProcessLockConfig{LockDir: project.State.LockDir})
		return NewDefaultLifecycleManager(LifecycleDeps{
			Project: project,
			Lock:    lock,
			Printer: out,
			Logger:  logger,
		})
	}
)

// cliRuntime is what every lifecycle command needs.
type cliRuntime struct {
	startup StartupConfig
	project *config.ProjectConfig
	logger  *logging.Logger
	out     *ux.Printer
	manager LifecycleManager
}

// setupRuntime parses the persistent flags and loads termmcp.yaml.
//
// # Description
//
// Nothing here touches the server: a bad flag or config file fails before
// any side effect. An explicit --config must exist; the default path is
// optional.
func setupRuntime() (*cliRuntime, error) {
	startup, err := NewStartupConfig(flagMode, flagHost, flagPort, flagNoAutoPort, flagVerbose)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, err
	}

	path, required := flagConfig, true
	if path == "" {
		path, required = config.DefaultPath, false
	}
	project, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  project.State.LogDir,
		Service: "termmcp",
	})
	out := newPrinter()

	return &cliRuntime{
		startup: startup,
		project: project,
		logger:  logger,
		out:     out,
		manager: newLifecycleManager(project, logger, out),
	}, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func runStart(cmd *cobra.Command, _ []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.logger.Close()

	if rt.startup.Mode != ModeStdio {
		rt.out.Title("term-mcp-deepseek")
	}
	result, err := rt.manager.StartServer(cmd.Context(), rt.startup)
	if err != nil {
		return err
	}
	printStartResult(rt.out, result)
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.logger.Close()

	result, err := rt.manager.StopServer(cmd.Context(), rt.startup)
	if err != nil {
		return err
	}
	printStopResult(rt.out, result)
	return nil
}

func runRestart(cmd *cobra.Command, _ []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.logger.Close()

	if rt.startup.Mode == ModeStdio {
		return fmt.Errorf("%w: restart is not supported in stdio mode", ErrInvalidMode)
	}
	result, err := rt.manager.Restart(cmd.Context(), rt.startup)
	if err != nil {
		return err
	}
	printStartResult(rt.out, result)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.logger.Close()

	status, err := rt.manager.Status(cmd.Context(), rt.startup)
	if err != nil {
		return err
	}
	printStatus(rt.out, status)
	return nil
}

func runLogs(cmd *cobra.Command, _ []string) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.logger.Close()

	return rt.manager.Logs(cmd.Context(), rt.startup, cmd.OutOrStdout(), !flagNoFollow)
}

// runServe runs the Go relay. The lifecycle manager launches it with HOST,
// PORT and the env file already exported; run by hand it reads the env
// file itself for anything the shell does not set.
func runServe(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(flagLogLevel)
	if err != nil {
		return err
	}
	path, required := flagConfig, true
	if path == "" {
		path, required = config.DefaultPath, false
	}
	project, err := config.Load(path, required)
	if err != nil {
		return err
	}

	// The relay logs JSON at info unless --log-level asks for more.
	if !cmd.Flags().Changed("log-level") {
		level = logging.LevelInfo
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  project.State.LogDir,
		Service: "relay",
		JSON:    true,
	})
	defer logger.Close()

	getenv := os.Getenv
	if env, err := LoadEnvironment(project.Env.File, project.Env.CredentialKey); err == nil {
		getenv = func(key string) string {
			if v, ok := os.LookupEnv(key); ok {
				return v
			}
			return env.Get(key)
		}
	} else {
		logger.Debug("env file not used", "error", err)
	}

	cfg, err := relay.LoadConfig(getenv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = strings.TrimSpace(flagHost)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}

	return relay.Run(cmd.Context(), cfg, logger)
}

func runVersion(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "termmcp %s\n", Version)
}

// =============================================================================
// OUTPUT
// =============================================================================

func printStartResult(out *ux.Printer, r *StartResult) {
	s := r.Session
	switch {
	case s.Mode == ModeStdio:
		// stdout was the protocol channel; say nothing there.
		return
	case r.Attached:
		out.Info("Server (PID %d) exited", s.PID)
		return
	case s.Mode == ModeDocker:
		out.Success("Containers started, publishing http://%s:%d", s.Host, s.Port)
	default:
		out.Success("Server started at http://%s:%d (PID %d)", s.Host, s.Port, s.PID)
		out.KeyValue("Log", r.LogPath)
	}

	if r.Healthy {
		out.Success("Health check passed")
		return
	}
	if r.HealthErr != nil {
		out.Warning("%v", r.HealthErr)
		out.Hint("the server is still starting or failed; check `termmcp logs` and `termmcp status`")
	}
}

func printStopResult(out *ux.Printer, r *StopResult) {
	switch {
	case r.Docker:
		out.Success("Containers stopped")
	case r.NoRecord, r.WasStale:
		// Already reported as a warning.
	case r.Forced:
		out.Success("Server (PID %d) killed after the grace period", r.PID)
	default:
		out.Success("Server (PID %d) stopped", r.PID)
	}
}

func printStatus(out *ux.Printer, s *SessionStatus) {
	if s.Mode == ModeDocker {
		if len(s.Services) == 0 {
			out.Info("No containers")
			return
		}
		for _, svc := range s.Services {
			state := svc.State
			if svc.Health != "" {
				state += " (" + svc.Health + ")"
			}
			out.KeyValue(svc.Service, state)
		}
		return
	}

	if !s.Running {
		out.Info("Server is not running")
		return
	}
	out.Success("Server is running (PID %d)", s.PID)
	if s.Port > 0 {
		out.KeyValue("Port", s.Port)
	} else {
		out.KeyValue("Port", "unknown (lsof unavailable or not listening yet)")
	}
	out.KeyValue("Record", s.RecordPath)
}
