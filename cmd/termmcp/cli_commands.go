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
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// Persistent flag values, shared by every subcommand.
var (
	flagMode       string
	flagHost       string
	flagPort       int
	flagNoAutoPort bool
	flagVerbose    bool
	flagConfig     string
	flagLogLevel   string

	flagNoFollow bool
)

var (
	rootCmd = &cobra.Command{
		Use:   "termmcp",
		Short: "Start, stop and inspect the terminal + DeepSeek chat server",
		Long: `termmcp manages the lifecycle of the term-mcp-deepseek Application Server.

With no subcommand it starts the server: it checks .env for DEEPSEEK_API_KEY,
prepares the Python virtualenv, picks a free port (8000, then 8001, ...) and
waits for /health to answer.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStart,
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the server (the default command)",
		Args:  cobra.NoArgs,
		RunE:  runStart,
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the recorded server (SIGTERM, then SIGKILL after the grace period)",
		Args:  cobra.NoArgs,
		RunE:  runStop,
	}

	restartCmd = &cobra.Command{
		Use:   "restart",
		Short: "Stop the server if it is running, then start it again",
		Args:  cobra.NoArgs,
		RunE:  runRestart,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report whether the server is running and on which port",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Print the server log and follow it until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runLogs,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the bundled Go chat relay in the foreground",
		Long: `Runs the reference Application Server: GET /health, POST /chat and
GET /metrics, relaying chat to the DeepSeek API.

Configuration comes from the environment (HOST, PORT, DEEPSEEK_API_KEY,
DEEPSEEK_BASE_URL, DEEPSEEK_MODEL). --host and --port override HOST and
PORT when given explicitly.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the termmcp version",
		Args:  cobra.NoArgs,
		Run:   runVersion,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagMode, "mode", "m", string(ModeHTTP), "Server mode: http, stdio or docker")
	pf.StringVarP(&flagHost, "host", "h", DefaultHost, "Host to bind the server to")
	pf.IntVarP(&flagPort, "port", "p", DefaultPort, "Port to bind the server to")
	pf.BoolVar(&flagNoAutoPort, "no-auto-port", false, "Fail instead of picking the next free port")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Run the server in the foreground and stream its output")
	pf.StringVar(&flagConfig, "config", "", "Project config file (default termmcp.yaml if present)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Diagnostic log level: debug, info, warn, error")

	// -h belongs to --host.
	pf.Bool("help", false, "Help for termmcp")

	logsCmd.Flags().BoolVar(&flagNoFollow, "no-follow", false, "Print the log and exit")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
