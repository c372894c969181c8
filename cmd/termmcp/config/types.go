// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "time"

// Runtime values select how the Application Server is launched.
const (
	// RuntimePython runs the Python server from a managed virtualenv.
	RuntimePython = "python"

	// RuntimeNative runs the bundled Go relay (`termmcp serve`).
	RuntimeNative = "native"
)

// ProjectConfig is the optional termmcp.yaml at the project root.
type ProjectConfig struct {
	// Server: how the Application Server is launched and probed
	Server ServerConfig `yaml:"server"`

	// Python: virtualenv bootstrap for the python runtime
	Python PythonConfig `yaml:"python"`

	// Env: the dotenv file holding the DeepSeek credential
	Env EnvConfig `yaml:"env"`

	// State: files termmcp owns inside the project
	State StateConfig `yaml:"state"`

	// Timing: health polling and signal escalation
	Timing TimingConfig `yaml:"timing"`

	// Docker: compose delegation for --mode docker
	Docker DockerConfig `yaml:"docker"`
}

type ServerConfig struct {
	Runtime       string `yaml:"runtime" validate:"oneof=python native"`
	HTTPEntry     string `yaml:"http_entry" validate:"required"`  // e.g. server.py
	StdioEntry    string `yaml:"stdio_entry" validate:"required"` // e.g. stdio_server.py
	HealthPath    string `yaml:"health_path" validate:"required,startswith=/"`
	MaxPortProbes int    `yaml:"max_port_probes" validate:"min=1,max=1000"`
}

type PythonConfig struct {
	Executable   string `yaml:"executable" validate:"required"`
	VenvDir      string `yaml:"venv_dir" validate:"required"`
	Requirements string `yaml:"requirements"` // empty skips pip install
}

type EnvConfig struct {
	File          string `yaml:"file" validate:"required"`
	CredentialKey string `yaml:"credential_key" validate:"required"`
}

type StateConfig struct {
	PIDFile   string `yaml:"pid_file" validate:"required"`
	ServerLog string `yaml:"server_log" validate:"required"`
	LockDir   string `yaml:"lock_dir" validate:"required"`
	LogDir    string `yaml:"log_dir"` // termmcp's own JSON logs; empty disables
}

type TimingConfig struct {
	HealthTimeout  time.Duration `yaml:"health_timeout" validate:"gt=0"`
	HealthInterval time.Duration `yaml:"health_interval" validate:"gt=0"`
	StopGrace      time.Duration `yaml:"stop_grace" validate:"gt=0"`
	RestartSettle  time.Duration `yaml:"restart_settle" validate:"gte=0"`
}

type DockerConfig struct {
	ComposeFile string `yaml:"compose_file" validate:"required"`
	ProjectName string `yaml:"project_name"`
}

// DefaultConfig mirrors the layout of the term-mcp-deepseek project.
func DefaultConfig() ProjectConfig {
	return ProjectConfig{
		Server: ServerConfig{
			Runtime:       RuntimePython,
			HTTPEntry:     "server.py",
			StdioEntry:    "stdio_server.py",
			HealthPath:    "/health",
			MaxPortProbes: 100,
		},
		Python: PythonConfig{
			Executable:   "python3",
			VenvDir:      "venv",
			Requirements: "requirements.txt",
		},
		Env: EnvConfig{
			File:          ".env",
			CredentialKey: "DEEPSEEK_API_KEY",
		},
		State: StateConfig{
			PIDFile:   ".server.pid",
			ServerLog: "logs/server.log",
			LockDir:   ".",
			LogDir:    "",
		},
		Timing: TimingConfig{
			HealthTimeout:  30 * time.Second,
			HealthInterval: time.Second,
			StopGrace:      2 * time.Second,
			RestartSettle:  2 * time.Second,
		},
		Docker: DockerConfig{
			ComposeFile: "docker-compose.yml",
		},
	}
}
