// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relay is the reference Application Server: a small gin service
// exposing GET /health, POST /chat and GET /metrics, relaying chat turns to
// the DeepSeek API (OpenAI-compatible).
//
// # Request Flow
//
//	POST /chat
//	   │
//	   ├─► request id, security + CORS headers, metrics, tracing
//	   ├─► per-IP rate limit (429)
//	   ├─► bind + validate {message, session_id}
//	   ├─► ConversationStore.Snapshot(session) + user turn
//	   ├─► ChatCompleter.Complete (DeepSeek)   ── error ─► 502
//	   └─► ConversationStore.Commit(user, assistant) ─► 200 {message, session_id}
//
// The relay never executes commands on behalf of the model.
package relay

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrMissingAPIKey is returned by LoadConfig when DEEPSEEK_API_KEY is unset.
var ErrMissingAPIKey = errors.New("DEEPSEEK_API_KEY is not set")

// DefaultSystemPrompt is the first message of every conversation.
const DefaultSystemPrompt = "You are a helpful AI assistant for a terminal user. " +
	"Answer concisely. You cannot run commands yourself; when a shell command " +
	"would help, show it in a code block for the user to run."

// Config configures the relay.
type Config struct {
	Host string
	Port int

	APIKey  string
	BaseURL string
	Model   string

	SystemPrompt   string
	Temperature    float32
	RequestTimeout time.Duration

	// SessionTTL is the idle time after which a conversation is dropped.
	SessionTTL time.Duration

	// MaxSessions caps concurrent conversations; the least recently used
	// one is evicted to make room.
	MaxSessions int

	// MaxHistory caps stored messages per conversation, system prompt
	// excluded.
	MaxHistory int

	// ChatRate and ChatBurst are the per-client token bucket for /chat.
	ChatRate  rate.Limit
	ChatBurst int

	JanitorInterval time.Duration

	// TraceStdout exports OpenTelemetry spans to stderr.
	TraceStdout bool
}

// DefaultConfig returns the relay defaults. APIKey is empty.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8000,
		BaseURL:         "https://api.deepseek.com",
		Model:           "deepseek-chat",
		SystemPrompt:    DefaultSystemPrompt,
		Temperature:     0.7,
		RequestTimeout:  30 * time.Second,
		SessionTTL:      time.Hour,
		MaxSessions:     10,
		MaxHistory:      99,
		ChatRate:        rate.Every(2 * time.Second),
		ChatBurst:       30,
		JanitorInterval: 5 * time.Minute,
	}
}

// LoadConfig reads the relay configuration through getenv (normally
// os.Getenv).
//
// # Inputs
//
//   - getenv: Variable lookup. Recognised keys: HOST, PORT,
//     DEEPSEEK_API_KEY, DEEPSEEK_BASE_URL, DEEPSEEK_MODEL, SESSION_TIMEOUT
//     (seconds), MAX_CONCURRENT_SESSIONS, TRACE_STDOUT.
//
// # Outputs
//
//   - Config: Defaults overlaid with the environment.
//   - error: ErrMissingAPIKey, or a description of the malformed variable.
func LoadConfig(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(getenv("HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}

	cfg.APIKey = strings.TrimSpace(getenv("DEEPSEEK_API_KEY"))
	if cfg.APIKey == "" {
		return Config{}, ErrMissingAPIKey
	}

	if v := strings.TrimSpace(getenv("DEEPSEEK_BASE_URL")); v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, fmt.Errorf("invalid DEEPSEEK_BASE_URL %q", v)
		}
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(getenv("DEEPSEEK_MODEL")); v != "" {
		cfg.Model = v
	}

	if v := strings.TrimSpace(getenv("SESSION_TIMEOUT")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("invalid SESSION_TIMEOUT %q (seconds)", v)
		}
		cfg.SessionTTL = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(getenv("MAX_CONCURRENT_SESSIONS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_CONCURRENT_SESSIONS %q", v)
		}
		cfg.MaxSessions = n
	}

	if v := strings.TrimSpace(getenv("TRACE_STDOUT")); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TRACE_STDOUT %q", v)
		}
		cfg.TraceStdout = on
	}
	return cfg, nil
}
