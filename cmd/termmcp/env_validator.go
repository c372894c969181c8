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
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Environment is a parsed dotenv file.
type Environment struct {
	// Path is the file that was read.
	Path string

	// Values maps upper-cased keys to their values.
	Values map[string]string
}

// LoadEnvironment reads the dotenv file at path and requires credentialKey.
//
// # Description
//
// The file is parsed by viper's dotenv codec, so quoting, comments and
// `export` prefixes behave as in python-dotenv. Keys are case-insensitive
// and normalised to upper case. This runs before anything is spawned: a
// start without a credential fails with no side effects.
//
// # Outputs
//
//   - *Environment: Parsed values.
//   - error: *MissingConfigurationError if the file is absent or the key is
//     missing or blank; a wrapped parse error otherwise.
func LoadEnvironment(path, credentialKey string) (*Environment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingConfigurationError{Path: path, Reason: "environment file not found"}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, &MissingConfigurationError{Path: path, Reason: "is a directory, not an environment file"}
	}

	// "." appears in some env keys; keep viper from nesting on it.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	values := make(map[string]string)
	for _, key := range v.AllKeys() {
		values[strings.ToUpper(key)] = v.GetString(key)
	}

	env := &Environment{Path: path, Values: values}

	value, ok := env.Values[strings.ToUpper(credentialKey)]
	if !ok {
		return nil, &MissingConfigurationError{Path: path, Key: credentialKey, Reason: "is not set"}
	}
	if strings.TrimSpace(value) == "" {
		return nil, &MissingConfigurationError{Path: path, Key: credentialKey, Reason: "is empty"}
	}
	return env, nil
}

// Get returns the value of key (case-insensitive).
func (e *Environment) Get(key string) string {
	return e.Values[strings.ToUpper(key)]
}

// ChildEnv builds the environment for the server process.
//
// # Description
//
// Starts from base (normally os.Environ()), overlays every key from the
// file (file values win), then forces HOST and PORT to the resolved
// values. Output is sorted for stable logs and tests.
func (e *Environment) ChildEnv(base []string, host string, port int) []string {
	merged := make(map[string]string, len(base)+len(e.Values)+2)
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range e.Values {
		merged[k] = v
	}
	if host != "" {
		merged["HOST"] = host
	}
	if port > 0 {
		merged["PORT"] = strconv.Itoa(port)
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
