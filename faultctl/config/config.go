// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for faultctl. Each setting is a field of Config, populated from a command
// line flag and optionally from a TOML file.
package config

import (
	"fmt"
	"time"

	"gvisor.dev/faultguard/pkg/log"
)

// Config holds configuration that is not part of any single subcommand.
//
// Every field carries a `flag` tag naming the command line flag that sets it
// and a `toml` tag naming the file key.
type Config struct {
	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// DebugLog is the path to log debug information to, if not empty. It may
	// contain %COMMAND% and %TIMESTAMP%, and if it ends in '/' a file is
	// created inside the directory.
	DebugLog string `flag:"debug-log" toml:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format" toml:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// FaultLogInterval is the minimum interval between logged recovered
	// faults. Zero logs every fault.
	FaultLogInterval time.Duration `flag:"fault-log-interval" toml:"fault-log-interval"`
}

func (c *Config) validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"log-format", c.LogFormat},
		{"debug-log-format", c.DebugLogFormat},
	} {
		switch f.value {
		case "text", "json", "json-k8s":
		default:
			return fmt.Errorf("invalid %s %q, must be 'text', 'json', or 'json-k8s'", f.name, f.value)
		}
	}
	if c.FaultLogInterval < 0 {
		return fmt.Errorf("fault-log-interval must not be negative: %v", c.FaultLogInterval)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.fields() {
		log.Infof("\t%s: %s", f.name, f.value)
	}
}
