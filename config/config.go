// Copyright 2020 The Topomap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
	Package config implements the topomap configuration file: where the node
	registry lives, how often topology state is broadcast, where the control
	surface listens and how logging is done.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTopomapDirectory = ".topomap"
	defaultConfigDirectory  = "config"
	defaultConfigFileName   = "config.toml"

	defaultLogLevel = "info"

	// BackendHTTP reads the registry from a registry service.
	BackendHTTP = "http"
	// BackendSQLite reads the registry directly from a SQLite database.
	BackendSQLite = "sqlite"

	DefaultRegistryEndpoint = "http://127.0.0.1:5000"
	DefaultDatabase         = "node_database.db"
	defaultTimeoutMs        = 3000

	defaultPeriod   = 10
	defaultWarmupMs = 1000

	DefaultListenAddress = "127.0.0.1:5001"
)

//nolint: gochecknoglobals
var defaultHomeDirectory = os.ExpandEnv(filepath.Join("$HOME", defaultTopomapDirectory))

// DefaultConfigPath returns absolute path to the default configuration file.
// The returned path should be $HOME/.topomap/config/config.toml
func DefaultConfigPath() string {
	return filepath.Join(
		defaultHomeDirectory,
		defaultConfigDirectory,
		defaultConfigFileName,
	)
}

// Registry is the node registry configuration.
type Registry struct {
	// Backend selects where nodes and updates are read from: "http" or "sqlite".
	Backend string `toml:"backend"`

	// Endpoint is the base URL of the registry service, used by the http backend.
	Endpoint string `toml:"endpoint"`

	// Database is the path to the SQLite registry, used by the sqlite backend.
	Database string `toml:"database"`

	// TimeoutMs bounds every registry request, in milliseconds.
	TimeoutMs int `toml:"timeout_ms"`
}

// Timeout returns the registry request timeout.
func (cfg *Registry) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

func (cfg *Registry) validateAndApplyDefaults() error {
	if len(cfg.Backend) == 0 {
		cfg.Backend = BackendHTTP
	}
	if cfg.Backend != BackendHTTP && cfg.Backend != BackendSQLite {
		return fmt.Errorf("config: unknown registry backend: %q", cfg.Backend)
	}

	if len(cfg.Endpoint) == 0 {
		cfg.Endpoint = DefaultRegistryEndpoint
	}
	if len(cfg.Database) == 0 {
		cfg.Database = DefaultDatabase
	}

	if cfg.TimeoutMs < 0 {
		return fmt.Errorf("config: negative registry timeout: %d", cfg.TimeoutMs)
	} else if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = defaultTimeoutMs
	}
	return nil
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() *Registry {
	return &Registry{
		Backend:   BackendHTTP,
		Endpoint:  DefaultRegistryEndpoint,
		Database:  DefaultDatabase,
		TimeoutMs: defaultTimeoutMs,
	}
}

// Broadcast is the broadcast scheduler configuration.
type Broadcast struct {
	// Period is the number of seconds between two pushes. It can later be changed
	// at runtime through the control surface.
	Period int `toml:"period"`

	// WarmupMs delays the first push after startup, in milliseconds.
	WarmupMs int `toml:"warmup_ms"`
}

// Warmup returns the delay before the first push.
func (cfg *Broadcast) Warmup() time.Duration {
	return time.Duration(cfg.WarmupMs) * time.Millisecond
}

func (cfg *Broadcast) validateAndApplyDefaults() error {
	if cfg.Period < 0 {
		return fmt.Errorf("config: broadcast period must be positive: %d", cfg.Period)
	} else if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}

	if cfg.WarmupMs < 0 {
		return fmt.Errorf("config: negative warmup: %d", cfg.WarmupMs)
	} else if cfg.WarmupMs == 0 {
		cfg.WarmupMs = defaultWarmupMs
	}
	return nil
}

// DefaultBroadcastConfig returns the default broadcast configuration.
func DefaultBroadcastConfig() *Broadcast {
	return &Broadcast{
		Period:   defaultPeriod,
		WarmupMs: defaultWarmupMs,
	}
}

// Server is the control surface configuration.
type Server struct {
	// Listen is the address the HTTP control surface binds to.
	Listen string `toml:"listen"`
}

// DefaultServerConfig returns the default control surface configuration.
func DefaultServerConfig() *Server {
	return &Server{
		Listen: DefaultListenAddress,
	}
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool `toml:"disable"`

	// File specifies the log file, if omitted stdout will be used.
	File string `toml:"file"`

	// Level specifies the log level.
	Level string `toml:"level"`
}

func (cfg *Logging) validate() error {
	_, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("config: invalid logging level: %s (%v)", cfg.Level, err)
	}
	return nil
}

// DefaultLoggingConfig returns default logging configuration.
func DefaultLoggingConfig() *Logging {
	return &Logging{
		Disable: false,
		File:    "",
		Level:   defaultLogLevel,
	}
}

// Config is the top level topomap configuration.
type Config struct {
	Registry  *Registry  `toml:"registry"`
	Broadcast *Broadcast `toml:"broadcast"`
	Server    *Server    `toml:"server"`
	Logging   *Logging   `toml:"logging"`
}

// DefaultConfig returns the full default config.
func DefaultConfig() *Config {
	return &Config{
		Registry:  DefaultRegistryConfig(),
		Broadcast: DefaultBroadcastConfig(),
		Server:    DefaultServerConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

func (cfg *Config) validateAndApplyDefaults() error {
	// an empty file is most likely a mistake; the registry location has to be explicit
	if cfg.Registry == nil {
		return errors.New("config: No Registry block was present")
	}

	if err := cfg.Registry.validateAndApplyDefaults(); err != nil {
		return err
	}

	if cfg.Broadcast == nil {
		cfg.Broadcast = &Broadcast{}
	}
	if err := cfg.Broadcast.validateAndApplyDefaults(); err != nil {
		return err
	}

	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if len(cfg.Server.Listen) == 0 {
		cfg.Server.Listen = DefaultListenAddress
	}

	if cfg.Logging == nil {
		cfg.Logging = DefaultLoggingConfig()
	}

	return cfg.Logging.validate()
}
