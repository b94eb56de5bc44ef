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

package config

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/qsgmanager/topomap/helpers"
)

var configTemplate = template.Must(template.New("configFileTemplate").Parse(defaultConfigTemplate))

// LoadBinary loads, parses and validates the provided buffer b (as a config)
// and returns the Config.
func LoadBinary(b []byte) (*Config, error) {
	cfg := new(Config)
	_, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndApplyDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the Config.
func LoadFile(f string) (*Config, error) {
	b, err := ioutil.ReadFile(filepath.Clean(f))
	if err != nil {
		return nil, err
	}
	return LoadBinary(b)
}

// WriteConfigFile renders config using the template and writes it to specified file path,
// creating the parent directory if needed.
func WriteConfigFile(path string, config *Config) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		return err
	}

	if err := helpers.EnsureDir(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return ioutil.WriteFile(path, buffer.Bytes(), 0644)
}

// Note: any changes to the template must be reflected in the appropriate structs and tags.
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

##### node registry #####
[registry]

# Where nodes and their state updates are read from: "http" or "sqlite".
backend = "{{ .Registry.Backend }}"

# Base URL of the registry service (http backend).
endpoint = "{{ .Registry.Endpoint }}"

# Path to the SQLite registry database (sqlite backend).
database = "{{ .Registry.Database }}"

# Timeout of a single registry request, in milliseconds.
timeout_ms = {{ .Registry.TimeoutMs }}

##### broadcast #####
[broadcast]

# Number of seconds between two topology pushes. Can be changed at runtime
# through POST /api/period.
period = {{ .Broadcast.Period }}

# Delay before the first push, in milliseconds.
warmup_ms = {{ .Broadcast.WarmupMs }}

##### control surface #####
[server]

# Address of the HTTP control surface, websocket subscriptions and metrics.
listen = "{{ .Server.Listen }}"

##### logging configuration options #####
[logging]

# Whether to disable logging entirely.
disable = {{ .Logging.Disable }}

# The log file. If omitted or set to empty value, stdout will be used.
file = "{{ .Logging.File }}"

# The logging level. The available options include:
# trace, debug, info, warning, error, panic, fatal
level = "{{ .Logging.Level }}"
`
