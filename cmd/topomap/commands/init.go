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

package commands

import (
	"fmt"
	"os"

	"github.com/qsgmanager/topomap/config"
	"github.com/qsgmanager/topomap/helpers"
)

func InitCmd(args []string, usage string) {
	opts := newOpts("init [OPTIONS]", usage)
	registryURL := opts.Flags("--registry").Label("URL").String("Base URL of the registry service", config.DefaultRegistryEndpoint)
	sqlitePath := opts.Flags("--sqlite").Label("PATH").String("Read the registry directly from this SQLite database "+
		"instead of a registry service", "")
	period := opts.Flags("--period").Label("SECONDS").Int("Interval between two topology pushes", 0)
	listen := opts.Flags("--listen").Label("ADDR").String("Address of the control surface", config.DefaultListenAddress)
	configPath := opts.Flags("--cfg").Label("PATH").String("Where to write the configuration file", config.DefaultConfigPath())
	force := opts.Flags("--force").Label("FORCE").Bool("Overwrite an existing configuration file")

	params := opts.Parse(args)
	if len(params) != 0 {
		opts.PrintUsage()
		os.Exit(1)
	}

	if *period < 0 {
		exitf("The broadcast period must be positive, got %d", *period)
	}

	exists, err := helpers.PathExists(*configPath)
	if err != nil {
		exitf("Could not inspect %v: %v", *configPath, err)
	}
	if exists && !*force {
		exitf("The configuration file at %v already exists, use --force to overwrite it", *configPath)
	}

	cfg := config.DefaultConfig()
	cfg.Registry.Endpoint = *registryURL
	if len(*sqlitePath) > 0 {
		cfg.Registry.Backend = config.BackendSQLite
		cfg.Registry.Database = *sqlitePath
	}
	if *period > 0 {
		cfg.Broadcast.Period = *period
	}
	cfg.Server.Listen = *listen

	if err := config.WriteConfigFile(*configPath, cfg); err != nil {
		exitf("Failed to write config to a file: %v", err)
	}
	fmt.Fprintf(os.Stdout, "Saved generated config to %v\n", *configPath)
}
