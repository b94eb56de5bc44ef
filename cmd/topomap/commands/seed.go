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
	"context"
	"fmt"
	"os"

	"github.com/qsgmanager/topomap/config"
	"github.com/qsgmanager/topomap/registry"
)

func SeedCmd(args []string, usage string) {
	opts := newOpts("seed [OPTIONS]", usage)
	dbPath := opts.Flags("--db").Label("PATH").String("Path to the SQLite registry database", config.DefaultDatabase)
	fleetPath := opts.Flags("--fleet").Label("FILE").String("YAML fleet description to load", "")

	params := opts.Parse(args)
	if len(params) != 0 || len(*fleetPath) == 0 {
		opts.PrintUsage()
		os.Exit(1)
	}

	fleet, err := registry.LoadFleet(*fleetPath)
	if err != nil {
		exitf("Could not load the fleet file: %v", err)
	}

	db, err := registry.OpenSQLite(*dbPath, nil)
	if err != nil {
		exitf("Could not open the registry database: %v", err)
	}
	defer db.Close()

	if err := db.Seed(context.Background(), fleet); err != nil {
		exitf("Failed to seed the registry: %v", err)
	}
	fmt.Fprintf(os.Stdout, "Loaded %d nodes and %d updates into %v\n", len(fleet.Nodes), len(fleet.Updates), *dbPath)
}
