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
	"github.com/qsgmanager/topomap/registry"
	"github.com/sirupsen/logrus"
	"github.com/tav/golly/optparse"
)

func newOpts(command string, usage string) *optparse.Parser {
	return optparse.New("Usage: topomap " + command + "\n\n  " + usage + "\n")
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// openRegistry returns the configured registry backend and a function releasing it.
func openRegistry(cfg *config.Registry, log *logrus.Logger) (registry.Registry, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := registry.OpenSQLite(cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				log.Errorf("Failed to close registry database: %v", err)
			}
		}, nil
	case config.BackendHTTP:
		return registry.NewHTTPRegistry(cfg.Endpoint, cfg.Timeout()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry backend: %q", cfg.Backend)
	}
}
