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
	"os"

	"github.com/qsgmanager/topomap/api"
	"github.com/qsgmanager/topomap/broadcast"
	"github.com/qsgmanager/topomap/config"
	"github.com/qsgmanager/topomap/daemon"
	"github.com/qsgmanager/topomap/helpers"
	"github.com/qsgmanager/topomap/logger"
	"github.com/qsgmanager/topomap/push"
)

func RunCmd(args []string, usage string) {
	opts := newOpts("run [OPTIONS]", usage)
	configPath := opts.Flags("--cfg").Label("PATH").String("Path to the configuration file", config.DefaultConfigPath())

	params := opts.Parse(args)
	if len(params) != 0 {
		opts.PrintUsage()
		os.Exit(1)
	}

	cfgExists, err := helpers.PathExists(*configPath)
	if !cfgExists || err != nil {
		exitf("The configuration file at %v does not seem to exist, create one with 'topomap init'", *configPath)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		exitf("Could not load the config file: %v", err)
	}

	baseLogger, err := logger.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		exitf("Failed to create a logger: %v", err)
	}
	defer baseLogger.Close()

	err = daemon.Run(func() (daemon.Service, error) {
		reg, closeRegistry, err := openRegistry(cfg.Registry, baseLogger.GetLogger("registry"))
		if err != nil {
			return nil, err
		}

		hub := push.NewHub(baseLogger.GetLogger("push"))
		sched := broadcast.New(broadcast.Config{
			Period:       cfg.Broadcast.Period,
			Warmup:       cfg.Broadcast.Warmup(),
			FetchTimeout: cfg.Registry.Timeout(),
		}, reg, hub, baseLogger.GetLogger("broadcast"))

		if err := sched.Load(context.Background()); err != nil {
			closeRegistry()
			return nil, err
		}

		srv := api.New(cfg.Server.Listen, sched, hub, baseLogger.GetLogger("api"))
		if err := srv.Start(); err != nil {
			closeRegistry()
			return nil, err
		}
		if err := sched.Start(); err != nil {
			srv.Shutdown()
			closeRegistry()
			return nil, err
		}

		// members are shut down in reverse order; the scheduler finishes its
		// last tick before the hub and the registry are closed
		return daemon.NewGroup(
			daemon.OnShutdown(closeRegistry),
			daemon.OnShutdown(hub.Close),
			sched,
			srv,
		), nil
	})
	if err != nil {
		exitf("Failed to start topomap: %v", err)
	}
}
