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
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/qsgmanager/topomap/config"
	"github.com/qsgmanager/topomap/daemon"
	"github.com/qsgmanager/topomap/logger"
	"github.com/qsgmanager/topomap/registry"
	"github.com/sirupsen/logrus"
)

const defaultRegistryListen = "127.0.0.1:5000"

type registryService struct {
	srv      *http.Server
	db       *registry.SQLiteRegistry
	log      *logrus.Logger
	haltedCh chan struct{}
	haltOnce sync.Once
}

func (s *registryService) start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Errorf("Failed to serve registry: %v", err)
			s.Shutdown()
		}
	}()
	s.log.Infof("Serving registry on %v", s.srv.Addr)
}

func (s *registryService) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *registryService) halt() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Errorf("failed to cleanly shutdown http server: %v", err)
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("failed to close database: %v", err)
	}
	close(s.haltedCh)
}

func (s *registryService) Wait() {
	<-s.haltedCh
}

func RegistryCmd(args []string, usage string) {
	opts := newOpts("registry [OPTIONS]", usage)
	dbPath := opts.Flags("--db").Label("PATH").String("Path to the SQLite registry database", config.DefaultDatabase)
	listen := opts.Flags("--listen").Label("ADDR").String("Address to serve the registry on", defaultRegistryListen)
	level := opts.Flags("--level").Label("LEVEL").String("Logging level", "info")

	params := opts.Parse(args)
	if len(params) != 0 {
		opts.PrintUsage()
		os.Exit(1)
	}

	baseLogger, err := logger.New("", *level, false)
	if err != nil {
		exitf("Failed to create a logger: %v", err)
	}
	log := baseLogger.GetLogger("registry")

	err = daemon.Run(func() (daemon.Service, error) {
		db, err := registry.OpenSQLite(*dbPath, log)
		if err != nil {
			return nil, err
		}
		s := &registryService{
			srv: &http.Server{
				Addr:    *listen,
				Handler: registry.NewServer(db, log),
			},
			db:       db,
			log:      log,
			haltedCh: make(chan struct{}),
		}
		s.start()
		return s, nil
	})
	if err != nil {
		exitf("Failed to start registry: %v", err)
	}
}
