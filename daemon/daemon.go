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

// Package daemon defines common structure for all long running topomap processes.
package daemon

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
)

// Service is anything that can be asked to stop and waited upon.
type Service interface {
	Shutdown()
	Wait()
}

type StartUpFunc func() (Service, error)

// Run starts the service returned by startFn and blocks until it terminates,
// either on its own or after SIGINT/SIGTERM.
func Run(startFn StartUpFunc) error {
	syscall.Umask(0077)

	// Ensure that a sane number of OS threads is allowed.
	if os.Getenv("GOMAXPROCS") == "" {
		// But only if the user isn't trying to override it.
		nProcs := runtime.GOMAXPROCS(0)
		nCPU := runtime.NumCPU()
		if nProcs < nCPU {
			runtime.GOMAXPROCS(nCPU)
		}
	}

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(haltCh)

	service, err := startFn()
	if err != nil {
		return err
	}
	defer service.Shutdown()

	// Halt the service gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		service.Shutdown()
	}()

	// Wait for the service to explode or be terminated.
	service.Wait()
	return nil
}

// Group runs several services as one. Shutdown stops them in reverse order of
// registration; Wait returns once every member has terminated. A member that
// stops on its own brings the rest of the group down.
type Group struct {
	services []Service
	once     sync.Once
	doneCh   chan struct{}
}

// NewGroup creates a group out of services, listed in start order.
func NewGroup(services ...Service) *Group {
	g := &Group{
		services: services,
		doneCh:   make(chan struct{}),
	}
	for _, s := range services {
		go func(s Service) {
			s.Wait()
			g.Shutdown()
		}(s)
	}
	return g
}

// Shutdown stops every member of the group.
func (g *Group) Shutdown() {
	g.once.Do(func() {
		for i := len(g.services) - 1; i >= 0; i-- {
			g.services[i].Shutdown()
		}
		go func() {
			for _, s := range g.services {
				s.Wait()
			}
			close(g.doneCh)
		}()
	})
}

// Wait blocks until every member has terminated.
func (g *Group) Wait() {
	<-g.doneCh
}

type hook struct {
	fn       func()
	once     sync.Once
	haltedCh chan struct{}
}

// OnShutdown wraps a cleanup function as a Service, so that resources without a
// lifecycle of their own can be part of a Group.
func OnShutdown(fn func()) Service {
	return &hook{fn: fn, haltedCh: make(chan struct{})}
}

func (h *hook) Shutdown() {
	h.once.Do(func() {
		h.fn()
		close(h.haltedCh)
	})
}

func (h *hook) Wait() {
	<-h.haltedCh
}
