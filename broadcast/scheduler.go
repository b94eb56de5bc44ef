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
	Package broadcast drives the periodic synchronisation cycle: every tick pulls new
	state updates from the registry, recomputes the link state and publishes the
	result to the push channel.

	The Scheduler owns the node map, the link list and the synchronisation cursor.
	Its single worker goroutine is the only writer; readers go through the accessor
	methods which return copies.
*/

package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qsgmanager/topomap/ingest"
	"github.com/qsgmanager/topomap/metrics"
	"github.com/qsgmanager/topomap/push"
	"github.com/qsgmanager/topomap/registry"
	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPeriod is the broadcast interval in seconds.
	DefaultPeriod = 10
	// DefaultWarmup is the delay before the first tick.
	DefaultWarmup = time.Second
)

// unit of Config.Period and SetPeriod
var periodUnit = time.Second

// State is the lifecycle state of a Scheduler.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the scheduler settings.
type Config struct {
	// Period is the interval between ticks, in seconds.
	Period int
	// Warmup delays the first tick so that subscribers get a chance to connect.
	Warmup time.Duration
	// FetchTimeout bounds each registry request.
	FetchTimeout time.Duration
}

// Scheduler runs the synchronisation loop.
type Scheduler struct {
	cfg      Config
	reg      registry.Registry
	ch       push.Channel
	ingester *ingest.Ingester
	log      *logrus.Logger

	// mu guards nodes, links and cursor.Watermark; the worker, their only
	// writer, reads them without it
	mu     sync.RWMutex
	nodes  topology.NodeMap
	links  []*topology.Link
	cursor topology.SyncState

	// periodMu guards cursor.Period
	periodMu sync.Mutex

	stateMu  sync.Mutex
	state    State
	stopCh   chan struct{}
	haltedCh chan struct{}
	haltOnce sync.Once
}

// New creates an idle scheduler. Load must be called before Start.
func New(cfg Config, reg registry.Registry, ch push.Channel, log *logrus.Logger) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = registry.DefaultTimeout
	}
	metrics.BroadcastPeriod.Set(float64(cfg.Period))

	return &Scheduler{
		cfg:      cfg,
		reg:      reg,
		ch:       ch,
		ingester: ingest.New(reg, log),
		log:      log,
		cursor:   topology.SyncState{Period: cfg.Period},
		stopCh:   make(chan struct{}),
		haltedCh: make(chan struct{}),
	}
}

// Load fetches the node snapshot, builds the static link graph and computes the
// initial link state. Offending entries are logged and skipped.
func (s *Scheduler) Load(ctx context.Context) error {
	if st := s.State(); st != Idle {
		return fmt.Errorf("broadcast: cannot load snapshot while %v", st)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	snapshot, err := s.reg.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("broadcast: failed to load node snapshot: %w", err)
	}

	nodes, links, dataErrs := topology.BuildGraph(snapshot)
	for _, dataErr := range dataErrs {
		s.log.Warnf("Skipped node entry: %v", dataErr)
	}
	metrics.DataErrors.WithLabelValues(metrics.StageBuild).Add(float64(len(dataErrs)))
	topology.Recompute(nodes, links)

	s.mu.Lock()
	s.nodes = nodes
	s.links = links
	s.mu.Unlock()

	metrics.LinksActive.Set(float64(topology.CountActive(links)))
	s.log.Infof("Loaded %d nodes and %d links", len(nodes), len(links))
	return nil
}

// Start launches the worker. The first tick happens after the configured warm-up.
func (s *Scheduler) Start() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("broadcast: cannot start scheduler while %v", s.state)
	}
	s.mu.RLock()
	loaded := s.nodes != nil
	s.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}

	s.state = Running
	go s.worker()
	s.log.Infof("Broadcasting every %ds", s.Period())
	return nil
}

// Stop asks the worker to exit. A tick in progress completes first; a pending sleep
// is cut short. Stopping an idle scheduler moves it straight to Stopped.
func (s *Scheduler) Stop() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch s.state {
	case Idle:
		s.state = Stopped
		s.haltOnce.Do(func() { close(s.haltedCh) })
	case Running:
		s.state = Stopping
		close(s.stopCh)
		s.log.Info("Stopping broadcast")
	}
}

// Shutdown stops the scheduler and waits for a tick in progress to complete.
func (s *Scheduler) Shutdown() {
	s.Stop()
	s.Wait()
}

// Wait blocks until the scheduler reaches Stopped.
func (s *Scheduler) Wait() {
	<-s.haltedCh
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// SetPeriod changes the broadcast interval. The new value applies from the next
// sleep on. Non-positive values are rejected with a *ConfigError and the current
// period is kept. The effective period is returned in both cases.
func (s *Scheduler) SetPeriod(p int) (int, error) {
	s.periodMu.Lock()
	defer s.periodMu.Unlock()

	if p <= 0 {
		return s.cursor.Period, &ConfigError{Field: "period", Value: p, Err: ErrInvalidPeriod}
	}
	if p != s.cursor.Period {
		s.log.Infof("Broadcast period changed from %ds to %ds", s.cursor.Period, p)
	}
	s.cursor.Period = p
	metrics.BroadcastPeriod.Set(float64(p))
	return p, nil
}

// Period returns the broadcast interval in seconds.
func (s *Scheduler) Period() int {
	s.periodMu.Lock()
	defer s.periodMu.Unlock()
	return s.cursor.Period
}

// Watermark returns the timestamp of the most recent applied update.
func (s *Scheduler) Watermark() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor.Watermark
}

// Markers returns the map pins of every node.
func (s *Scheduler) Markers() map[int]topology.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return topology.Markers(s.nodes)
}

// Snapshot returns the current push event, i.e. the state published by the last
// tick.
func (s *Scheduler) Snapshot() topology.PushEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return topology.NewPushEvent(s.nodes, s.links)
}

func (s *Scheduler) worker() {
	defer s.halt()

	if !s.sleep(s.cfg.Warmup) {
		return
	}
	for {
		s.tick()
		// period is read as each sleep begins
		if !s.sleep(time.Duration(s.Period()) * periodUnit) {
			return
		}
	}
}

// sleep waits for d and reports false if the scheduler was stopped in between.
func (s *Scheduler) sleep(d time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		// a stop racing with the timer wins
		select {
		case <-s.stopCh:
			return false
		default:
			return true
		}
	case <-s.stopCh:
		return false
	}
}

func (s *Scheduler) tick() {
	start := time.Now()
	status := metrics.StatusOK

	payload, err := s.refresh()
	if err != nil {
		status = metrics.StatusTransportError
	}

	if payload != nil {
		if err := s.ch.Publish(payload); err != nil {
			s.log.Warnf("Failed to push topology state: %v", err)
			metrics.PushFailures.Inc()
			status = metrics.StatusPushError
		}
	}

	metrics.TicksTotal.WithLabelValues(status).Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// refresh fetches pending updates, then merges them and recomputes link state
// under the write lock, and returns the serialized push event. The registry call
// is made without the lock; the worker is the only writer of the watermark. A
// transport error is returned alongside the payload of the unchanged state.
func (s *Scheduler) refresh() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	updates, fetchErr := s.ingester.Fetch(ctx, s.cursor.Watermark)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if fetchErr == nil {
		s.ingester.Merge(&s.cursor, s.nodes, updates)
	}
	topology.Recompute(s.nodes, s.links)
	metrics.LinksActive.Set(float64(topology.CountActive(s.links)))

	payload, err := topology.NewPushEvent(s.nodes, s.links).Marshal()
	if err != nil {
		s.log.Errorf("Failed to serialize push event: %v", err)
		return nil, fetchErr
	}
	return payload, fetchErr
}

func (s *Scheduler) halt() {
	s.stateMu.Lock()
	s.state = Stopped
	s.stateMu.Unlock()

	s.haltOnce.Do(func() { close(s.haltedCh) })
	s.log.Info("Broadcast stopped")
}
