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
	Package ingest pulls node state updates from the registry and merges them into
	the in-memory node map, advancing the synchronisation watermark.
*/

package ingest

import (
	"context"

	"github.com/qsgmanager/topomap/metrics"
	"github.com/qsgmanager/topomap/registry"
	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
)

// Result describes one ingestion batch.
type Result struct {
	// Applied is the number of entries merged into the node map.
	Applied int
	// Errors lists the entries that were skipped or partially rejected.
	Errors []*topology.DataError
}

// FetchAndMerge requests every update newer than state.Watermark, merges the
// batch into nodes in ascending timestamp order and advances the watermark to the
// newest timestamp seen. On a registry failure a *registry.TransportError is
// returned and neither nodes nor state are modified.
func FetchAndMerge(ctx context.Context, reg registry.Registry, state *topology.SyncState, nodes topology.NodeMap) (int, error) {
	updates, err := Fetch(ctx, reg, state.Watermark)
	if err != nil {
		return 0, err
	}
	return Merge(state, nodes, updates).Applied, nil
}

// Fetch requests every update newer than watermark. Any failure is returned as a
// *registry.TransportError.
func Fetch(ctx context.Context, reg registry.Registry, watermark float64) ([]topology.Update, error) {
	updates, err := reg.UpdatesSince(ctx, watermark)
	if err != nil {
		if _, ok := err.(*registry.TransportError); ok {
			return nil, err
		}
		return nil, &registry.TransportError{Op: "updates", Err: err}
	}
	return updates, nil
}

// Merge applies updates to nodes in ascending timestamp order, ignoring entries
// not newer than state.Watermark, and advances the watermark. updates is sorted
// in place.
func Merge(state *topology.SyncState, nodes topology.NodeMap, updates []topology.Update) Result {
	var res Result
	topology.SortUpdates(updates)

	watermark := state.Watermark
	for _, u := range updates {
		if u.Timestamp <= state.Watermark {
			continue
		}
		if u.Timestamp > watermark {
			watermark = u.Timestamp
		}

		n, ok := nodes[u.NodeID]
		if !ok {
			res.Errors = append(res.Errors, &topology.DataError{Op: "merge", NodeID: u.NodeID, Err: topology.ErrUnknownNode})
			continue
		}
		if dataErr := n.Apply(u.Patch); dataErr != nil {
			res.Errors = append(res.Errors, dataErr)
		}
		res.Applied++
	}
	state.Watermark = watermark

	return res
}

// Ingester wraps Fetch and Merge with logging and metrics.
type Ingester struct {
	reg registry.Registry
	log *logrus.Logger
}

// New returns an Ingester reading from reg.
func New(reg registry.Registry, log *logrus.Logger) *Ingester {
	return &Ingester{
		reg: reg,
		log: log,
	}
}

// Fetch behaves like the package level function and logs failures.
func (i *Ingester) Fetch(ctx context.Context, watermark float64) ([]topology.Update, error) {
	updates, err := Fetch(ctx, i.reg, watermark)
	if err != nil {
		i.log.Errorf("Failed to fetch updates since %v: %v", watermark, err)
		return nil, err
	}
	return updates, nil
}

// Merge behaves like the package level function and additionally reports
// skipped entries and the new watermark.
func (i *Ingester) Merge(state *topology.SyncState, nodes topology.NodeMap, updates []topology.Update) int {
	previous := state.Watermark
	res := Merge(state, nodes, updates)

	for _, dataErr := range res.Errors {
		i.log.Warnf("Skipped update entry: %v", dataErr)
	}
	metrics.DataErrors.WithLabelValues(metrics.StageMerge).Add(float64(len(res.Errors)))
	metrics.UpdatesApplied.Add(float64(res.Applied))
	metrics.Watermark.Set(state.Watermark)

	if res.Applied > 0 {
		i.log.Debugf("Applied %d updates, watermark %v -> %v", res.Applied, previous, state.Watermark)
	}
	return res.Applied
}

// FetchAndMerge runs Fetch then Merge against state.
func (i *Ingester) FetchAndMerge(ctx context.Context, state *topology.SyncState, nodes topology.NodeMap) (int, error) {
	updates, err := i.Fetch(ctx, state.Watermark)
	if err != nil {
		return 0, err
	}
	return i.Merge(state, nodes, updates), nil
}
