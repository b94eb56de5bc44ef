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
	Package registry implements access to the node registry, the source of truth for
	node attributes and the append-only log of node state updates.

	Two backends are provided: an HTTP client talking to a registry service and a
	SQLite store. Server exposes any backend over HTTP.
*/

package registry

import (
	"context"
	"fmt"

	"github.com/qsgmanager/topomap/topology"
)

// Registry is the node registry as seen by the synchronisation engine.
type Registry interface {
	// Snapshot returns every node with its static relations.
	Snapshot(ctx context.Context) ([]topology.Node, error)
	// UpdatesSince returns the update events strictly newer than watermark,
	// in ascending timestamp order.
	UpdatesSince(ctx context.Context, watermark float64) ([]topology.Update, error)
}

// TransportError reports that the registry could not be reached or answered with
// something that could not be understood. No state should be mutated on it; the
// caller retries on its next cycle.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*TransportError); ok {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// NodeRecord is the wire form of a node in a snapshot.
type NodeRecord struct {
	ID        int               `json:"id"`
	Name      string            `json:"name"`
	IPAddr    string            `json:"ipAddr"`
	Lat       float64           `json:"lat"`
	Lng       float64           `json:"lng"`
	Kind      topology.NodeKind `json:"kind"`
	ReportsTo int               `json:"reportsTo"`
	PeerIDs   []int             `json:"peerIds"`
	Active    bool              `json:"activeFlag"`
}

// Node converts the record into a fleet node.
func (r NodeRecord) Node() topology.Node {
	return topology.Node{
		ID:        r.ID,
		Name:      r.Name,
		IPAddr:    r.IPAddr,
		Kind:      r.Kind,
		GPS:       topology.GPS{Lat: r.Lat, Lng: r.Lng},
		ReportsTo: r.ReportsTo,
		PeerIDs:   topology.NewIDSet(r.PeerIDs...),
		Active:    r.Active,
	}
}

// RecordOf converts a node back into its wire form.
func RecordOf(n topology.Node) NodeRecord {
	peers := make([]int, len(n.PeerIDs))
	copy(peers, n.PeerIDs)
	return NodeRecord{
		ID:        n.ID,
		Name:      n.Name,
		IPAddr:    n.IPAddr,
		Lat:       n.GPS.Lat,
		Lng:       n.GPS.Lng,
		Kind:      n.Kind,
		ReportsTo: n.ReportsTo,
		PeerIDs:   peers,
		Active:    n.Active,
	}
}
