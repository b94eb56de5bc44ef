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

package registry

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/qsgmanager/topomap/topology"
	"gopkg.in/yaml.v3"
)

// Fleet is a YAML description of the nodes of a registry and, optionally, a log of
// state updates to preload.
type Fleet struct {
	Nodes   []FleetNode   `yaml:"nodes"`
	Updates []FleetUpdate `yaml:"updates,omitempty"`
}

// FleetNode describes one node of a fleet file.
type FleetNode struct {
	ID        int     `yaml:"id"`
	Name      string  `yaml:"name"`
	IPAddr    string  `yaml:"ip_addr"`
	Lat       float64 `yaml:"lat"`
	Lng       float64 `yaml:"lng"`
	Kind      string  `yaml:"kind"`
	ReportsTo int     `yaml:"reports_to"`
	Peers     []int   `yaml:"peers,omitempty"`
	Active    bool    `yaml:"active"`
}

// FleetUpdate describes one preloaded state update. Omitted fields are absent from
// the resulting patch.
type FleetUpdate struct {
	Time          float64  `yaml:"time"`
	Node          int      `yaml:"node"`
	Peers         *[]int   `yaml:"peers,omitempty"`
	InThroughput  *float64 `yaml:"in_throughput,omitempty"`
	OutThroughput *float64 `yaml:"out_throughput,omitempty"`
	Active        *bool    `yaml:"active,omitempty"`
	KeyExchange   *[]int   `yaml:"key_exchange,omitempty"`
}

// LoadFleet parses a fleet file.
func LoadFleet(path string) (*Fleet, error) {
	b, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return ParseFleet(b)
}

// ParseFleet parses fleet YAML and checks that every node kind is known.
func ParseFleet(b []byte) (*Fleet, error) {
	fleet := new(Fleet)
	if err := yaml.Unmarshal(b, fleet); err != nil {
		return nil, fmt.Errorf("fleet: %v", err)
	}
	if len(fleet.Nodes) == 0 {
		return nil, errors.New("fleet: no nodes defined")
	}
	for _, n := range fleet.Nodes {
		if _, err := topology.ParseNodeKind(n.Kind); err != nil {
			return nil, fmt.Errorf("fleet: node %d: %v", n.ID, err)
		}
	}
	return fleet, nil
}

// Node converts the fleet entry into a fleet node.
func (n FleetNode) Node() topology.Node {
	kind, _ := topology.ParseNodeKind(n.Kind)
	return topology.Node{
		ID:        n.ID,
		Name:      n.Name,
		IPAddr:    n.IPAddr,
		Kind:      kind,
		GPS:       topology.GPS{Lat: n.Lat, Lng: n.Lng},
		ReportsTo: n.ReportsTo,
		PeerIDs:   topology.NewIDSet(n.Peers...),
		Active:    n.Active,
	}
}

// Update converts the fleet entry into a registry update.
func (u FleetUpdate) Update() topology.Update {
	patch := topology.NodePatch{
		InThroughput:  u.InThroughput,
		OutThroughput: u.OutThroughput,
		Active:        u.Active,
	}
	if u.Peers != nil {
		peers := topology.NewIDSet(*u.Peers...)
		patch.PeerIDs = &peers
	}
	if u.KeyExchange != nil {
		keys := topology.NewIDSet(*u.KeyExchange...)
		patch.KeyExchangePeers = &keys
	}
	return topology.Update{Timestamp: u.Time, NodeID: u.Node, Patch: patch}
}

// Seed writes every node and update of the fleet in a single transaction.
func (r *SQLiteRegistry) Seed(ctx context.Context, fleet *Fleet) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	for _, n := range fleet.Nodes {
		if err := insertNode(ctx, tx, n.Node()); err != nil {
			tx.Rollback()
			return fmt.Errorf("registry: failed to seed node %d: %v", n.ID, err)
		}
	}
	for _, u := range fleet.Updates {
		if err := appendUpdate(ctx, tx, u.Update()); err != nil {
			tx.Rollback()
			return fmt.Errorf("registry: failed to seed update at %v: %v", u.Time, err)
		}
	}
	return tx.Commit()
}
