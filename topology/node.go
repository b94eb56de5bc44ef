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
	Package topology implements the gateway/hub fleet model: the nodes, the static
	link graph derived from their relations and the per-link state recomputed from
	the current node attributes.
*/

package topology

import (
	"fmt"
	"sort"
	"strings"
)

// NodeKind distinguishes aggregation hubs from leaf gateways.
type NodeKind int

const (
	// Gateway is a leaf node exchanging data with peer gateways.
	Gateway NodeKind = iota
	// Hub is an aggregation node that gateways report to.
	Hub
)

// String returns the registry wire value of the kind.
func (k NodeKind) String() string {
	switch k {
	case Hub:
		return "HB"
	case Gateway:
		return "GW"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// ParseNodeKind accepts both the short registry codes and the long names.
func ParseNodeKind(s string) (NodeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hb", "hub":
		return Hub, nil
	case "gw", "gateway":
		return Gateway, nil
	default:
		return Gateway, fmt.Errorf("unknown node kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(b []byte) error {
	kind, err := ParseNodeKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// GPS is a node position.
type GPS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IDSet is a list of node ids with set semantics. Order of first appearance is kept
// so that serialized output stays stable.
type IDSet []int

// NewIDSet builds a set from ids, collapsing duplicates.
func NewIDSet(ids ...int) IDSet {
	set := make(IDSet, 0, len(ids))
	for _, id := range ids {
		if !set.Has(id) {
			set = append(set, id)
		}
	}
	return set
}

// Has reports whether id is a member of the set.
func (s IDSet) Has(id int) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns a copy of the set with id removed.
func (s IDSet) Without(id int) IDSet {
	out := make(IDSet, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	out := make(IDSet, len(s))
	copy(out, s)
	return out
}

// Node is a single gateway or hub of the fleet.
type Node struct {
	ID               int
	Name             string
	IPAddr           string
	Kind             NodeKind
	GPS              GPS
	ReportsTo        int
	PeerIDs          IDSet
	Active           bool
	KeyExchangePeers IDSet
	InThroughput     float64
	OutThroughput    float64
}

// IsHub reports whether the node is an aggregation hub.
func (n *Node) IsHub() bool {
	return n.Kind == Hub
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.PeerIDs = n.PeerIDs.Clone()
	c.KeyExchangePeers = n.KeyExchangePeers.Clone()
	return &c
}

// NodePatch is a partial node update. A nil field is absent from the patch and
// leaves the corresponding node attribute untouched.
type NodePatch struct {
	PeerIDs          *IDSet   `json:"peerIds,omitempty"`
	InThroughput     *float64 `json:"inThroughput,omitempty"`
	OutThroughput    *float64 `json:"outThroughput,omitempty"`
	Active           *bool    `json:"activeFlag,omitempty"`
	KeyExchangePeers *IDSet   `json:"keyExchangePeers,omitempty"`
}

// Empty reports whether the patch carries no field at all.
func (p NodePatch) Empty() bool {
	return p.PeerIDs == nil && p.InThroughput == nil && p.OutThroughput == nil &&
		p.Active == nil && p.KeyExchangePeers == nil
}

// Apply merges the fields present in p into the node. A peer list naming the node
// itself has that id dropped and a DataError is returned alongside the merge; every
// other field of the patch is still applied.
func (n *Node) Apply(p NodePatch) *DataError {
	var dataErr *DataError
	if p.PeerIDs != nil {
		peers := NewIDSet(*p.PeerIDs...)
		if peers.Has(n.ID) {
			dataErr = &DataError{Op: "merge", NodeID: n.ID, Ref: n.ID, Err: ErrSelfLoop}
			peers = peers.Without(n.ID)
		}
		n.PeerIDs = peers
	}
	if p.InThroughput != nil {
		n.InThroughput = *p.InThroughput
	}
	if p.OutThroughput != nil {
		n.OutThroughput = *p.OutThroughput
	}
	if p.Active != nil {
		n.Active = *p.Active
	}
	if p.KeyExchangePeers != nil {
		n.KeyExchangePeers = NewIDSet(*p.KeyExchangePeers...)
	}
	return dataErr
}

// Update is one registry state-update event.
type Update struct {
	Timestamp float64   `json:"timestamp"`
	NodeID    int       `json:"nodeId"`
	Patch     NodePatch `json:"patch"`
}

// SortUpdates orders a batch by ascending timestamp, keeping the registry order of
// entries that share a timestamp.
func SortUpdates(updates []Update) {
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Timestamp < updates[j].Timestamp
	})
}

// NodeMap indexes nodes by id.
type NodeMap map[int]*Node

// IDs returns the node ids in ascending order.
func (m NodeMap) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SyncState is the incremental synchronisation cursor.
type SyncState struct {
	// Watermark is the timestamp of the most recent applied update. It never decreases.
	Watermark float64
	// Period is the broadcast interval in seconds.
	Period int
}
