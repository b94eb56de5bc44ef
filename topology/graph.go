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

package topology

import (
	"fmt"
	"strconv"
)

// LinkKind tells how a link was declared.
type LinkKind int

const (
	// Report is the link from a gateway to the hub it reports to.
	Report LinkKind = iota
	// Peer is a link between two communicating gateways.
	Peer
)

func (k LinkKind) String() string {
	switch k {
	case Report:
		return "report"
	case Peer:
		return "peer"
	default:
		return fmt.Sprintf("LinkKind(%d)", int(k))
	}
}

// Pair is an undirected edge with its endpoints in ascending order.
type Pair struct {
	A, B int
}

// CanonicalPair orders the two endpoints ascending.
func CanonicalPair(x, y int) Pair {
	if x > y {
		return Pair{A: y, B: x}
	}
	return Pair{A: x, B: y}
}

// String renders the pair as "<min>-<max>".
func (p Pair) String() string {
	return strconv.Itoa(p.A) + "-" + strconv.Itoa(p.B)
}

// Link is a derived edge of the topology. Its endpoints and kind are fixed when the
// graph is built; the remaining fields are recomputed on every tick.
type Link struct {
	ID   int
	Pair Pair
	Kind LinkKind

	Active       bool
	KeyExchanged bool
	Throughput1  float64
	Throughput2  float64
}

// Connection returns the canonical "<min>-<max>" form of the endpoints.
func (l *Link) Connection() string {
	return l.Pair.String()
}

// graphBuilder accumulates links while tracking canonical pairs already emitted.
type graphBuilder struct {
	nodes NodeMap
	links []*Link
	seen  map[Pair]struct{}
	errs  []*DataError
}

func (b *graphBuilder) reject(nodeID, ref int, err error) {
	b.errs = append(b.errs, &DataError{Op: "build", NodeID: nodeID, Ref: ref, Err: err})
}

// resolve reports whether ref names a known node, rejecting it otherwise.
func (b *graphBuilder) resolve(from, ref int) bool {
	if _, ok := b.nodes[ref]; !ok {
		b.reject(from, ref, ErrUnresolvedRef)
		return false
	}
	return true
}

func (b *graphBuilder) addLink(from, to int, kind LinkKind) {
	if from == to {
		b.reject(from, to, ErrSelfLoop)
		return
	}
	if !b.resolve(from, to) {
		return
	}
	pair := CanonicalPair(from, to)
	if _, ok := b.seen[pair]; ok {
		return
	}
	b.seen[pair] = struct{}{}
	b.links = append(b.links, &Link{ID: len(b.links), Pair: pair, Kind: kind})
}

// BuildGraph indexes the snapshot nodes and derives the static link set.
//
// Every gateway contributes one Report link to the node it reports to and one Peer
// link per listed peer. A pair declared from both sides collapses to the first link
// created. Hubs never originate links, but their references must still resolve;
// a hub may report to itself. Offending entries (duplicate ids, unresolved
// references, self-loops) are skipped and returned as DataErrors; the build itself
// never fails. Link ids follow creation order, i.e. the input order of nodes.
func BuildGraph(nodes []Node) (NodeMap, []*Link, []*DataError) {
	b := &graphBuilder{
		nodes: make(NodeMap, len(nodes)),
		seen:  make(map[Pair]struct{}),
	}

	order := make([]*Node, 0, len(nodes))
	for i := range nodes {
		if _, ok := b.nodes[nodes[i].ID]; ok {
			b.reject(nodes[i].ID, nodes[i].ID, ErrDuplicateNode)
			continue
		}
		n := nodes[i].Clone()
		if n.PeerIDs.Has(n.ID) {
			b.reject(n.ID, n.ID, ErrSelfLoop)
			n.PeerIDs = n.PeerIDs.Without(n.ID)
		}
		b.nodes[n.ID] = n
		order = append(order, n)
	}

	for _, n := range order {
		if n.IsHub() {
			if n.ReportsTo != n.ID {
				b.resolve(n.ID, n.ReportsTo)
			}
			for _, peerID := range n.PeerIDs {
				b.resolve(n.ID, peerID)
			}
			continue
		}
		b.addLink(n.ID, n.ReportsTo, Report)
		for _, peerID := range n.PeerIDs {
			b.addLink(n.ID, peerID, Peer)
		}
	}

	return b.nodes, b.links, b.errs
}
