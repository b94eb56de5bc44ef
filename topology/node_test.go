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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullNode() *Node {
	return &Node{
		ID:               3,
		Name:             "SUTD",
		IPAddr:           "10.0.0.3",
		Kind:             Gateway,
		GPS:              GPS{Lat: 1.3413, Lng: 103.9638},
		ReportsTo:        0,
		PeerIDs:          NewIDSet(1, 2),
		Active:           true,
		KeyExchangePeers: NewIDSet(1),
		InThroughput:     5,
		OutThroughput:    6,
	}
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
func setPtr(ids ...int) *IDSet    { s := NewIDSet(ids...); return &s }

func TestApplyOnlyTouchesPresentFields(t *testing.T) {
	patches := []struct {
		name  string
		patch NodePatch
		check func(want, got *Node)
	}{
		{"in", NodePatch{InThroughput: floatPtr(9)}, func(want, got *Node) { want.InThroughput = 9 }},
		{"out", NodePatch{OutThroughput: floatPtr(1)}, func(want, got *Node) { want.OutThroughput = 1 }},
		{"active", NodePatch{Active: boolPtr(false)}, func(want, got *Node) { want.Active = false }},
		{"peers", NodePatch{PeerIDs: setPtr(4)}, func(want, got *Node) { want.PeerIDs = NewIDSet(4) }},
		{"keys", NodePatch{KeyExchangePeers: setPtr()}, func(want, got *Node) { want.KeyExchangePeers = NewIDSet() }},
		{"empty", NodePatch{}, func(want, got *Node) {}},
	}

	for _, p := range patches {
		got := fullNode()
		want := fullNode()
		assert.Nil(t, got.Apply(p.patch), p.name)
		p.check(want, got)
		assert.Equal(t, want, got, p.name)
	}
}

func TestApplyIdenticalValueIsNoop(t *testing.T) {
	n := fullNode()
	patch := NodePatch{InThroughput: floatPtr(5), Active: boolPtr(true), PeerIDs: setPtr(1, 2)}

	n.Apply(patch)
	n.Apply(patch)
	assert.Equal(t, fullNode(), n)
}

func TestApplyDropsSelfPeer(t *testing.T) {
	n := fullNode()
	err := n.Apply(NodePatch{PeerIDs: setPtr(3, 1), OutThroughput: floatPtr(2)})

	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrSelfLoop))
	assert.Equal(t, IDSet{1}, n.PeerIDs)
	assert.Equal(t, 2.0, n.OutThroughput)
}

func TestApplyDoesNotAliasPatch(t *testing.T) {
	n := fullNode()
	peers := NewIDSet(7)
	n.Apply(NodePatch{PeerIDs: &peers})
	peers[0] = 8
	assert.Equal(t, IDSet{7}, n.PeerIDs)
}

func TestPatchDecoding(t *testing.T) {
	var u Update
	err := json.Unmarshal([]byte(`{"timestamp": 19.04, "nodeId": 2,
		"patch": {"keyExchangePeers": [], "activeFlag": false}}`), &u)
	require.Nil(t, err)

	assert.Equal(t, 19.04, u.Timestamp)
	assert.Equal(t, 2, u.NodeID)
	assert.Nil(t, u.Patch.PeerIDs)
	assert.Nil(t, u.Patch.InThroughput)
	require.NotNil(t, u.Patch.KeyExchangePeers)
	assert.Len(t, *u.Patch.KeyExchangePeers, 0)
	require.NotNil(t, u.Patch.Active)
	assert.False(t, *u.Patch.Active)
	assert.False(t, u.Patch.Empty())
}

func TestSortUpdatesStable(t *testing.T) {
	updates := []Update{
		{Timestamp: 8, NodeID: 1},
		{Timestamp: 6, NodeID: 2},
		{Timestamp: 8, NodeID: 3},
		{Timestamp: 7, NodeID: 4},
	}
	SortUpdates(updates)

	ids := make([]int, len(updates))
	for i, u := range updates {
		ids[i] = u.NodeID
	}
	assert.Equal(t, []int{2, 4, 1, 3}, ids)
}

func TestIDSet(t *testing.T) {
	s := NewIDSet(3, 1, 3, 2)
	assert.Equal(t, IDSet{3, 1, 2}, s)
	assert.True(t, s.Has(2))
	assert.False(t, s.Has(4))
	assert.Equal(t, IDSet{3, 2}, s.Without(1))
	assert.Nil(t, IDSet(nil).Clone())
}
