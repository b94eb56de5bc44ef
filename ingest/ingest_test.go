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

package ingest

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"

	"github.com/qsgmanager/topomap/registry"
	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves a fixed update log. When raw is set it is returned as is,
// ignoring the watermark.
type fakeRegistry struct {
	log   []topology.Update
	raw   []topology.Update
	err   error
	calls []float64
}

func (f *fakeRegistry) Snapshot(ctx context.Context) ([]topology.Node, error) {
	return nil, errors.New("not used")
}

func (f *fakeRegistry) UpdatesSince(ctx context.Context, watermark float64) ([]topology.Update, error) {
	f.calls = append(f.calls, watermark)
	if f.err != nil {
		return nil, f.err
	}
	if f.raw != nil {
		return f.raw, nil
	}
	var out []topology.Update
	for _, u := range f.log {
		if u.Timestamp > watermark {
			out = append(out, u)
		}
	}
	return out, nil
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func idSetPtr(ids ...int) *topology.IDSet {
	s := topology.NewIDSet(ids...)
	return &s
}

func testNodes() topology.NodeMap {
	return topology.NodeMap{
		0: {ID: 0, Kind: topology.Hub, Active: true},
		1: {ID: 1, Kind: topology.Gateway, ReportsTo: 0, PeerIDs: topology.NewIDSet(2), Active: true, InThroughput: 1},
		2: {ID: 2, Kind: topology.Gateway, ReportsTo: 0, PeerIDs: topology.NewIDSet(1)},
	}
}

func TestFetchAndMergeAdvancesWatermark(t *testing.T) {
	reg := &fakeRegistry{log: []topology.Update{
		{Timestamp: 4, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(99)}},
		{Timestamp: 6, NodeID: 2, Patch: topology.NodePatch{Active: boolPtr(true)}},
		{Timestamp: 7, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(5)}},
		{Timestamp: 8, NodeID: 2, Patch: topology.NodePatch{KeyExchangePeers: idSetPtr(1)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{Watermark: 5, Period: 10}

	applied, err := FetchAndMerge(context.Background(), reg, state, nodes)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Equal(t, 8.0, state.Watermark)
	assert.Equal(t, []float64{5}, reg.calls)

	assert.Equal(t, 5.0, nodes[1].InThroughput)
	assert.True(t, nodes[2].Active)
	assert.Equal(t, topology.IDSet{1}, nodes[2].KeyExchangePeers)

	// nothing newer than 8 is left
	applied, err = FetchAndMerge(context.Background(), reg, state, nodes)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, 8.0, state.Watermark)
	assert.Equal(t, 5.0, nodes[1].InThroughput)
}

func TestFetchAndMergeOrdersBatch(t *testing.T) {
	reg := &fakeRegistry{raw: []topology.Update{
		{Timestamp: 19.07, NodeID: 1, Patch: topology.NodePatch{Active: boolPtr(true)}},
		{Timestamp: 19.04, NodeID: 1, Patch: topology.NodePatch{Active: boolPtr(false)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{Watermark: 19.01}

	applied, err := FetchAndMerge(context.Background(), reg, state, nodes)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.True(t, nodes[1].Active)
	assert.Equal(t, 19.07, state.Watermark)
}

func TestFetchAndMergeIgnoresStaleEntries(t *testing.T) {
	reg := &fakeRegistry{raw: []topology.Update{
		{Timestamp: 3, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(42)}},
		{Timestamp: 5, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(43)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{Watermark: 5}

	applied, err := FetchAndMerge(context.Background(), reg, state, nodes)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, 5.0, state.Watermark)
	assert.Equal(t, 1.0, nodes[1].InThroughput)
}

func TestFetchAndMergeTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("connection refused")},
		{"transport error", &registry.TransportError{Op: "updates", Err: errors.New("timeout")}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			nodes := testNodes()
			before := nodes[1].Clone()
			state := &topology.SyncState{Watermark: 5}

			applied, err := FetchAndMerge(context.Background(), &fakeRegistry{err: test.err}, state, nodes)
			var terr *registry.TransportError
			require.ErrorAs(t, err, &terr)
			assert.Zero(t, applied)
			assert.Equal(t, 5.0, state.Watermark)
			assert.Equal(t, before, nodes[1])
		})
	}
}

func TestFetchAndMergeUnknownNode(t *testing.T) {
	reg := &fakeRegistry{log: []topology.Update{
		{Timestamp: 1, NodeID: 42, Patch: topology.NodePatch{Active: boolPtr(true)}},
		{Timestamp: 2, NodeID: 2, Patch: topology.NodePatch{Active: boolPtr(true)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{}

	updates, err := Fetch(context.Background(), reg, state.Watermark)
	require.NoError(t, err)
	res := Merge(state, nodes, updates)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], topology.ErrUnknownNode))
	assert.Equal(t, 42, res.Errors[0].NodeID)
	assert.True(t, nodes[2].Active)
	assert.Equal(t, 2.0, state.Watermark)
	assert.Len(t, nodes, 3)
}

func TestFetchAndMergeSelfPeer(t *testing.T) {
	reg := &fakeRegistry{log: []topology.Update{
		{Timestamp: 1, NodeID: 2, Patch: topology.NodePatch{PeerIDs: idSetPtr(1, 2), OutThroughput: floatPtr(7)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{}

	updates, err := Fetch(context.Background(), reg, state.Watermark)
	require.NoError(t, err)
	res := Merge(state, nodes, updates)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], topology.ErrSelfLoop))
	assert.Equal(t, topology.IDSet{1}, nodes[2].PeerIDs)
	assert.Equal(t, 7.0, nodes[2].OutThroughput)
}

func TestFetchAndMergeNeverRegresses(t *testing.T) {
	reg := &fakeRegistry{log: []topology.Update{
		{Timestamp: 1, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(2)}},
		{Timestamp: 2, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(3)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{}

	for i := 0; i < 3; i++ {
		_, err := FetchAndMerge(context.Background(), reg, state, nodes)
		require.NoError(t, err)
		assert.Equal(t, 3.0, nodes[1].InThroughput)
		assert.Equal(t, 2.0, state.Watermark)
	}
}

func TestIngester(t *testing.T) {
	log := logrus.New()
	log.Out = ioutil.Discard

	reg := &fakeRegistry{log: []topology.Update{
		{Timestamp: 1, NodeID: 9, Patch: topology.NodePatch{Active: boolPtr(true)}},
		{Timestamp: 2, NodeID: 1, Patch: topology.NodePatch{Active: boolPtr(false)}},
	}}
	nodes := testNodes()
	state := &topology.SyncState{}

	applied, err := New(reg, log).FetchAndMerge(context.Background(), state, nodes)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.False(t, nodes[1].Active)
	assert.Equal(t, 2.0, state.Watermark)

	reg.err = errors.New("down")
	_, err = New(reg, log).FetchAndMerge(context.Background(), state, nodes)
	assert.Error(t, err)
	assert.Equal(t, 2.0, state.Watermark)
}

func TestMergeWithoutRegistry(t *testing.T) {
	nodes := testNodes()
	state := &topology.SyncState{Watermark: 5}

	res := Merge(state, nodes, []topology.Update{
		{Timestamp: 7, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(4)}},
		{Timestamp: 5, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(1)}},
		{Timestamp: 6, NodeID: 1, Patch: topology.NodePatch{InThroughput: floatPtr(2)}},
	})
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 4.0, nodes[1].InThroughput)
	assert.Equal(t, 7.0, state.Watermark)

	res = Merge(state, nodes, nil)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 7.0, state.Watermark)
}
