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
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/qsgmanager/topomap/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFleetYAML = `
nodes:
  - id: 0
    name: core
    ip_addr: 10.0.0.1
    lat: 52.2
    lng: 21.0
    kind: HB
    active: true
  - id: 1
    name: north
    ip_addr: 10.0.0.2
    kind: gateway
    reports_to: 0
    peers: [2]
    active: true
  - id: 2
    name: south
    ip_addr: 10.0.0.3
    kind: GW
    reports_to: 0
    peers: [1, 1]
updates:
  - time: 19.01
    node: 1
    key_exchange: [2]
  - time: 19.04
    node: 2
    active: true
    in_throughput: 12.5
`

func TestParseFleet(t *testing.T) {
	fleet, err := ParseFleet([]byte(testFleetYAML))
	require.NoError(t, err)
	require.Len(t, fleet.Nodes, 3)
	require.Len(t, fleet.Updates, 2)

	hub := fleet.Nodes[0].Node()
	assert.Equal(t, topology.Hub, hub.Kind)
	assert.Equal(t, topology.GPS{Lat: 52.2, Lng: 21.0}, hub.GPS)

	south := fleet.Nodes[2].Node()
	assert.Equal(t, topology.Gateway, south.Kind)
	assert.Equal(t, topology.IDSet{1}, south.PeerIDs)

	first := fleet.Updates[0].Update()
	assert.Equal(t, 19.01, first.Timestamp)
	assert.Nil(t, first.Patch.PeerIDs)
	assert.Nil(t, first.Patch.Active)
	require.NotNil(t, first.Patch.KeyExchangePeers)
	assert.Equal(t, topology.IDSet{2}, *first.Patch.KeyExchangePeers)

	second := fleet.Updates[1].Update()
	require.NotNil(t, second.Patch.Active)
	assert.True(t, *second.Patch.Active)
	assert.Nil(t, second.Patch.OutThroughput)
}

func TestParseFleetRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "nodes: [\n"},
		{"empty", "nodes: []\n"},
		{"unknown kind", "nodes:\n  - id: 1\n    kind: router\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseFleet([]byte(test.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFleet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(testFleetYAML), 0600))

	fleet, err := LoadFleet(path)
	require.NoError(t, err)
	assert.Len(t, fleet.Nodes, 3)

	_, err = LoadFleet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
