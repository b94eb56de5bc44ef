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
	"strconv"
)

// LinkState is the per-link entry of a push event.
type LinkState struct {
	Connection  string  `json:"connection"`
	Active      bool    `json:"active"`
	KeyExchange bool    `json:"keyExchange"`
	Throughput1 float64 `json:"throughput1"`
	Throughput2 float64 `json:"throughput2"`
}

// PushEvent is the state delivered to subscribers once per tick.
type PushEvent struct {
	Links      map[int]LinkState `json:"links"`
	Activation map[int]bool      `json:"activation"`
}

// NewPushEvent captures the current link and activation state.
func NewPushEvent(nodes NodeMap, links []*Link) PushEvent {
	ev := PushEvent{
		Links:      make(map[int]LinkState, len(links)),
		Activation: make(map[int]bool, len(nodes)),
	}
	for _, l := range links {
		ev.Links[l.ID] = LinkState{
			Connection:  l.Connection(),
			Active:      l.Active,
			KeyExchange: l.KeyExchanged,
			Throughput1: l.Throughput1,
			Throughput2: l.Throughput2,
		}
	}
	for id, n := range nodes {
		ev.Activation[id] = n.Active
	}
	return ev
}

// Marshal serializes the event into its wire form.
func (ev PushEvent) Marshal() ([]byte, error) {
	return json.Marshal(ev)
}

// Marker is the map pin of a single node.
type Marker struct {
	Name   string `json:"name"`
	Number int    `json:"number"`
	Pos    GPS    `json:"pos"`
}

// Markers returns the pins used for the initial map render, keyed by node id.
// Gateway names carry a "Gateway[<id>] " prefix; hub names are used as they are.
func Markers(nodes NodeMap) map[int]Marker {
	out := make(map[int]Marker, len(nodes))
	for id, n := range nodes {
		name := n.Name
		if !n.IsHub() {
			name = "Gateway[" + strconv.Itoa(n.ID) + "] " + n.Name
		}
		out[id] = Marker{Name: name, Number: n.ID, Pos: n.GPS}
	}
	return out
}
