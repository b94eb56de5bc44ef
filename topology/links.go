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

// Recompute refreshes the derived fields of every link from the current node
// attributes. It reads nothing but nodes and is idempotent.
func Recompute(nodes NodeMap, links []*Link) {
	for _, l := range links {
		a, okA := nodes[l.Pair.A]
		b, okB := nodes[l.Pair.B]
		if !okA || !okB {
			l.Active, l.KeyExchanged = false, false
			l.Throughput1, l.Throughput2 = 0, 0
			continue
		}

		l.Active = a.Active && b.Active
		// one-sided listing does not count
		l.KeyExchanged = a.KeyExchangePeers.Has(b.ID) && b.KeyExchangePeers.Has(a.ID)

		if l.Active {
			l.Throughput1 = a.InThroughput
			l.Throughput2 = b.InThroughput
		} else {
			l.Throughput1, l.Throughput2 = 0, 0
		}
	}
}

// CountActive returns the number of links currently active.
func CountActive(links []*Link) int {
	n := 0
	for _, l := range links {
		if l.Active {
			n++
		}
	}
	return n
}
