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
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode is returned when an update targets a node id absent from the fleet.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnresolvedRef is returned when a report or peer reference names no known node.
	ErrUnresolvedRef = errors.New("unresolved node reference")
	// ErrSelfLoop is returned when a node reports to or peers with itself.
	ErrSelfLoop = errors.New("self-loop")
	// ErrDuplicateNode is returned when a snapshot lists the same id twice.
	ErrDuplicateNode = errors.New("duplicate node id")
)

// DataError describes one offending entry that was skipped. Processing of the
// surrounding batch or build continues.
type DataError struct {
	// Op is the stage that rejected the entry ("build", "merge").
	Op     string
	NodeID int
	// Ref is the referenced node id, if the error concerns a reference.
	Ref int
	Err error
}

func (e *DataError) Error() string {
	switch e.Err {
	case ErrUnresolvedRef, ErrSelfLoop:
		return fmt.Sprintf("%s: node %d -> %d: %v", e.Op, e.NodeID, e.Ref, e.Err)
	default:
		return fmt.Sprintf("%s: node %d: %v", e.Op, e.NodeID, e.Err)
	}
}

func (e *DataError) Unwrap() error {
	return e.Err
}
