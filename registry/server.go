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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
)

// Server exposes a Registry over HTTP with the endpoints HTTPRegistry consumes:
// GET /nodes and GET /updates?since=<watermark>.
type Server struct {
	reg Registry
	log *logrus.Logger
	mux *http.ServeMux
}

// NewServer wraps reg in an http.Handler.
func NewServer(reg Registry, log *logrus.Logger) *Server {
	s := &Server{
		reg: reg,
		log: log,
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc(nodesPath, s.handleNodes)
	s.mux.HandleFunc(updatesPath, s.handleUpdates)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	nodes, err := s.reg.Snapshot(r.Context())
	if err != nil {
		s.log.Errorf("Failed to read node snapshot: %v", err)
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}

	records := make([]NodeRecord, len(nodes))
	for i, n := range nodes {
		records[i] = RecordOf(n)
	}
	s.log.Debugf("Serving %d nodes", len(records))
	s.writeJSON(w, records)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var since float64
	if v := r.URL.Query().Get("since"); v != "" {
		var err error
		since, err = strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	updates, err := s.reg.UpdatesSince(r.Context(), since)
	if err != nil {
		s.log.Errorf("Failed to read updates since %v: %v", since, err)
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	if updates == nil {
		updates = []topology.Update{}
	}
	s.log.Debugf("Serving %d updates newer than %v", len(updates), since)
	s.writeJSON(w, updates)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("Failed to write response: %v", err)
	}
}
