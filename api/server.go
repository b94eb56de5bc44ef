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

// Package api implements the HTTP control surface of the synchroniser.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 5 * time.Second
	maxBodySize     = 1 << 10
)

// Controller is the part of the broadcast scheduler the control surface talks to.
type Controller interface {
	SetPeriod(p int) (int, error)
	Period() int
	Markers() map[int]topology.Marker
	Snapshot() topology.PushEvent
}

type periodRequest struct {
	Period *int `json:"period"`
}

type periodResponse struct {
	Period int    `json:"period"`
	Error  string `json:"error,omitempty"`
}

// Server serves the control endpoints, the websocket subscription and metrics.
type Server struct {
	ctl Controller
	log *logrus.Logger
	mux *http.ServeMux

	srv      *http.Server
	haltedCh chan struct{}
	haltOnce sync.Once
}

// New creates a server listening on address once started. ws handles
// subscription requests on /ws.
func New(address string, ctl Controller, ws http.Handler, log *logrus.Logger) *Server {
	s := &Server{
		ctl:      ctl,
		log:      log,
		mux:      http.NewServeMux(),
		haltedCh: make(chan struct{}),
	}
	s.mux.HandleFunc("/api/period", s.handlePeriod)
	s.mux.HandleFunc("/api/markers", s.handleMarkers)
	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	s.mux.Handle("/ws", ws)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    address,
		Handler: s.mux,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start binds the listening socket and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("api: failed to listen on %v: %v", s.srv.Addr, err)
	}
	s.log.Infof("Listening on %v", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != http.ErrServerClosed {
			s.log.Errorf("HTTP server failed: %v", err)
			s.Shutdown()
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) halt() {
	s.log.Info("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Errorf("failed to cleanly shutdown http server: %v", err)
	}

	close(s.haltedCh)
}

// Wait blocks until the server has shut down.
func (s *Server) Wait() {
	<-s.haltedCh
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, periodResponse{Period: s.ctl.Period()})
	case http.MethodPost:
		p, err := readPeriod(w, r)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, periodResponse{Period: s.ctl.Period(), Error: err.Error()})
			return
		}
		eff, err := s.ctl.SetPeriod(p)
		if err != nil {
			s.log.Warnf("Rejected period change: %v", err)
			s.writeJSON(w, http.StatusBadRequest, periodResponse{Period: eff, Error: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, periodResponse{Period: eff})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// readPeriod accepts either a JSON body or a form value.
func readPeriod(w http.ResponseWriter, r *http.Request) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		var req periodRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return 0, fmt.Errorf("malformed request: %v", err)
		}
		if req.Period == nil {
			return 0, errors.New("missing period")
		}
		return *req.Period, nil
	}

	v := r.FormValue("period")
	if v == "" {
		return 0, errors.New("missing period")
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("period %q is not an integer", v)
	}
	return p, nil
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.Markers())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("Failed to write response: %v", err)
	}
}
