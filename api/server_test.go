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

package api

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/qsgmanager/topomap/broadcast"
	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRegistry struct {
	nodes []topology.Node
}

func (r *staticRegistry) Snapshot(ctx context.Context) ([]topology.Node, error) {
	return r.nodes, nil
}

func (r *staticRegistry) UpdatesSince(ctx context.Context, watermark float64) ([]topology.Update, error) {
	return nil, nil
}

type nopChannel struct{}

func (nopChannel) Publish([]byte) error { return nil }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}

func newTestServer(t *testing.T) *Server {
	reg := &staticRegistry{nodes: []topology.Node{
		{ID: 0, Name: "core", Kind: topology.Hub, GPS: topology.GPS{Lat: 1.5, Lng: 2.5}, Active: true},
		{ID: 1, Name: "north", Kind: topology.Gateway, ReportsTo: 0, Active: true},
	}}
	sched := broadcast.New(broadcast.Config{Period: 10}, reg, nopChannel{}, testLogger())
	require.NoError(t, sched.Load(context.Background()))

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return New("127.0.0.1:0", sched, ws, testLogger())
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodePeriod(t *testing.T, rec *httptest.ResponseRecorder) periodResponse {
	var res periodResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestGetPeriod(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/period", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"period":10}`, rec.Body.String())
}

func TestSetPeriod(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string

		code   int
		period int
		hasErr bool
	}{
		{"json", "application/json", `{"period":3}`, http.StatusOK, 3, false},
		{"json with charset", "application/json; charset=utf-8", `{"period":7}`, http.StatusOK, 7, false},
		{"form", "application/x-www-form-urlencoded", url.Values{"period": {"5"}}.Encode(), http.StatusOK, 5, false},
		{"zero", "application/json", `{"period":0}`, http.StatusBadRequest, 10, true},
		{"negative", "application/x-www-form-urlencoded", "period=-5", http.StatusBadRequest, 10, true},
		{"not a number", "application/x-www-form-urlencoded", "period=fast", http.StatusBadRequest, 10, true},
		{"missing", "application/json", `{}`, http.StatusBadRequest, 10, true},
		{"malformed", "application/json", `{"period":`, http.StatusBadRequest, 10, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newTestServer(t)

			req := httptest.NewRequest(http.MethodPost, "/api/period", strings.NewReader(test.body))
			req.Header.Set("Content-Type", test.contentType)
			rec := do(s, req)

			assert.Equal(t, test.code, rec.Code)
			res := decodePeriod(t, rec)
			assert.Equal(t, test.period, res.Period)
			assert.Equal(t, test.hasErr, res.Error != "")
			assert.Equal(t, test.period, s.ctl.Period())
		})
	}
}

func TestPeriodMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, httptest.NewRequest(http.MethodDelete, "/api/period", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMarkers(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/markers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"0": {"name": "core", "number": 0, "pos": {"lat": 1.5, "lng": 2.5}},
		"1": {"name": "Gateway[1] north", "number": 1, "pos": {"lat": 0, "lng": 0}}
	}`, rec.Body.String())
}

func TestSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"links": {"0": {"connection": "0-1", "active": true, "keyExchange": false, "throughput1": 0, "throughput2": 0}},
		"activation": {"0": true, "1": true}
	}`, rec.Body.String())
}

func TestWebsocketAndMetricsRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "topomap_broadcast_period_seconds")
}

func TestStartShutdown(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())
	s.Shutdown()
	s.Wait()
	s.Shutdown()

	busy := New("256.0.0.1:1", s.ctl, http.NotFoundHandler(), testLogger())
	assert.Error(t, busy.Start())
}
