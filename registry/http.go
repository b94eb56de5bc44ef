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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qsgmanager/topomap/topology"
)

const (
	// DefaultTimeout bounds a single registry request.
	DefaultTimeout = 3 * time.Second

	nodesPath   = "/nodes"
	updatesPath = "/updates"

	// upper bound on a response body, well above any realistic fleet
	maxResponseSize = 16 << 20
)

// HTTPRegistry fetches nodes and updates from a registry service.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistry returns a registry client for baseURL (e.g. http://127.0.0.1:5000).
// A non-positive timeout selects DefaultTimeout.
func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Snapshot implements Registry.
func (r *HTTPRegistry) Snapshot(ctx context.Context) ([]topology.Node, error) {
	var records []NodeRecord
	if err := r.getJSON(ctx, nodesPath, &records); err != nil {
		return nil, transportError("snapshot", err)
	}
	nodes := make([]topology.Node, len(records))
	for i, rec := range records {
		nodes[i] = rec.Node()
	}
	return nodes, nil
}

// UpdatesSince implements Registry.
func (r *HTTPRegistry) UpdatesSince(ctx context.Context, watermark float64) ([]topology.Update, error) {
	endpoint := updatesPath + "?since=" + url.QueryEscape(strconv.FormatFloat(watermark, 'f', -1, 64))
	var updates []topology.Update
	if err := r.getJSON(ctx, endpoint, &updates); err != nil {
		return nil, transportError("updates", err)
	}
	return updates, nil
}

func (r *HTTPRegistry) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: malformed response: %v", path, err)
	}
	return nil
}
