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
	"database/sql"
	"encoding/json"
	"fmt"
	"io/ioutil"

	"github.com/jmoiron/sqlx"
	// Blank import so that go-sqlite3 is registered before package init
	// https://golang.org/doc/effective_go.html#blank_import
	_ "github.com/mattn/go-sqlite3"
	"github.com/qsgmanager/topomap/topology"
	"github.com/sirupsen/logrus"
)

const sqliteDriver = "sqlite3"

const (
	createInfoTable = `CREATE TABLE IF NOT EXISTS gateway_info (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		ip_addr TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		act_f INTEGER NOT NULL,
		rpt_to INTEGER NOT NULL,
		type TEXT NOT NULL,
		peer_ids TEXT)`

	createStateTable = `CREATE TABLE IF NOT EXISTS gateway_state (
		time REAL NOT NULL,
		node_id INTEGER NOT NULL,
		update_info TEXT NOT NULL,
		PRIMARY KEY (time, node_id))`

	insertNodeQuery = `INSERT OR REPLACE INTO gateway_info
		(id, name, ip_addr, lat, lng, act_f, rpt_to, type, peer_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertUpdateQuery = `INSERT INTO gateway_state (time, node_id, update_info) VALUES (?, ?, ?)`

	selectNodesQuery = `SELECT id, name, ip_addr, lat, lng, act_f, rpt_to, type, peer_ids
		FROM gateway_info ORDER BY id`

	selectUpdatesQuery = `SELECT time, node_id, update_info
		FROM gateway_state WHERE time > ? ORDER BY time, rowid`
)

type nodeRow struct {
	ID      int            `db:"id"`
	Name    string         `db:"name"`
	IPAddr  string         `db:"ip_addr"`
	Lat     float64        `db:"lat"`
	Lng     float64        `db:"lng"`
	ActF    bool           `db:"act_f"`
	RptTo   int            `db:"rpt_to"`
	Type    string         `db:"type"`
	PeerIDs sql.NullString `db:"peer_ids"`
}

type updateRow struct {
	Time       float64 `db:"time"`
	NodeID     int     `db:"node_id"`
	UpdateInfo string  `db:"update_info"`
}

// SQLiteRegistry is a Registry backed by a SQLite database.
type SQLiteRegistry struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// OpenDatabase opens a connection with a specified database.
func OpenDatabase(dataSourceName, dbDriver string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(dbDriver, dataSourceName)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) the database at path and makes sure the
// schema exists. A nil logger discards the warnings about skipped rows.
func OpenSQLite(path string, log *logrus.Logger) (*SQLiteRegistry, error) {
	db, err := OpenDatabase(path, sqliteDriver)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open %v: %v", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if log == nil {
		log = logrus.New()
		log.Out = ioutil.Discard
	}
	r := &SQLiteRegistry{db: db, log: log}
	if err := r.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the node and state tables if they do not exist yet.
func (r *SQLiteRegistry) EnsureSchema() error {
	for _, stmt := range []string{createInfoTable, createStateTable} {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("registry: failed to create schema: %v", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// InsertNode stores or replaces a node.
func (r *SQLiteRegistry) InsertNode(ctx context.Context, n topology.Node) error {
	return insertNode(ctx, r.db, n)
}

// AppendUpdate appends a state update event. Timestamps are unique.
func (r *SQLiteRegistry) AppendUpdate(ctx context.Context, u topology.Update) error {
	return appendUpdate(ctx, r.db, u)
}

func insertNode(ctx context.Context, db sqlx.ExecerContext, n topology.Node) error {
	peers, err := json.Marshal(RecordOf(n).PeerIDs)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, insertNodeQuery,
		n.ID, n.Name, n.IPAddr, n.GPS.Lat, n.GPS.Lng, n.Active, n.ReportsTo, n.Kind.String(), string(peers))
	return err
}

func appendUpdate(ctx context.Context, db sqlx.ExecerContext, u topology.Update) error {
	patch, err := json.Marshal(u.Patch)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, insertUpdateQuery, u.Timestamp, u.NodeID, string(patch))
	return err
}

// Snapshot implements Registry.
func (r *SQLiteRegistry) Snapshot(ctx context.Context) ([]topology.Node, error) {
	var rows []nodeRow
	if err := r.db.SelectContext(ctx, &rows, selectNodesQuery); err != nil {
		return nil, transportError("snapshot", err)
	}

	nodes := make([]topology.Node, 0, len(rows))
	for _, row := range rows {
		kind, err := topology.ParseNodeKind(row.Type)
		if err != nil {
			r.log.Warnf("Skipping node %d: %v", row.ID, err)
			continue
		}
		var peers []int
		if row.PeerIDs.Valid && row.PeerIDs.String != "" {
			if err := json.Unmarshal([]byte(row.PeerIDs.String), &peers); err != nil {
				r.log.Warnf("Ignoring malformed peer list of node %d: %v", row.ID, err)
				peers = nil
			}
		}
		nodes = append(nodes, topology.Node{
			ID:        row.ID,
			Name:      row.Name,
			IPAddr:    row.IPAddr,
			Kind:      kind,
			GPS:       topology.GPS{Lat: row.Lat, Lng: row.Lng},
			ReportsTo: row.RptTo,
			PeerIDs:   topology.NewIDSet(peers...),
			Active:    row.ActF,
		})
	}
	return nodes, nil
}

// UpdatesSince implements Registry. Rows whose patch cannot be decoded are logged
// and left out of the batch.
func (r *SQLiteRegistry) UpdatesSince(ctx context.Context, watermark float64) ([]topology.Update, error) {
	var rows []updateRow
	if err := r.db.SelectContext(ctx, &rows, selectUpdatesQuery, watermark); err != nil {
		return nil, transportError("updates", err)
	}

	updates := make([]topology.Update, 0, len(rows))
	for _, row := range rows {
		var patch topology.NodePatch
		if err := json.Unmarshal([]byte(row.UpdateInfo), &patch); err != nil {
			r.log.Warnf("Skipping malformed update at %v for node %d: %v", row.Time, row.NodeID, err)
			continue
		}
		updates = append(updates, topology.Update{Timestamp: row.Time, NodeID: row.NodeID, Patch: patch})
	}
	return updates, nil
}
