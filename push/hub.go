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

// Package push delivers serialized topology events to subscribed viewers.
package push

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/qsgmanager/topomap/metrics"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Viewers only listen.
	maxMessageSize = 512

	// Number of payloads buffered per subscriber before it is considered too slow.
	queueSize = 16
)

// ErrClosed is returned by Publish once the hub has been closed.
var ErrClosed = errors.New("push: hub closed")

// Channel is the outbound side of the synchroniser: one call per tick with the
// serialized push event.
type Channel interface {
	Publish(payload []byte) error
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub is a Channel fanning payloads out to websocket subscribers.
type Hub struct {
	log      *logrus.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	last   []byte
	closed bool
}

// NewHub returns a hub ready to accept subscribers through ServeHTTP.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// map viewers are served from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish queues payload for every subscriber and remembers it for the ones that
// connect later. Subscribers whose queue is full are disconnected.
func (h *Hub) Publish(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	msg := make([]byte, len(payload))
	copy(msg, payload)
	h.last = msg

	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			h.log.Warnf("Dropping slow subscriber %v", remoteAddr(sub))
			delete(h.subs, sub)
			sub.close()
		}
	}
	metrics.Subscribers.Set(float64(len(h.subs)))
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and makes further publications fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close()
	}
	metrics.Subscribers.Set(0)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("failed to upgrade: %v", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, queueSize),
	}
	if !h.add(sub) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.log.Infof("New subscriber %v", conn.RemoteAddr())

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if h.last != nil {
		sub.send <- h.last
	}
	h.subs[sub] = struct{}{}
	metrics.Subscribers.Set(float64(len(h.subs)))
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		sub.close()
		metrics.Subscribers.Set(float64(len(h.subs)))
	}
}

// readPump discards anything the viewer sends and keeps the read deadline fresh.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)

	sub.conn.SetReadLimit(maxMessageSize)
	if err := sub.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.log.Errorf("failed to set read deadline: %v", err)
		return
	}
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugf("subscriber %v went away: %v", sub.conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.remove(sub)
				return
			}
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Errorf("failed to push to %v: %v", sub.conn.RemoteAddr(), err)
				h.remove(sub)
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				h.log.Errorf("ping error: %v", err)
				h.remove(sub)
				return
			}
		}
	}
}

func remoteAddr(sub *subscriber) string {
	if sub.conn == nil {
		return "<detached>"
	}
	return sub.conn.RemoteAddr().String()
}
