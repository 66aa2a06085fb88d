// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify fans companion notifications out to websocket
// subscribers, such as a desktop UI rendering the autocomplete popup.
//
// Every subscriber receives every notification, in publish order, as
// one JSON text message. A subscriber that falls more than
// subscriberBuffer messages behind is disconnected rather than allowed
// to slow the companion down.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Notification types.
const (
	EditBufferChanged      = "edit-buffer-changed"
	AutocompleteVisibility = "autocomplete-visibility"
	LocationChanged        = "location-changed"
	PromptReturned         = "prompt-returned"
	ProcessChanged         = "process-changed"
	HistoryUpdated         = "history-updated"
	KeybindingPressed      = "keybinding-pressed"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

// Notification is one event published to subscribers.
type Notification struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Publisher is the part of Hub that hook handlers use.
type Publisher interface {
	Publish(notification Notification)
	Subscribers() int
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for message := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// Hub tracks subscribers and broadcasts to them. It is an
// http.Handler serving the websocket upgrade.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

// NewHub returns a hub with no subscribers. Only same-host origins
// may subscribe.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		upgrader:    websocket.Upgrader{CheckOrigin: checkLocalOrigin},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// checkLocalOrigin admits requests without an Origin header (native
// clients) and browser origins whose host is exactly a loopback name.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ServeHTTP upgrades the request and subscribes the connection until
// it closes. Subscribers are write-only; anything they send is
// discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	go sub.writePump()
	h.logger.Debug("notification subscriber connected", "remote", r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(sub)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

// Publish sends notification to every subscriber.
func (h *Hub) Publish(notification Notification) {
	data, err := json.Marshal(notification)
	if err != nil {
		h.logger.Error("encoding notification", "type", notification.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("notification subscriber too slow, disconnecting")
			delete(h.subscribers, sub)
			close(sub.send)
		}
	}
}

// Subscribers is the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}
