// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/interterm/lib/logging"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading notification: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return decoded
}

func TestPublishInOrder(t *testing.T) {
	t.Parallel()
	hub := NewHub(logging.Discard().Logger)
	conn := dialHub(t, hub)

	hub.Publish(Notification{Type: AutocompleteVisibility, SessionID: "s1", Payload: map[string]bool{"visible": false}})
	hub.Publish(Notification{Type: HistoryUpdated, SessionID: "s1", Payload: map[string]string{"command": "ls"}})

	first := readNotification(t, conn)
	if first["type"] != AutocompleteVisibility || first["session_id"] != "s1" {
		t.Errorf("first = %v", first)
	}
	second := readNotification(t, conn)
	if second["type"] != HistoryUpdated {
		t.Errorf("second = %v", second)
	}
}

func TestSubscriberRemovedOnClose(t *testing.T) {
	t.Parallel()
	hub := NewHub(logging.Discard().Logger)
	conn := dialHub(t, hub)
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed subscriber still registered")
		}
		time.Sleep(time.Millisecond)
	}
	// Publishing with no subscribers is a no-op.
	hub.Publish(Notification{Type: PromptReturned})
}

func TestCheckLocalOrigin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:9000", true},
		{"https://localhost", true},
		{"https://example.com", false},
		{"http://localhost.evil.example", false},
		{"http://127.0.0.1.nip.io.evil.example", false},
		{"http://localhostattacker.com", false},
		{"http://localhost@evil.example", false},
		{"file://localhost/etc/passwd", false},
		{"null", false},
	}
	for _, test := range tests {
		request := &http.Request{Header: http.Header{}}
		if test.origin != "" {
			request.Header.Set("Origin", test.origin)
		}
		if got := checkLocalOrigin(request); got != test.want {
			t.Errorf("checkLocalOrigin(%q) = %v, want %v", test.origin, got, test.want)
		}
	}
}
