package channel

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"smsgate/internal/bus"

	"github.com/gorilla/websocket"
)

func dialStream(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func waitClients(t *testing.T, s *Stream, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, s.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestStream(t *testing.T, types ...string) (*Stream, *bus.EventBus, *httptest.Server) {
	t.Helper()
	events := bus.NewEventBus(testWebhookLogger())
	s := NewStream(StreamConfig{Events: events, Types: types, Logger: testWebhookLogger()})
	wh := NewWebhook(WebhookConfig{Logger: testWebhookLogger()})
	wh.Handle("/events", s)
	srv := httptest.NewServer(wh.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, events, srv
}

func TestStream_BroadcastsEvents(t *testing.T) {
	s, events, srv := newTestStream(t)
	a := dialStream(t, srv, "")
	b := dialStream(t, srv, "")
	waitClients(t, s, 2)

	events.Emit(bus.Event{Type: bus.EventBadgeUpdated, Payload: map[string]any{"count": 3}})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readFrame(t, conn)
		if msg.Type != bus.EventBadgeUpdated {
			t.Fatalf("type = %q", msg.Type)
		}
		if msg.Payload["count"] != float64(3) {
			t.Fatalf("payload = %v", msg.Payload)
		}
	}
}

func TestStream_FiltersTypes(t *testing.T) {
	s, events, srv := newTestStream(t, bus.EventMessagesRefresh)
	conn := dialStream(t, srv, "")
	waitClients(t, s, 1)

	events.Emit(bus.Event{Type: bus.EventMessageReceived})
	events.Emit(bus.Event{Type: bus.EventMessagesRefresh, Payload: map[string]any{"thread_id": 7}})

	msg := readFrame(t, conn)
	if msg.Type != bus.EventMessagesRefresh {
		t.Fatalf("expected only refresh events, got %q", msg.Type)
	}
}

func TestStream_ReplaysHistory(t *testing.T) {
	s, events, srv := newTestStream(t)
	since := time.Now().Add(-time.Minute)
	events.Emit(bus.Event{Type: bus.EventMessageStored, Payload: map[string]any{"message_id": 1}})

	conn := dialStream(t, srv, "?since="+strconv.FormatInt(since.Unix(), 10))
	msg := readFrame(t, conn)
	if msg.Type != bus.EventMessageStored {
		t.Fatalf("expected replayed event, got %q", msg.Type)
	}
	waitClients(t, s, 1)
}

func TestStream_ClientDisconnect(t *testing.T) {
	s, events, srv := newTestStream(t)
	conn := dialStream(t, srv, "")
	waitClients(t, s, 1)

	conn.Close()
	waitClients(t, s, 0)

	// Emitting with no clients must not block or panic.
	events.Emit(bus.Event{Type: bus.EventBadgeUpdated})
}

func TestStream_CloseUnsubscribes(t *testing.T) {
	events := bus.NewEventBus(testWebhookLogger())
	s := NewStream(StreamConfig{Events: events, Logger: testWebhookLogger()})
	s.Close()
	s.broadcast(bus.Event{Type: bus.EventBadgeUpdated}) // no clients, no panic
	events.Emit(bus.Event{Type: bus.EventBadgeUpdated})
	if s.Clients() != 0 {
		t.Fatal("expected no clients after close")
	}
}
