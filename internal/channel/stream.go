package channel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"smsgate/internal/bus"
	"smsgate/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	streamSendBuffer = 64
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamConfig configures the live event stream.
type StreamConfig struct {
	Events *bus.EventBus
	Types  []string // event types pushed to clients; empty means all
	Logger *slog.Logger
}

// StreamMessage is one frame sent to stream clients.
type StreamMessage struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stream pushes pipeline events (new messages, badge changes, drops) to
// WebSocket clients so inbox views can refresh without polling. Clients
// may pass ?since=<unix seconds> to receive buffered history first.
type Stream struct {
	events   *bus.EventBus
	types    map[string]bool
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*streamClient]struct{}
	handlers []string
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewStream(cfg StreamConfig) *Stream {
	s := &Stream{
		events:  cfg.Events,
		logger:  cfg.Logger,
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if len(cfg.Types) > 0 {
		s.types = make(map[string]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			s.types[t] = true
		}
	}
	s.handlers = append(s.handlers, cfg.Events.On(bus.AllEvents, s.broadcast))
	return s
}

func (s *Stream) wants(eventType string) bool {
	return s.types == nil || s.types[eventType]
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "err", err)
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, streamSendBuffer)}

	if since := r.URL.Query().Get("since"); since != "" {
		if sec, err := strconv.ParseInt(since, 10, 64); err == nil {
			for _, e := range s.events.Replay(bus.AllEvents, time.Unix(sec, 0)) {
				if s.wants(e.Type) {
					c.enqueue(encodeEvent(e))
				}
			}
		}
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	metrics.StreamClients.Set(float64(n))
	s.mu.Unlock()
	s.logger.Info("stream client connected", "remote", r.RemoteAddr, "clients", n)

	go s.writeLoop(c)
	s.readLoop(c)
}

// readLoop discards client frames; it exists to notice disconnects.
func (s *Stream) readLoop(c *streamClient) {
	defer s.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read error", "err", err)
			}
			return
		}
	}
}

func (s *Stream) writeLoop(c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast runs on the emitting goroutine and must not block it: a client
// whose buffer is full misses the frame.
func (s *Stream) broadcast(e bus.Event) {
	if !s.wants(e.Type) {
		return
	}
	data := encodeEvent(e)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if !c.enqueue(data) {
			s.logger.Debug("stream client too slow, frame dropped", "type", e.Type)
		}
	}
}

func (c *streamClient) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (s *Stream) remove(c *streamClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	metrics.StreamClients.Set(float64(len(s.clients)))
	s.mu.Unlock()
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close unsubscribes from the event bus and disconnects every client.
func (s *Stream) Close() {
	for _, id := range s.handlers {
		s.events.Off(bus.AllEvents, id)
	}
	s.handlers = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	metrics.StreamClients.Set(0)
}

func encodeEvent(e bus.Event) []byte {
	data, _ := json.Marshal(StreamMessage{Type: e.Type, Payload: e.Payload, Timestamp: e.Timestamp})
	return data
}
