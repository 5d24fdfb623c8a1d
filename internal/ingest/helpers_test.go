package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"smsgate/internal/bus"
	"smsgate/internal/contacts"
	"smsgate/internal/domain"
	"smsgate/internal/gateway"
)

// captureHandler records log records so tests can assert on logged outcomes.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]capturedRecord
	attrs   []slog.Attr
}

type capturedRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

func newCaptureLogger() (*slog.Logger, *captureHandler) {
	h := &captureHandler{mu: &sync.Mutex{}, records: &[]capturedRecord{}}
	return slog.New(h), h
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := capturedRecord{Level: r.Level, Message: r.Message, Attrs: map[string]string{}}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &captureHandler{mu: h.mu, records: h.records, attrs: merged}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) find(level slog.Level, msgPart string) (capturedRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range *h.records {
		if r.Level == level && strings.Contains(r.Message, msgPart) {
			return r, true
		}
	}
	return capturedRecord{}, false
}

// fakeStore is an in-memory domain.MessageStore with injectable failures.
type fakeStore struct {
	mu            sync.Mutex
	messages      []domain.Message
	conversations map[int64]domain.Conversation
	archived      map[int64]bool
	calls         []string

	insertErr  error
	upsertErr  error
	countErr   error
	archiveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[int64]domain.Conversation),
		archived:      make(map[int64]bool),
	}
}

func (s *fakeStore) InsertMessage(_ context.Context, msg domain.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "insert")
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	msg.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, msg)
	return msg.ID, nil
}

func (s *fakeStore) UpsertConversation(_ context.Context, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "upsert")
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.conversations[conv.ThreadID] = conv
	return nil
}

func (s *fakeStore) CountUnreadConversations(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "count")
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, c := range s.conversations {
		if !c.Read {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) SetArchived(_ context.Context, threadID int64, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "archive")
	if s.archiveErr != nil {
		return s.archiveErr
	}
	s.archived[threadID] = archived
	return nil
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeForwarder records gateway requests.
type fakeForwarder struct {
	mu       sync.Mutex
	requests []domain.GatewayRequest
	err      error
}

func (f *fakeForwarder) Forward(_ context.Context, req domain.GatewayRequest) (*gateway.ResponseSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.ResponseSummary{StatusCode: 200, Body: "ok"}, nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []domain.Notification
	err   error
	panic bool
}

func (n *fakeNotifier) Notify(_ context.Context, note domain.Notification) error {
	if n.panic {
		panic("renderer crashed")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeBlockList map[string]bool

func (b fakeBlockList) Contains(_ context.Context, key string) (bool, error) {
	return b[key], nil
}

type staticDirectory struct{ snap *contacts.Snapshot }

func (d staticDirectory) Snapshot() *contacts.Snapshot { return d.snap }

// recordingPrimary counts hops and records how far the store had got.
type recordingPrimary struct {
	store *fakeStore
	hops  int
	seen  []int
}

func (p *recordingPrimary) Run(_ context.Context, fn func()) {
	p.hops++
	p.seen = append(p.seen, p.store.messageCount())
	fn()
}

type harness struct {
	coord     *Coordinator
	store     *fakeStore
	forwarder *fakeForwarder
	notifier  *fakeNotifier
	logs      *captureHandler
	events    *bus.EventBus
	blocked   fakeBlockList
}

const (
	knownSender   = "+1 (555) 123-4567"
	unknownSender = "+15559990000"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, logs := newCaptureLogger()
	h := &harness{
		store:     newFakeStore(),
		forwarder: &fakeForwarder{},
		notifier:  &fakeNotifier{},
		logs:      logs,
		events:    bus.NewEventBus(logger),
		blocked:   fakeBlockList{},
	}
	snap := contacts.NewSnapshot([]domain.Contact{
		{Name: "Alice", PhotoRef: "/photos/alice.jpg", Numbers: []string{"+15551234567"}},
	})
	h.coord = NewCoordinator(CoordinatorConfig{
		Store:      h.store,
		Forwarder:  h.forwarder,
		Resolver:   contacts.NewResolver(h.blocked, logger),
		Directory:  staticDirectory{snap: snap},
		Notifier:   h.notifier,
		Events:     h.events,
		LoadAvatar: func(ref string) ([]byte, error) {
			if ref == "" {
				return nil, nil
			}
			return []byte("avatar:" + ref), nil
		},
		Now:    func() time.Time { return fixedNow },
		Logger: logger,
	})
	return h
}

func smsEvent(address string, parts ...string) domain.InboundEvent {
	evt := domain.InboundEvent{
		ID:             "evt-1",
		Channel:        "test",
		SubscriptionID: 2,
	}
	for _, p := range parts {
		evt.Fragments = append(evt.Fragments, domain.Fragment{Address: address, Body: p, Status: domain.StatusNone})
	}
	return evt
}

var errBoom = errors.New("boom")
