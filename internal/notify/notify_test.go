package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"smsgate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type notifierFunc func(context.Context, domain.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

func sample() domain.Notification {
	return domain.Notification{
		MessageID:  7,
		Address:    "+15551234567",
		SenderName: "Alice",
		Body:       "hello there",
		ThreadID:   99,
	}
}

func TestLog_Notify(t *testing.T) {
	if err := NewLog(testLogger()).Notify(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
}

func TestMulti_FanOut(t *testing.T) {
	var got []int64
	rec := notifierFunc(func(_ context.Context, n domain.Notification) error {
		got = append(got, n.MessageID)
		return nil
	})
	m := NewMulti(testLogger(), Named{"a", rec}, Named{"b", rec})

	if err := m.Notify(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected both backends called, got %v", got)
	}
}

func TestMulti_IsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	called := false
	m := NewMulti(testLogger(),
		Named{"failing", notifierFunc(func(context.Context, domain.Notification) error { return boom })},
		Named{"panicking", notifierFunc(func(context.Context, domain.Notification) error { panic("bad") })},
		Named{"ok", notifierFunc(func(context.Context, domain.Notification) error { called = true; return nil })},
	)

	err := m.Notify(context.Background(), sample())
	if !called {
		t.Error("healthy backend skipped after failures")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to wrap boom, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "panicking: panic: bad") {
		t.Errorf("expected recovered panic in error, got %v", err)
	}
}

type telegramCall struct {
	method  string
	chatID  string
	text    string
	caption string
}

func fakeTelegram(t *testing.T, failSend bool) (*httptest.Server, *[]telegramCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []telegramCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"gate","username":"smsgate_bot"}}`))
			return
		case "sendMessage", "sendPhoto":
			mu.Lock()
			calls = append(calls, telegramCall{
				method:  method,
				chatID:  r.FormValue("chat_id"),
				text:    r.FormValue("text"),
				caption: r.FormValue("caption"),
			})
			mu.Unlock()
			if failSend {
				w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestTelegram_Notify(t *testing.T) {
	srv, calls := fakeTelegram(t, false)
	tg, err := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		ChatIDs:     []int64{42, 43},
		APIEndpoint: srv.URL + "/bot%s/%s",
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := tg.Notify(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 2 {
		t.Fatalf("expected one message per chat, got %d", len(*calls))
	}
	c := (*calls)[0]
	if c.method != "sendMessage" || c.chatID != "42" {
		t.Errorf("unexpected call %+v", c)
	}
	if !strings.HasPrefix(c.text, "New SMS from Alice (+15551234567)") || !strings.HasSuffix(c.text, "hello there") {
		t.Errorf("unexpected text %q", c.text)
	}
}

func TestTelegram_NotifyWithAvatar(t *testing.T) {
	srv, calls := fakeTelegram(t, false)
	tg, err := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		ChatIDs:     []int64{42},
		APIEndpoint: srv.URL + "/bot%s/%s",
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	n := sample()
	n.Avatar = []byte("\x89PNG fake")
	if err := tg.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 2 {
		t.Fatalf("expected photo then text, got %+v", *calls)
	}
	if (*calls)[0].method != "sendPhoto" || !strings.Contains((*calls)[0].caption, "Alice") {
		t.Errorf("unexpected photo call %+v", (*calls)[0])
	}
	if (*calls)[1].text != "hello there" {
		t.Errorf("body after photo = %q", (*calls)[1].text)
	}
}

func TestTelegram_SendError(t *testing.T) {
	srv, _ := fakeTelegram(t, true)
	tg, err := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		ChatIDs:     []int64{42},
		APIEndpoint: srv.URL + "/bot%s/%s",
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tg.Notify(context.Background(), sample()); err == nil {
		t.Error("expected error from rejected send")
	}
}

func TestNewTelegram_Validation(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{ChatIDs: []int64{1}, Logger: testLogger()}); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "x", Logger: testLogger()}); err == nil {
		t.Error("expected error for missing chat IDs")
	}
}

func TestFormatHeader(t *testing.T) {
	tests := []struct {
		name, sender, address, want string
	}{
		{"named", "Alice", "+1555", "New SMS from Alice (+1555)"},
		{"unresolved", "+1555", "+1555", "New SMS from +1555"},
		{"no name", "", "+1555", "New SMS from +1555"},
		{"unknown", "", "", "New SMS from unknown sender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatHeader(domain.Notification{SenderName: tt.sender, Address: tt.address})
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("unexpected %v", got)
	}

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitMessage(long, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) {
		t.Errorf("expected newline split, got %q", got)
	}

	got = splitMessage(strings.Repeat("é", 10), 5)
	for _, c := range got {
		if !strings.HasPrefix(c, "é") {
			t.Errorf("chunk split inside a rune: %q", c)
		}
	}
	if strings.Join(got, "") != strings.Repeat("é", 10) {
		t.Error("chunks lost data")
	}
}
