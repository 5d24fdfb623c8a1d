package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// redirect sends every request to srv regardless of its original host.
type redirect struct {
	target *url.URL
}

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	req.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

type chatPost struct {
	path    string
	content string
	hasFile bool
}

func fakeDiscord(t *testing.T, status int) (*http.Client, *[]chatPost) {
	t.Helper()
	var mu sync.Mutex
	var posts []chatPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := chatPost{path: r.URL.Path}
		var payload struct {
			Content string `json:"content"`
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			r.ParseMultipartForm(1 << 20)
			json.Unmarshal([]byte(r.FormValue("payload_json")), &payload)
			p.hasFile = r.MultipartForm != nil && len(r.MultipartForm.File) > 0
		} else {
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &payload)
		}
		p.content = payload.Content
		mu.Lock()
		posts = append(posts, p)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			w.Write([]byte(`{"message":"Missing Access","code":50001}`))
			return
		}
		w.Write([]byte(`{"id":"1","channel_id":"c1","content":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	return &http.Client{Transport: redirect{target: u}}, &posts
}

func TestDiscord_Notify(t *testing.T) {
	client, posts := fakeDiscord(t, http.StatusOK)
	d, err := NewDiscord(DiscordConfig{
		Token:      "abc",
		ChannelIDs: []string{"111", "222"},
		HTTPClient: client,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Notify(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	if len(*posts) != 2 {
		t.Fatalf("expected one post per channel, got %d", len(*posts))
	}
	p := (*posts)[0]
	if !strings.HasSuffix(p.path, "/channels/111/messages") {
		t.Errorf("unexpected path %q", p.path)
	}
	if !strings.HasPrefix(p.content, "**New SMS from Alice (+15551234567)**") || !strings.HasSuffix(p.content, "hello there") {
		t.Errorf("unexpected content %q", p.content)
	}
	if p.hasFile {
		t.Error("no avatar was given, expected no attachment")
	}
}

func TestDiscord_NotifyWithAvatar(t *testing.T) {
	client, posts := fakeDiscord(t, http.StatusOK)
	d, err := NewDiscord(DiscordConfig{Token: "abc", ChannelIDs: []string{"111"}, HTTPClient: client, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	n := sample()
	n.Avatar = []byte("jpeg")
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(*posts) != 1 || !(*posts)[0].hasFile {
		t.Fatalf("expected one post with an attachment, got %+v", *posts)
	}
}

func TestDiscord_SendError(t *testing.T) {
	client, _ := fakeDiscord(t, http.StatusForbidden)
	d, err := NewDiscord(DiscordConfig{Token: "abc", ChannelIDs: []string{"111"}, HTTPClient: client, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Notify(context.Background(), sample()); err == nil {
		t.Fatal("expected error from rejected post")
	}
}

func TestNewDiscord_Validation(t *testing.T) {
	if _, err := NewDiscord(DiscordConfig{ChannelIDs: []string{"1"}, Logger: testLogger()}); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewDiscord(DiscordConfig{Token: "x", Logger: testLogger()}); err == nil {
		t.Error("expected error for missing channel IDs")
	}
}

func fakeSlack(t *testing.T, ok bool) (string, *[]chatPost) {
	t.Helper()
	var mu sync.Mutex
	var posts []chatPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		posts = append(posts, chatPost{path: r.URL.Path + "?channel=" + r.FormValue("channel"), content: r.FormValue("text")})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000100"}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/", &posts
}

func TestSlack_Notify(t *testing.T) {
	apiURL, posts := fakeSlack(t, true)
	s, err := NewSlack(SlackConfig{Token: "xoxb-1", ChannelIDs: []string{"C1"}, APIURL: apiURL, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	n := sample()
	n.Body = "win <b>big</b> & more"
	if err := s.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(*posts) != 1 {
		t.Fatalf("expected one post, got %d", len(*posts))
	}
	p := (*posts)[0]
	if p.path != "/chat.postMessage?channel=C1" {
		t.Errorf("unexpected call %q", p.path)
	}
	if !strings.HasPrefix(p.content, "*New SMS from Alice (+15551234567)*") {
		t.Errorf("unexpected header in %q", p.content)
	}
	if !strings.Contains(p.content, "&lt;b&gt;") || !strings.Contains(p.content, "&amp;") {
		t.Errorf("body not escaped: %q", p.content)
	}
}

func TestSlack_APIError(t *testing.T) {
	apiURL, _ := fakeSlack(t, false)
	s, err := NewSlack(SlackConfig{Token: "xoxb-1", ChannelIDs: []string{"C1", "C2"}, APIURL: apiURL, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Notify(context.Background(), sample())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
	if !strings.Contains(err.Error(), "C1") || !strings.Contains(err.Error(), "C2") {
		t.Errorf("expected both channels reported: %v", err)
	}
}
