package channel

import (
	"context"
	"strings"
	"testing"
)

func TestStdin_PublishesEachLine(t *testing.T) {
	input := strings.Join([]string{
		`{"from":"+15551234567","body":"one"}`,
		``,
		`# comment`,
		`not json`,
		`{}`,
		`{"fragments":[{"address":"+15557654321","body":"tw"},{"address":"+15557654321","body":"o"}]}`,
	}, "\n")

	q := &recordingQueue{}
	s := NewStdin(StdinConfig{Logger: testWebhookLogger(), In: strings.NewReader(input)})
	if err := s.Start(context.Background(), q); err != nil {
		t.Fatal(err)
	}

	if q.len() != 2 {
		t.Fatalf("expected 2 events, got %d", q.len())
	}
	if q.events[0].Body() != "one" || q.events[1].Body() != "two" {
		t.Errorf("unexpected bodies %q %q", q.events[0].Body(), q.events[1].Body())
	}
	if q.events[0].Channel != "stdin" {
		t.Errorf("channel = %q", q.events[0].Channel)
	}
}

func TestStdin_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &recordingQueue{}
	s := NewStdin(StdinConfig{Logger: testWebhookLogger(), In: strings.NewReader(`{"from":"+1","body":"x"}`)})
	if err := s.Start(ctx, q); err != nil {
		t.Fatal(err)
	}
	if q.len() != 0 {
		t.Error("cancelled reader should not publish")
	}
}
