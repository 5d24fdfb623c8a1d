package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler_ExposesPipelineMetrics(t *testing.T) {
	EventsReceived.WithLabelValues("test").Inc()
	EventsDropped.WithLabelValues("keyword").Inc()
	UnreadConversations.Set(3)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, name := range []string{
		"smsgate_events_received_total",
		"smsgate_events_dropped_total",
		"smsgate_unread_conversations 3",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("expected %q in metrics output", name)
		}
	}
}

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(MessagesStored)
	MessagesStored.Inc()
	if got := testutil.ToFloat64(MessagesStored); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}
