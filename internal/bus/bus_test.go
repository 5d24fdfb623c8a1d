package bus

import (
	"fmt"
	"testing"
	"time"

	"smsgate/internal/domain"
	"smsgate/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func event(id string) domain.InboundEvent {
	return domain.InboundEvent{
		ID:        id,
		Channel:   "test",
		Fragments: []domain.Fragment{{Address: "+15551234567", Body: "hi"}},
	}
}

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(4, testEBLogger())
	defer b.Close()

	b.Publish(event("a"))
	select {
	case got := <-b.Subscribe():
		if got.ID != "a" {
			t.Errorf("expected event a, got %q", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestInMemoryBus_PublishNeverBlocks(t *testing.T) {
	b := New(1, testEBLogger())
	defer b.Close()

	start := time.Now()
	b.Publish(event("a"))
	b.Publish(event("b"))
	b.Publish(event("c"))
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Publish blocked for %v", elapsed)
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case e := <-b.Subscribe():
			seen[e.ID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d events delivered", i)
		}
	}
	if !seen["a"] || !seen["b"] || !seen["c"] {
		t.Errorf("missing events: %v", seen)
	}
}

func TestInMemoryBus_DropAfterTimeout(t *testing.T) {
	b := New(1, testEBLogger())
	b.timeout = 20 * time.Millisecond
	before := testutil.ToFloat64(metrics.QueueOverflows)

	b.Publish(event("a"))
	b.Publish(event("b"))

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(metrics.QueueOverflows) == before {
		if time.Now().After(deadline) {
			t.Fatal("overflow not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.Close()

	var ids []string
	for e := range b.Subscribe() {
		ids = append(ids, e.ID)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("expected only event a to survive, got %v", ids)
	}
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(1, testEBLogger())
	b.Close()
	b.Close()

	// Must not panic.
	b.Publish(event("late"))

	if _, ok := <-b.Subscribe(); ok {
		t.Error("expected closed channel")
	}
}

func TestInMemoryBus_CloseDeliversPending(t *testing.T) {
	b := New(2, testEBLogger())
	for i := 0; i < 6; i++ {
		b.Publish(event(fmt.Sprintf("e%d", i)))
	}

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	var ids []string
	for e := range b.Subscribe() {
		ids = append(ids, e.ID)
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	if len(ids) != 6 {
		t.Fatalf("expected 6 delivered events, got %d: %v", len(ids), ids)
	}

	// Events offered after Close are refused.
	b.Publish(event("late"))
}

func TestInMemoryBus_CloseWaitsForHandOff(t *testing.T) {
	b := New(1, testEBLogger())
	b.Publish(event("a"))
	b.Publish(event("b"))

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while event b was still pending")
	case <-time.After(50 * time.Millisecond):
	}

	var ids []string
	for e := range b.Subscribe() {
		ids = append(ids, e.ID)
	}
	<-closed
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("expected [a b], got %v", ids)
	}
}
