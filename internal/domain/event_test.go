package domain

import "testing"

func TestInboundEvent_ConcatenatesFragmentsInOrder(t *testing.T) {
	evt := InboundEvent{Fragments: []Fragment{
		{Address: "+15550001", Body: "Hello, ", Status: 0},
		{Address: "+15550001", Body: "world", Status: 0},
		{Address: "+15550001", Body: "!", Subject: "greeting", Status: 32},
	}}

	if got := evt.Body(); got != "Hello, world!" {
		t.Errorf("expected concatenated body, got %q", got)
	}
	if got := evt.Address(); got != "+15550001" {
		t.Errorf("expected address, got %q", got)
	}
	if got := evt.Subject(); got != "greeting" {
		t.Errorf("expected subject of last fragment, got %q", got)
	}
	if got := evt.Status(); got != 32 {
		t.Errorf("expected status of last fragment, got %d", got)
	}
}

func TestInboundEvent_NoFragments(t *testing.T) {
	var evt InboundEvent
	if evt.Body() != "" || evt.Address() != "" || evt.Subject() != "" {
		t.Error("empty event should yield empty strings")
	}
	if evt.Status() != StatusNone {
		t.Errorf("expected StatusNone, got %d", evt.Status())
	}
}

func TestNewEventID_Unique(t *testing.T) {
	a, b := NewEventID(), NewEventID()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
