package channel

import (
	"errors"
	"fmt"
	"time"

	"smsgate/internal/domain"
	"smsgate/internal/phone"
)

// maxFragments bounds how many parts one event may carry.
const maxFragments = 255

// EventPayload is the JSON shape transports accept. Single-part messages
// may use the flat From/Subject/Body fields instead of Fragments.
type EventPayload struct {
	From           string            `json:"from,omitempty"`
	Subject        string            `json:"subject,omitempty"`
	Body           string            `json:"body,omitempty"`
	Status         *int              `json:"status,omitempty"`
	Fragments      []FragmentPayload `json:"fragments,omitempty"`
	SubscriptionID *int              `json:"subscription_id,omitempty"`
	ReceivedAt     *time.Time        `json:"received_at,omitempty"`
}

// FragmentPayload is one part of a multi-part message. A missing status
// maps to domain.StatusNone, as for flat payloads.
type FragmentPayload struct {
	Address string `json:"address"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
	Status  *int   `json:"status,omitempty"`
}

func statusOrNone(status *int) int {
	if status == nil {
		return domain.StatusNone
	}
	return *status
}

// ToEvent validates p and builds the event delivered on channel.
func (p EventPayload) ToEvent(channel string) (domain.InboundEvent, error) {
	if len(p.Fragments) > maxFragments {
		return domain.InboundEvent{}, fmt.Errorf("too many fragments: %d", len(p.Fragments))
	}
	frags := make([]domain.Fragment, 0, max(len(p.Fragments), 1))
	for _, f := range p.Fragments {
		frags = append(frags, domain.Fragment{
			Address: f.Address,
			Subject: f.Subject,
			Body:    f.Body,
			Status:  statusOrNone(f.Status),
		})
	}
	if len(frags) == 0 {
		if p.From == "" && p.Body == "" {
			return domain.InboundEvent{}, errors.New("event has no fragments")
		}
		frags = append(frags, domain.Fragment{Address: p.From, Subject: p.Subject, Body: p.Body, Status: statusOrNone(p.Status)})
	}
	first := frags[0].Address
	for i, f := range frags[1:] {
		if !sameSender(first, f.Address) {
			return domain.InboundEvent{}, fmt.Errorf("fragment %d has sender %q, want %q", i+1, f.Address, first)
		}
	}

	evt := domain.InboundEvent{
		ID:             domain.NewEventID(),
		Channel:        channel,
		Fragments:      frags,
		SubscriptionID: domain.SubscriptionUnknown,
		ReceivedAt:     time.Now(),
	}
	if p.SubscriptionID != nil {
		evt.SubscriptionID = *p.SubscriptionID
	}
	if p.ReceivedAt != nil && !p.ReceivedAt.IsZero() {
		evt.ReceivedAt = *p.ReceivedAt
	}
	return evt, nil
}

func sameSender(a, b string) bool {
	return phone.Normalize(a) == phone.Normalize(b)
}
