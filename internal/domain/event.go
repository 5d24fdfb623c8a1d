package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusNone is the delivery status reported when the transport has none.
const StatusNone = -1

// SubscriptionUnknown marks an event whose carrier subscription is not known.
const SubscriptionUnknown = -1

// Fragment is one raw part of a multi-part SMS as delivered by the transport.
type Fragment struct {
	Address string `json:"address"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
	Status  int    `json:"status"`
}

// InboundEvent groups the fragments of one logical message. All fragments
// share a sender address and arrival time.
type InboundEvent struct {
	ID             string
	Channel        string // transport that delivered the event
	Fragments      []Fragment
	SubscriptionID int
	ReceivedAt     time.Time
}

// NewEventID returns a random identifier used to correlate log lines of one event.
func NewEventID() string {
	return uuid.NewString()
}

// Address returns the sender address. Fragments are read in delivery order
// and the last one wins, matching how multi-part PDUs are reassembled.
func (e InboundEvent) Address() string {
	var address string
	for _, f := range e.Fragments {
		address = f.Address
	}
	return address
}

// Subject returns the subject of the last fragment.
func (e InboundEvent) Subject() string {
	var subject string
	for _, f := range e.Fragments {
		subject = f.Subject
	}
	return subject
}

// Status returns the delivery status of the last fragment, or StatusNone.
func (e InboundEvent) Status() int {
	status := StatusNone
	for _, f := range e.Fragments {
		status = f.Status
	}
	return status
}

// Body concatenates fragment bodies in delivery order.
func (e InboundEvent) Body() string {
	var sb strings.Builder
	for _, f := range e.Fragments {
		sb.WriteString(f.Body)
	}
	return sb.String()
}
