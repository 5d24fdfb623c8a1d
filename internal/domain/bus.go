package domain

// EventQueue hands inbound events from transports to the ingestion pipeline.
type EventQueue interface {
	// Publish must return without waiting for processing.
	Publish(evt InboundEvent)
	Subscribe() <-chan InboundEvent
	// Close refuses new events and returns once every accepted event is
	// on the subscription channel, which it then closes.
	Close()
}
