package bus

import (
	"log/slog"
	"sync"
	"time"

	"smsgate/internal/domain"
	"smsgate/internal/metrics"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based queue between transports and the
// ingestion pipeline.
type InMemoryBus struct {
	inbound   chan domain.InboundEvent
	pending   sync.WaitGroup // hand-offs waiting for buffer space
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	logger    *slog.Logger
	timeout   time.Duration
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundEvent, bufferSize),
		logger:  logger,
		timeout: publishTimeout,
	}
}

// Publish never blocks the caller. When the buffer is full the hand-off
// continues in a goroutine that waits up to 10 seconds before dropping.
func (b *InMemoryBus) Publish(evt domain.InboundEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "event_id", evt.ID)
		return
	}

	select {
	case b.inbound <- evt:
		return
	default:
	}

	b.logger.Warn("inbound bus full, handing off", "event_id", evt.ID, "channel", evt.Channel)
	// Registered under the read lock so Close waits for it.
	b.pending.Add(1)
	go b.handOff(evt)
}

func (b *InMemoryBus) handOff(evt domain.InboundEvent) {
	defer b.pending.Done()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.inbound <- evt:
		b.logger.Info("event delivered after wait", "event_id", evt.ID)
	case <-timer.C:
		metrics.QueueOverflows.Inc()
		b.logger.Error("event dropped: bus full",
			"event_id", evt.ID,
			"channel", evt.Channel,
			"waited", b.timeout,
		)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundEvent {
	return b.inbound
}

// Close stops accepting events, waits for pending hand-offs to be delivered
// (or to time out) and then closes the subscription channel. The subscriber
// must keep reading while Close runs.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.pending.Wait()
	b.closeOnce.Do(func() { close(b.inbound) })
}
