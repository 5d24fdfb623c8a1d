// Package ingest runs inbound SMS events through filtering, gateway
// forwarding, contact resolution, persistence and notification.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smsgate/internal/bus"
	"smsgate/internal/contacts"
	"smsgate/internal/domain"
	"smsgate/internal/filter"
	"smsgate/internal/gateway"
	"smsgate/internal/metrics"
	"smsgate/internal/phone"
)

// GatewayErrorSuffix precedes the forwarding error appended to a stored body.
const GatewayErrorSuffix = "\n\nSMS TO GATEWAY ERROR:\n"

// Forwarder relays message content to the external gateway.
type Forwarder interface {
	Forward(ctx context.Context, req domain.GatewayRequest) (*gateway.ResponseSummary, error)
}

// Directory provides the current contact snapshot.
type Directory interface {
	Snapshot() *contacts.Snapshot
}

// CoordinatorConfig holds the collaborators of a Coordinator.
type CoordinatorConfig struct {
	Store     domain.MessageStore
	Forwarder Forwarder
	Resolver  *contacts.Resolver
	Directory Directory
	Notifier  domain.Notifier
	Events    *bus.EventBus // optional
	Primary   PrimaryContext

	// LoadAvatar reads a contact photo; defaults to contacts.LoadAvatar.
	LoadAvatar func(string) ([]byte, error)
	Now        func() time.Time
	Logger     *slog.Logger
}

// Coordinator processes one event at a time per call; it holds no
// per-event state and is safe for concurrent use.
type Coordinator struct {
	store      domain.MessageStore
	forwarder  Forwarder
	resolver   *contacts.Resolver
	directory  Directory
	notifier   domain.Notifier
	events     *bus.EventBus
	primary    PrimaryContext
	loadAvatar func(string) ([]byte, error)
	now        func() time.Time
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator. Optional fields left nil get
// defaults: inline primary context, file avatars, the wall clock, an
// empty block-list and slog.Default.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Primary == nil {
		cfg.Primary = Inline
	}
	if cfg.LoadAvatar == nil {
		cfg.LoadAvatar = contacts.LoadAvatar
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Resolver == nil {
		cfg.Resolver = contacts.NewResolver(nil, cfg.Logger)
	}
	return &Coordinator{
		store:      cfg.Store,
		forwarder:  cfg.Forwarder,
		resolver:   cfg.Resolver,
		directory:  cfg.Directory,
		notifier:   cfg.Notifier,
		events:     cfg.Events,
		primary:    cfg.Primary,
		loadAvatar: cfg.LoadAvatar,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

// Process runs evt to a terminal state. Only a policy drop or a failed
// message insert ends processing early; every other failure is recorded in
// Outcome.Warnings and processing continues.
func (c *Coordinator) Process(ctx context.Context, evt domain.InboundEvent, s Settings) Outcome {
	if evt.ID == "" {
		evt.ID = domain.NewEventID()
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = c.now()
	}
	start := time.Now()
	defer func() { metrics.PipelineDuration.Observe(time.Since(start).Seconds()) }()

	log := c.logger.With("event_id", evt.ID)
	metrics.EventsReceived.WithLabelValues(channelLabel(evt.Channel)).Inc()

	// Received
	address := evt.Address()
	body := evt.Body()
	out := Outcome{
		EventID:  evt.ID,
		State:    StateReceived,
		ThreadID: phone.ThreadID(address),
	}
	log = log.With("thread_id", out.ThreadID)
	c.emit(bus.EventMessageReceived, map[string]any{
		"event_id": evt.ID,
		"channel":  evt.Channel,
		"parts":    len(evt.Fragments),
	})

	var snap *contacts.Snapshot
	if c.directory != nil {
		snap = c.directory.Snapshot()
	}

	if s.BlockUnknownNumbers && !c.resolver.Known(address, snap) {
		return c.drop(log, out, ReasonUnknownSender)
	}

	if kw, ok := filter.New(s.BlockedKeywords).Match(body); ok {
		out.Keyword = kw
		return c.drop(log, out, ReasonKeyword)
	}

	if s.SendToGateway {
		out.State = StateForwarding
		body = c.forward(ctx, log, &out, evt, body, s)
	}

	if s.DisableLogging {
		out.State = StateDone
		out.Reason = ReasonLoggingDisabled
		log.Info("event done without storage", "forwarded", out.Forwarded)
		return out
	}

	out.State = StateResolving
	identity := c.resolver.Resolve(address, snap)
	if c.resolver.IsBlocked(ctx, address) {
		return c.drop(log, out, ReasonBlockedSender)
	}

	var avatar []byte
	c.primary.Run(ctx, func() {
		data, err := c.loadAvatar(identity.PhotoRef)
		if err != nil {
			log.Debug("avatar unavailable", "photo", identity.PhotoRef, "err", err)
			return
		}
		avatar = data
	})

	out.State = StatePersisting
	msg := domain.Message{
		Body:           body,
		Direction:      domain.DirectionInbound,
		Status:         evt.Status(),
		Participants:   []domain.Participant{{Address: address, Name: identity.DisplayName, PhotoRef: identity.PhotoRef}},
		Date:           evt.ReceivedAt.Unix(),
		Read:           false,
		ThreadID:       out.ThreadID,
		Locked:         false,
		SenderAddress:  address,
		SenderName:     identity.DisplayName,
		SenderPhotoRef: identity.PhotoRef,
		SubscriptionID: evt.SubscriptionID,
	}

	id, err := c.store.InsertMessage(ctx, msg)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("insert").Inc()
		out.State = StateFailed
		out.Err = fmt.Errorf("%w: %w", ErrInsert, err)
		log.Error("message lost: insert failed",
			"address", address,
			"chars", len(body),
			"err", err,
		)
		return out
	}
	out.MessageID = id
	metrics.MessagesStored.Inc()
	log = log.With("message_id", id)

	if err := c.store.UpsertConversation(ctx, domain.Conversation{
		ThreadID: out.ThreadID,
		Snippet:  body,
		Date:     msg.Date,
		Read:     false,
		Title:    identity.DisplayName,
		PhotoRef: identity.PhotoRef,
		Address:  address,
	}); err != nil {
		metrics.StoreFailures.WithLabelValues("conversation").Inc()
		c.warn(log, &out, ErrConversationUpsert, err)
	}

	if unread, err := c.store.CountUnreadConversations(ctx); err != nil {
		metrics.StoreFailures.WithLabelValues("badge").Inc()
		c.warn(log, &out, ErrBadgeUpdate, err)
	} else {
		metrics.UnreadConversations.Set(float64(unread))
		c.emit(bus.EventBadgeUpdated, map[string]any{"count": unread})
	}

	if s.ArchiveAvailable {
		if err := c.store.SetArchived(ctx, out.ThreadID, false); err != nil {
			metrics.StoreFailures.WithLabelValues("archive").Inc()
			c.warn(log, &out, ErrArchiveUpdate, err)
		}
	}

	out.State = StateNotifying
	if err := c.notify(ctx, domain.Notification{
		MessageID:  id,
		Address:    address,
		SenderName: identity.DisplayName,
		Body:       body,
		ThreadID:   out.ThreadID,
		Avatar:     avatar,
	}); err != nil {
		metrics.Notifications.WithLabelValues("error").Inc()
		c.warn(log, &out, ErrNotification, err)
	} else {
		metrics.Notifications.WithLabelValues("ok").Inc()
	}
	c.emit(bus.EventMessagesRefresh, map[string]any{"thread_id": out.ThreadID})
	c.emit(bus.EventMessageStored, map[string]any{
		"event_id":   evt.ID,
		"message_id": id,
		"thread_id":  out.ThreadID,
	})

	out.State = StateDone
	log.Info("message stored", "warnings", len(out.Warnings), "forwarded", out.Forwarded)
	return out
}

// forward relays the event and returns the body to store: unchanged on
// success, with the gateway error appended on failure.
func (c *Coordinator) forward(ctx context.Context, log *slog.Logger, out *Outcome, evt domain.InboundEvent, body string, s Settings) string {
	if c.forwarder == nil {
		c.warn(log, out, ErrGateway, gateway.ErrNotConfigured)
		return body + GatewayErrorSuffix + gateway.ErrNotConfigured.Error()
	}
	resp, err := c.forwarder.Forward(ctx, domain.GatewayRequest{
		Source:     evt.Address(),
		Subject:    evt.Subject(),
		Body:       body,
		URL:        s.GatewayURL,
		Credential: s.GatewayPassword,
	})
	if err != nil {
		c.warn(log, out, ErrGateway, err)
		c.emit(bus.EventGatewayFailed, map[string]any{"event_id": evt.ID, "err": err.Error()})
		return body + GatewayErrorSuffix + err.Error()
	}
	out.Forwarded = true
	log.Info("forwarded to gateway", "status", resp.StatusCode)
	return body
}

func (c *Coordinator) notify(ctx context.Context, n domain.Notification) (err error) {
	if c.notifier == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return c.notifier.Notify(ctx, n)
}

func (c *Coordinator) drop(log *slog.Logger, out Outcome, reason Reason) Outcome {
	out.State = StateDropped
	out.Reason = reason
	metrics.EventsDropped.WithLabelValues(string(reason)).Inc()
	c.emit(bus.EventMessageDropped, map[string]any{"event_id": out.EventID, "reason": string(reason)})
	if out.Keyword != "" {
		log.Info("event dropped", "reason", reason, "keyword", out.Keyword)
	} else {
		log.Info("event dropped", "reason", reason)
	}
	return out
}

func (c *Coordinator) warn(log *slog.Logger, out *Outcome, kind, err error) {
	out.Warnings = append(out.Warnings, fmt.Errorf("%w: %w", kind, err))
	log.Warn(kind.Error(), "step", string(out.State), "err", err)
}

func (c *Coordinator) emit(eventType string, payload map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Emit(bus.Event{Type: eventType, Source: "ingest", Payload: payload})
}

func channelLabel(ch string) string {
	if ch == "" {
		return "unknown"
	}
	return ch
}

// HasWarning reports whether o recorded a recovered error of the given kind.
func (o Outcome) HasWarning(kind error) bool {
	for _, w := range o.Warnings {
		if errors.Is(w, kind) {
			return true
		}
	}
	return false
}
