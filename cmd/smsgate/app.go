package main

import (
	"context"
	"fmt"
	"time"

	"smsgate/internal/bus"
	"smsgate/internal/config"
	"smsgate/internal/contacts"
	"smsgate/internal/domain"
	"smsgate/internal/gateway"
	"smsgate/internal/ingest"
	"smsgate/internal/metrics"
	"smsgate/internal/notify"
	"smsgate/internal/store"
)

// app is the set of long-lived components an event is processed with.
type app struct {
	store       *store.SQLiteStore
	directory   *contacts.Directory
	events      *bus.EventBus
	forwarder   *gateway.Forwarder
	coordinator *ingest.Coordinator
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("message store: %w", err)
	}

	dir, err := contacts.NewDirectory(cfg.Contacts.DirectoryPath, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("contact directory: %w", err)
	}

	events := bus.NewEventBus(logger)
	events.On(bus.EventBadgeUpdated, func(e bus.Event) {
		logger.Debug("unread badge", "count", e.Payload["count"])
	})
	events.On(bus.EventGatewayFailed, func(e bus.Event) {
		logger.Debug("gateway failure recorded", "event_id", e.Payload["event_id"])
	})

	forwarder := gateway.NewForwarder(gateway.Config{
		Method:  cfg.Gateway.Method,
		Timeout: time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})

	coord := ingest.NewCoordinator(ingest.CoordinatorConfig{
		Store:     st,
		Forwarder: forwarder,
		Resolver:  contacts.NewResolver(st, logger),
		Directory: dir,
		Notifier:  buildNotifier(cfg),
		Events:    events,
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if unread, err := st.CountUnreadConversations(ctx); err == nil {
		metrics.UnreadConversations.Set(float64(unread))
	}

	return &app{store: st, directory: dir, events: events, forwarder: forwarder, coordinator: coord}, nil
}

func (r *app) Close() error {
	return r.store.Close()
}

// buildNotifier fans out to every enabled backend. A backend that fails to
// initialize is logged and skipped.
func buildNotifier(cfg *config.Config) domain.Notifier {
	var backends []notify.Named
	if cfg.Notify.Log {
		backends = append(backends, notify.Named{Name: "log", Notifier: notify.NewLog(logger)})
	}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		n, err := notify.NewTelegram(notify.TelegramConfig{
			Token:   tg.Token,
			ChatIDs: tg.ParsedChatIDs(),
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("telegram notifier disabled", "err", err)
		} else {
			backends = append(backends, notify.Named{Name: "telegram", Notifier: n})
		}
	}
	if dc := cfg.Notify.Discord; dc.Enabled {
		n, err := notify.NewDiscord(notify.DiscordConfig{
			Token:      dc.Token,
			ChannelIDs: dc.ChannelIDs,
			Logger:     logger,
		})
		if err != nil {
			logger.Warn("discord notifier disabled", "err", err)
		} else {
			backends = append(backends, notify.Named{Name: "discord", Notifier: n})
		}
	}
	if sc := cfg.Notify.Slack; sc.Enabled {
		n, err := notify.NewSlack(notify.SlackConfig{
			Token:      sc.Token,
			ChannelIDs: sc.ChannelIDs,
			Logger:     logger,
		})
		if err != nil {
			logger.Warn("slack notifier disabled", "err", err)
		} else {
			backends = append(backends, notify.Named{Name: "slack", Notifier: n})
		}
	}
	return notify.NewMulti(logger, backends...)
}
