package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"smsgate/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	Token      string
	ChannelIDs []string
	HTTPClient *http.Client // optional
	Logger     *slog.Logger
}

// Discord posts notifications to Discord channels over the REST API. It never
// opens a gateway connection, so the bot needs no privileged intents.
type Discord struct {
	session    *discordgo.Session
	channelIDs []string
	logger     *slog.Logger
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is empty")
	}
	if len(cfg.ChannelIDs) == 0 {
		return nil, errors.New("discord notifier needs at least one channel ID")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if cfg.HTTPClient != nil {
		session.Client = cfg.HTTPClient
	} else {
		session.Client = newHTTPClient()
	}
	session.MaxRestRetries = 1
	return &Discord{session: session, channelIDs: cfg.ChannelIDs, logger: cfg.Logger}, nil
}

// Notify posts the header and body to every channel, attaching the avatar
// to the first chunk when there is one.
func (d *Discord) Notify(ctx context.Context, n domain.Notification) error {
	text := "**" + formatHeader(n) + "**\n" + n.Body
	chunks := splitMessage(text, discordMaxMsgLen)

	var errs []error
	for _, channelID := range d.channelIDs {
		if err := d.sendTo(ctx, channelID, chunks, n.Avatar); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channelID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Discord) sendTo(ctx context.Context, channelID string, chunks []string, avatar []byte) error {
	for i, chunk := range chunks {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 && len(avatar) > 0 {
			msg.Files = []*discordgo.File{{
				Name:        "avatar.jpg",
				ContentType: "image/jpeg",
				Reader:      bytes.NewReader(avatar),
			}}
		}
		if _, err := d.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	d.logger.Debug("discord notification sent", "channel_id", channelID, "chunks", len(chunks))
	return nil
}
