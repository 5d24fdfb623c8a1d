package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"smsgate/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen     = 4096
	telegramMaxCaptionLen = 1024
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	Token       string
	ChatIDs     []int64
	APIEndpoint string  // defaults to tgbotapi.APIEndpoint
	Burst       int     // sends allowed back to back (default 20)
	PerSecond   float64 // sustained send rate (default 1)
	Logger      *slog.Logger
}

// Telegram forwards notifications to one or more Telegram chats through a bot.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	limiter *sendLimiter
	logger  *slog.Logger
}

// NewTelegram connects the bot. It fails if the token is rejected.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("telegram notifier needs at least one chat ID")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, newHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram notifier connected",
		"username", bot.Self.UserName,
		"chats", len(cfg.ChatIDs),
	)
	return &Telegram{
		bot:     bot,
		chatIDs: cfg.ChatIDs,
		limiter: newSendLimiter(cfg.Burst, cfg.PerSecond),
		logger:  cfg.Logger,
	}, nil
}

// Notify sends the avatar (if any) with a caption naming the sender, then
// the body as plain text.
func (t *Telegram) Notify(ctx context.Context, n domain.Notification) error {
	header := formatHeader(n)
	var errs []error
	for _, chatID := range t.chatIDs {
		if err := t.sendTo(ctx, chatID, header, n); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) sendTo(ctx context.Context, chatID int64, header string, n domain.Notification) error {
	text := header + "\n\n" + n.Body
	if len(n.Avatar) > 0 {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "avatar.jpg", Bytes: n.Avatar})
		photo.Caption = truncateRunes(header, telegramMaxCaptionLen)
		if _, err := t.bot.Send(photo); err != nil {
			t.logger.Warn("telegram avatar upload failed, sending text only", "chat_id", chatID, "err", err)
		} else {
			text = n.Body
		}
	}
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func formatHeader(n domain.Notification) string {
	name := n.SenderName
	if name == "" {
		name = n.Address
	}
	if name == "" {
		return "New SMS from unknown sender"
	}
	if n.Address != "" && name != n.Address {
		return fmt.Sprintf("New SMS from %s (%s)", name, n.Address)
	}
	return "New SMS from " + name
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// newline boundaries in the second half of a chunk.
func splitMessage(text string, maxLen int) []string {
	if text == "" {
		return []string{" "}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8Start(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
