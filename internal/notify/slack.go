package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"smsgate/internal/domain"

	"github.com/slack-go/slack"
)

const slackMaxMsgLen = 4000

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Token      string // bot token (xoxb-...)
	ChannelIDs []string
	APIURL     string // defaults to slack.APIURL
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Slack posts notifications with chat.postMessage.
type Slack struct {
	client     *slack.Client
	channelIDs []string
	logger     *slog.Logger
}

func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.Token == "" {
		return nil, errors.New("slack token is empty")
	}
	if len(cfg.ChannelIDs) == 0 {
		return nil, errors.New("slack notifier needs at least one channel ID")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient()
	}
	opts := []slack.Option{slack.OptionHTTPClient(cfg.HTTPClient)}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{
		client:     slack.New(cfg.Token, opts...),
		channelIDs: cfg.ChannelIDs,
		logger:     cfg.Logger,
	}, nil
}

// Notify posts the header in bold followed by the body. Slack control
// characters in the body are escaped.
func (s *Slack) Notify(ctx context.Context, n domain.Notification) error {
	text := "*" + formatHeader(n) + "*\n" + n.Body

	var errs []error
	for _, channelID := range s.channelIDs {
		for _, chunk := range splitMessage(text, slackMaxMsgLen) {
			_, _, err := s.client.PostMessageContext(ctx, channelID,
				slack.MsgOptionText(chunk, true),
				slack.MsgOptionDisableLinkUnfurl(),
			)
			if err != nil {
				errs = append(errs, fmt.Errorf("channel %s: %w", channelID, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}
