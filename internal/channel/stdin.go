package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"smsgate/internal/domain"
)

// Stdin reads one JSON event per line, for piping a modem daemon or a
// test feed into the gateway.
type Stdin struct {
	logger *slog.Logger
	in     io.Reader
}

type StdinConfig struct {
	Logger *slog.Logger
	In     io.Reader
}

func NewStdin(cfg StdinConfig) *Stdin {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	return &Stdin{logger: cfg.Logger, in: cfg.In}
}

func (s *Stdin) Name() string { return "stdin" }

// Start reads until EOF or until ctx is cancelled. Malformed lines are
// logged and skipped.
func (s *Stdin) Start(ctx context.Context, queue domain.EventQueue) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	line := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			s.logger.Info("stdin closed", "lines", line)
			return nil // EOF
		}
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var payload EventPayload
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			s.logger.Warn("skipping malformed event line", "line", line, "err", err)
			continue
		}
		evt, err := payload.ToEvent(s.Name())
		if err != nil {
			s.logger.Warn("skipping invalid event", "line", line, "err", err)
			continue
		}
		queue.Publish(evt)
	}
}

// Stop is a no-op; Start returns at EOF or when its context ends.
func (s *Stdin) Stop() error { return nil }
