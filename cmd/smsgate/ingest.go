package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"smsgate/internal/channel"
	"smsgate/internal/domain"

	"github.com/spf13/cobra"
)

// outcomeView is the printable form of ingest.Outcome.
type outcomeView struct {
	EventID   string   `json:"event_id"`
	State     string   `json:"state"`
	Reason    string   `json:"reason,omitempty"`
	Keyword   string   `json:"keyword,omitempty"`
	ThreadID  int64    `json:"thread_id"`
	MessageID int64    `json:"message_id,omitempty"`
	Stored    bool     `json:"stored"`
	Forwarded bool     `json:"forwarded"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func ingestCmd() *cobra.Command {
	var (
		from         string
		subject      string
		parts        []string
		status       int
		subscription int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Process one SMS event synchronously and print the outcome",
		Long: `Runs a single event through the full pipeline (filter, gateway, contacts,
store, notify) using the current config. Repeat --body for multi-part messages.`,
		Example: `  smsgate ingest --from "+15551234567" --body "Hello"
  smsgate ingest --from "+15551234567" --body "part one " --body "part two"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(parts) == 0 {
				return fmt.Errorf("at least one --body is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			payload := channel.EventPayload{}
			for _, p := range parts {
				payload.Fragments = append(payload.Fragments, channel.FragmentPayload{
					Address: from,
					Subject: subject,
					Body:    p,
					Status:  &status,
				})
			}
			if cmd.Flags().Changed("subscription") {
				payload.SubscriptionID = &subscription
			}
			evt, err := payload.ToEvent("cli")
			if err != nil {
				return err
			}

			out := rt.coordinator.Process(context.Background(), evt, cfg.Settings())

			view := outcomeView{
				EventID:   out.EventID,
				State:     string(out.State),
				Reason:    string(out.Reason),
				Keyword:   out.Keyword,
				ThreadID:  out.ThreadID,
				MessageID: out.MessageID,
				Stored:    out.Stored(),
				Forwarded: out.Forwarded,
			}
			for _, w := range out.Warnings {
				view.Warnings = append(view.Warnings, w.Error())
			}
			if out.Err != nil {
				view.Error = out.Err.Error()
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(view); err != nil {
				return err
			}
			return out.Err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject")
	cmd.Flags().StringArrayVar(&parts, "body", nil, "message body (repeat for each fragment)")
	cmd.Flags().IntVar(&status, "status", domain.StatusNone, "delivery status code")
	cmd.Flags().IntVar(&subscription, "subscription", domain.SubscriptionUnknown, "SIM subscription id")
	return cmd
}
