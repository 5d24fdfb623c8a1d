package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"smsgate/internal/domain"
	"smsgate/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Manage the blocked-number list",
		Long:  "Numbers are matched on their last 9 digits, so local and international forms block the same sender.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [number...]",
		Short: "Block one or more numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			for _, n := range args {
				if err := st.Block(cmd.Context(), n); err != nil {
					return fmt.Errorf("block %s: %w", n, err)
				}
				fmt.Printf("blocked %s\n", n)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [number...]",
		Short: "Unblock one or more numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			for _, n := range args {
				removed, err := st.Unblock(cmd.Context(), n)
				if err != nil {
					return fmt.Errorf("unblock %s: %w", n, err)
				}
				if removed {
					fmt.Printf("unblocked %s\n", n)
				} else {
					fmt.Printf("%s was not blocked\n", n)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List blocked numbers",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			list, err := st.ListBlocked(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no blocked numbers")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NUMBER\tKEY\tSINCE")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Number, b.Key, b.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	})

	return cmd
}

func conversationsCmd() *cobra.Command {
	var opts store.ListOptions
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			convs, err := st.ListConversations(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("no conversations")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "THREAD\tFROM\tDATE\t\tSNIPPET")
			for _, c := range convs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					c.ThreadID,
					c.Title,
					humanize.Time(time.Unix(c.Date, 0)),
					convFlags(c),
					oneLine(c.Snippet, 60),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&opts.UnreadOnly, "unread", false, "only unread conversations")
	cmd.Flags().BoolVar(&opts.IncludeArchived, "archived", false, "include archived conversations")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum number of conversations")
	return cmd
}

func messagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages [thread-id]",
		Short: "Show the messages of a conversation, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := parseThreadID(args[0])
			if err != nil {
				return err
			}
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			msgs, err := st.GetMessages(cmd.Context(), threadID, limit)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				return fmt.Errorf("thread %d: %w", threadID, store.ErrConversationNotFound)
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s\n%s\n\n",
					time.Unix(m.Date, 0).Local().Format(time.DateTime),
					senderLabel(m),
					m.Body,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of messages")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [thread-id]",
		Short: "Mark a conversation and its messages as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := parseThreadID(args[0])
			if err != nil {
				return err
			}
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.MarkRead(cmd.Context(), threadID); err != nil {
				return notFoundHint(threadID, err)
			}
			return printUnread(cmd.Context(), st)
		},
	}
}

func archiveCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "archive [thread-id]",
		Short: "Archive a conversation (a new message unarchives it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := parseThreadID(args[0])
			if err != nil {
				return err
			}
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SetArchived(cmd.Context(), threadID, !undo); err != nil {
				return notFoundHint(threadID, err)
			}
			if undo {
				fmt.Printf("thread %d unarchived\n", threadID)
			} else {
				fmt.Printf("thread %d archived\n", threadID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "unarchive instead")
	return cmd
}

func parseThreadID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid thread id %q", s)
	}
	return id, nil
}

func notFoundHint(threadID int64, err error) error {
	if errors.Is(err, store.ErrConversationNotFound) {
		return fmt.Errorf("thread %d: %w (see 'smsgate conversations')", threadID, err)
	}
	return err
}

func printUnread(ctx context.Context, st *store.SQLiteStore) error {
	n, err := st.CountUnreadConversations(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d unread conversation(s)\n", n)
	return nil
}

func convFlags(c domain.Conversation) string {
	var flags []string
	if !c.Read {
		flags = append(flags, "unread")
	}
	if c.Archived {
		flags = append(flags, "archived")
	}
	return strings.Join(flags, ",")
}

func senderLabel(m domain.Message) string {
	if m.SenderName != "" && m.SenderName != m.SenderAddress {
		return fmt.Sprintf("%s <%s>", m.SenderName, m.SenderAddress)
	}
	if m.SenderAddress == "" {
		return "unknown sender"
	}
	return m.SenderAddress
}

// oneLine flattens s and truncates it to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
