package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"smsgate/internal/config"
	"smsgate/internal/contacts"
	"smsgate/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your smsgate installation",
		Long: `Verifies that the configuration, message database, contact directory,
gateway and webhook port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("smsgate doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'smsgate init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return err
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Data directory
			if info, err := os.Stat(cfg.General.DataDir); err != nil {
				printWarn("Data directory", fmt.Sprintf("not found: %s (created on first serve)", cfg.General.DataDir))
				warned++
			} else if !info.IsDir() {
				printFail("Data directory", fmt.Sprintf("not a directory: %s", cfg.General.DataDir))
				failed++
			} else {
				printPass("Data directory", cfg.General.DataDir)
				passed++
			}

			// 4. Database writable and migrated
			if v, err := checkDatabase(cfg.Storage.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", fmt.Sprintf("%s (schema v%d)", cfg.Storage.DBPath, v))
				passed++
			}
			if cfg.Storage.DisableLogging {
				printWarn("Storage", "disableLogging is on: messages are forwarded but never stored")
				warned++
			}

			// 5. Contact directory
			snap, err := contacts.LoadDirectory(cfg.Contacts.DirectoryPath)
			switch {
			case errors.Is(err, os.ErrNotExist) || cfg.Contacts.DirectoryPath == "":
				if cfg.Policy.BlockUnknownNumbers {
					printFail("Contacts", "no directory file but blockUnknownNumbers drops every sender")
					failed++
				} else {
					printWarn("Contacts", "no directory file; senders shown by number")
					warned++
				}
			case err != nil:
				printFail("Contacts", err.Error())
				failed++
			default:
				printPass("Contacts", fmt.Sprintf("%d entries in %s", snap.Len(), cfg.Contacts.DirectoryPath))
				passed++
			}

			// 6. Gateway reachable
			if cfg.Gateway.Enabled {
				if err := checkGateway(cfg.Gateway.URL); err != nil {
					printWarn("Gateway", fmt.Sprintf("unreachable: %v (messages are still stored)", err))
					warned++
				} else {
					printPass("Gateway", fmt.Sprintf("%s %s", cfg.Gateway.Method, redactURL(cfg.Gateway.URL)))
					passed++
				}
			}

			// 7. Webhook port
			if wh := cfg.Channels.Webhook; wh.Enabled {
				addr := net.JoinHostPort(wh.Host, fmt.Sprint(wh.Port))
				if err := checkPort(addr); err != nil {
					printWarn("Webhook port", fmt.Sprintf("%s may be in use: %v", addr, err))
					warned++
				} else {
					printPass("Webhook port", fmt.Sprintf("%s available", addr))
					passed++
				}
				if wh.Secret == "" {
					printWarn("Webhook secret", "not set; requests are not authenticated")
					warned++
				}
			}

			// 8. Notifications
			notifiers := 0
			if cfg.Notify.Log {
				notifiers++
			}
			if tg := cfg.Notify.Telegram; tg.Enabled {
				printPass("Telegram", fmt.Sprintf("%d chat(s)", len(tg.ParsedChatIDs())))
				passed++
				notifiers++
			}
			if dc := cfg.Notify.Discord; dc.Enabled {
				printPass("Discord", fmt.Sprintf("%d channel(s)", len(dc.ChannelIDs)))
				passed++
				notifiers++
			}
			if sc := cfg.Notify.Slack; sc.Enabled {
				printPass("Slack", fmt.Sprintf("%d channel(s)", len(sc.ChannelIDs)))
				passed++
				notifiers++
			}
			if notifiers == 0 && !cfg.Channels.Stream.Enabled {
				printWarn("Notifications", "no notifier or event stream enabled")
				warned++
			}

			// 9. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running 'smsgate serve'.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nsmsgate should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! smsgate is ready to run.\n")
			}
			return nil
		},
	}
}

// checkDatabase opens the database, applies migrations and verifies a write.
func checkDatabase(dbPath string) (int, error) {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer st.Close()
	return probeDB(st.DB())
}

func probeDB(db *sql.DB) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return 0, fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return store.GetSchemaVersion(db)
}

// checkGateway dials the gateway host without sending a message.
func checkGateway(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	conn, err := net.DialTimeout("tcp", host, 5*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

// redactURL drops the query string, which often carries an API key.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
