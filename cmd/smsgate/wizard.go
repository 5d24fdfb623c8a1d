package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"smsgate/internal/config"

	"github.com/spf13/cobra"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: gateway → policy → transport → notifications → save config",
		Long:  "Guides you through the gateway URL, filtering policy, webhook listener and Telegram notifications. Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

// prompter reads answers from stdin, falling back to a default on empty input.
type prompter struct {
	reader *bufio.Reader
}

func (p prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(os.Stdout, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(os.Stdout, "%s: ", label)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(line)
	if s == "" {
		return def, nil
	}
	return s, nil
}

func (p prompter) confirm(label string, def bool) (bool, error) {
	d := "n"
	if def {
		d = "y"
	}
	ans, err := p.ask(label+" (y/n)", d)
	if err != nil {
		return false, err
	}
	ans = strings.ToLower(ans)
	return ans == "y" || ans == "yes", nil
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}
	p := prompter{reader: bufio.NewReader(os.Stdin)}

	// Step 1: Gateway
	fmt.Println("\n--- Step 1: Gateway ---")
	if cfg.Gateway.Enabled, err = p.confirm("Forward every SMS to an HTTP gateway?", cfg.Gateway.Enabled); err != nil {
		return err
	}
	if cfg.Gateway.Enabled {
		if cfg.Gateway.URL, err = p.ask("Gateway URL", cfg.Gateway.URL); err != nil {
			return err
		}
		fmt.Println("  Authorization header value; use ${VAR} to read it from the environment.")
		if cfg.Gateway.Password, err = p.ask("Gateway password", cfg.Gateway.Password); err != nil {
			return err
		}
		method, err := p.ask("Method (GET/POST)", cfg.Gateway.Method)
		if err != nil {
			return err
		}
		cfg.Gateway.Method = strings.ToUpper(method)
	}

	// Step 2: Policy
	fmt.Println("\n--- Step 2: Filtering and storage ---")
	if cfg.Policy.BlockUnknownNumbers, err = p.confirm("Drop messages from numbers not in your contacts?", cfg.Policy.BlockUnknownNumbers); err != nil {
		return err
	}
	keywords, err := p.ask("Blocked keywords (comma separated)", strings.Join(cfg.Policy.BlockedKeywords, ","))
	if err != nil {
		return err
	}
	cfg.Policy.BlockedKeywords = cfg.Policy.BlockedKeywords[:0]
	for _, k := range strings.Split(keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			cfg.Policy.BlockedKeywords = append(cfg.Policy.BlockedKeywords, k)
		}
	}
	keep, err := p.confirm("Store received messages locally?", !cfg.Storage.DisableLogging)
	if err != nil {
		return err
	}
	cfg.Storage.DisableLogging = !keep
	if cfg.Contacts.DirectoryPath, err = p.ask("Contact directory (YAML)", cfg.Contacts.DirectoryPath); err != nil {
		return err
	}

	// Step 3: Transport
	fmt.Println("\n--- Step 3: Webhook ---")
	if cfg.Channels.Webhook.Enabled, err = p.confirm("Receive SMS over HTTP?", cfg.Channels.Webhook.Enabled); err != nil {
		return err
	}
	if cfg.Channels.Webhook.Enabled {
		port, err := p.ask("Listen port", fmt.Sprint(cfg.Channels.Webhook.Port))
		if err != nil {
			return err
		}
		if _, err := fmt.Sscanf(port, "%d", &cfg.Channels.Webhook.Port); err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
		if cfg.Channels.Webhook.Secret, err = p.ask("HMAC secret (empty to disable signatures)", cfg.Channels.Webhook.Secret); err != nil {
			return err
		}
	} else {
		cfg.Channels.Stdin.Enabled = true
		fmt.Println("  Reading JSON events from stdin instead.")
	}

	// Step 4: Notifications
	fmt.Println("\n--- Step 4: Notifications ---")
	if cfg.Notify.Telegram.Enabled, err = p.confirm("Notify a Telegram chat on every new SMS?", cfg.Notify.Telegram.Enabled); err != nil {
		return err
	}
	if cfg.Notify.Telegram.Enabled {
		if cfg.Notify.Telegram.Token, err = p.ask("Telegram bot token (from @BotFather)", cfg.Notify.Telegram.Token); err != nil {
			return err
		}
		ids, err := p.ask("Chat IDs (comma separated)", strings.Join(cfg.Notify.Telegram.ChatIDs, ","))
		if err != nil {
			return err
		}
		cfg.Notify.Telegram.ChatIDs = config.FlexStringList{}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Notify.Telegram.ChatIDs = append(cfg.Notify.Telegram.ChatIDs, id)
			}
		}
	}

	// Save
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'smsgate doctor', then 'smsgate serve'.")
	return nil
}
