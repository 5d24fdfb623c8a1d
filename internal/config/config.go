package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"smsgate/internal/filter"
	"smsgate/internal/ingest"
)

// Config is the root configuration for smsgate.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Gateway  GatewayConfig  `json:"gateway"`
	Storage  StorageConfig  `json:"storage"`
	Policy   PolicyConfig   `json:"policy"`
	Contacts ContactsConfig `json:"contacts"`
	Channels ChannelsConfig `json:"channels"`
	Notify   NotifyConfig   `json:"notify"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	DataDir   string `json:"dataDir"`
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"` // optional log file path
	Workers   int    `json:"workers"`           // events processed in parallel
	QueueSize int    `json:"queueSize"`         // inbound buffer before hand-off goroutines kick in
}

// GatewayConfig configures the HTTP relay every inbound SMS is forwarded to.
type GatewayConfig struct {
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url"`
	Password       string `json:"password,omitempty"` // sent verbatim as the Authorization header
	Method         string `json:"method"`             // "GET" | "POST"
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type StorageConfig struct {
	DBPath           string `json:"dbPath"`
	DisableLogging   bool   `json:"disableLogging"` // forward only, never store
	ArchiveAvailable bool   `json:"archiveAvailable"`
}

type PolicyConfig struct {
	BlockUnknownNumbers bool     `json:"blockUnknownNumbers"`
	BlockedKeywords     []string `json:"blockedKeywords"`
}

type ContactsConfig struct {
	DirectoryPath string `json:"directoryPath"`
}

type ChannelsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Stdin   StdinConfig   `json:"stdin"`
	Stream  StreamConfig  `json:"stream"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
	Secret  string `json:"secret,omitempty"` // HMAC-SHA256 key for X-Signature-256
}

type StdinConfig struct {
	Enabled bool `json:"enabled"`
}

// StreamConfig exposes pipeline events over WebSocket on the webhook server.
type StreamConfig struct {
	Enabled bool     `json:"enabled"`
	Path    string   `json:"path"`
	Types   []string `json:"types"` // empty streams every event type
}

type NotifyConfig struct {
	Log      bool           `json:"log"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  ChatConfig     `json:"discord"`
	Slack    ChatConfig     `json:"slack"`
}

type TelegramConfig struct {
	Enabled bool           `json:"enabled"`
	Token   string         `json:"token"`
	ChatIDs FlexStringList `json:"chatIds"`
}

// ParsedChatIDs returns the chat IDs as integers, skipping malformed entries.
func (t TelegramConfig) ParsedChatIDs() []int64 {
	var ids []int64
	for _, s := range t.ChatIDs {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ChatConfig configures a bot-token notifier that posts to channel IDs.
type ChatConfig struct {
	Enabled    bool           `json:"enabled"`
	Token      string         `json:"token"`
	ChannelIDs FlexStringList `json:"channelIds"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// MetricsConfig configures the Prometheus endpoint on the webhook server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Settings snapshots the fields the ingestion pipeline reads per event.
func (c *Config) Settings() ingest.Settings {
	return ingest.Settings{
		GatewayURL:          c.Gateway.URL,
		GatewayPassword:     c.Gateway.Password,
		SendToGateway:       c.Gateway.Enabled,
		DisableLogging:      c.Storage.DisableLogging,
		BlockUnknownNumbers: c.Policy.BlockUnknownNumbers,
		BlockedKeywords:     append([]string(nil), c.Policy.BlockedKeywords...),
		ArchiveAvailable:    c.Storage.ArchiveAvailable,
	}
}

// ExpandPaths resolves ~/ in every path field.
func (c *Config) ExpandPaths() {
	c.General.DataDir = ExpandPath(c.General.DataDir)
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Storage.DBPath = ExpandPath(c.Storage.DBPath)
	c.Contacts.DirectoryPath = ExpandPath(c.Contacts.DirectoryPath)
}

// DefaultConfigDir returns the default config directory (~/.smsgate).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smsgate"
	}
	return filepath.Join(home, ".smsgate")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.ExpandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg with owner-only permissions; it may hold the gateway
// password and bot token.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.Workers < 1 || cfg.General.Workers > 64 {
		errs = append(errs, "general.workers must be between 1 and 64")
	}
	if cfg.General.QueueSize < 1 || cfg.General.QueueSize > 100000 {
		errs = append(errs, "general.queueSize must be between 1 and 100000")
	}

	switch strings.ToUpper(cfg.Gateway.Method) {
	case "GET", "POST":
		// valid
	default:
		errs = append(errs, "gateway.method must be GET or POST")
	}
	if cfg.Gateway.TimeoutSeconds < 1 || cfg.Gateway.TimeoutSeconds > 300 {
		errs = append(errs, "gateway.timeoutSeconds must be between 1 and 300")
	}
	if cfg.Gateway.Enabled {
		if cfg.Gateway.URL == "" {
			errs = append(errs, "gateway.url is required when gateway.enabled is true")
		} else if u, err := url.Parse(cfg.Gateway.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "gateway.url must be an absolute http or https URL")
		}
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.dbPath is required")
	}

	if err := filter.Validate(cfg.Policy.BlockedKeywords); err != nil {
		errs = append(errs, "policy.blockedKeywords: "+err.Error())
	}

	wh := cfg.Channels.Webhook
	if wh.Port < 0 || wh.Port > 65535 {
		errs = append(errs, "channels.webhook.port must be between 0 and 65535")
	}
	if wh.Enabled && !strings.HasPrefix(wh.Path, "/") {
		errs = append(errs, "channels.webhook.path must start with /")
	}

	tg := cfg.Notify.Telegram
	if tg.Enabled {
		if tg.Token == "" {
			errs = append(errs, "notify.telegram.token is required when telegram is enabled")
		}
		if len(tg.ParsedChatIDs()) == 0 || len(tg.ParsedChatIDs()) != len(tg.ChatIDs) {
			errs = append(errs, "notify.telegram.chatIds must be a non-empty list of numeric chat IDs")
		}
	}

	chats := []struct {
		name string
		ChatConfig
	}{{"discord", cfg.Notify.Discord}, {"slack", cfg.Notify.Slack}}
	for _, c := range chats {
		name := c.name
		if !c.Enabled {
			continue
		}
		if c.Token == "" {
			errs = append(errs, fmt.Sprintf("notify.%s.token is required when %s is enabled", name, name))
		}
		if len(c.ChannelIDs) == 0 {
			errs = append(errs, fmt.Sprintf("notify.%s.channelIds must not be empty", name))
		}
	}

	if st := cfg.Channels.Stream; st.Enabled {
		if !strings.HasPrefix(st.Path, "/") {
			errs = append(errs, "channels.stream.path must start with /")
		}
		if !wh.Enabled {
			errs = append(errs, "channels.stream.enabled requires channels.webhook.enabled (served on the same listener)")
		}
		if st.Path == wh.Path || (cfg.Metrics.Enabled && st.Path == cfg.Metrics.Path) {
			errs = append(errs, "channels.stream.path must differ from the webhook and metrics paths")
		}
	}

	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, "metrics.path must start with /")
		}
		if !wh.Enabled {
			errs = append(errs, "metrics.enabled requires channels.webhook.enabled (served on the same listener)")
		}
		if wh.Enabled && cfg.Metrics.Path == wh.Path {
			errs = append(errs, "metrics.path must differ from channels.webhook.path")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
