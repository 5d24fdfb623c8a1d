package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:   "~/.smsgate",
			LogLevel:  "info",
			Workers:   4,
			QueueSize: 100,
		},
		Gateway: GatewayConfig{
			Enabled:        false,
			Method:         "GET",
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			DBPath:           "~/.smsgate/messages.db",
			DisableLogging:   false,
			ArchiveAvailable: true,
		},
		Policy: PolicyConfig{
			BlockUnknownNumbers: false,
			BlockedKeywords:     []string{},
		},
		Contacts: ContactsConfig{
			DirectoryPath: "~/.smsgate/contacts.yaml",
		},
		Channels: ChannelsConfig{
			Webhook: WebhookConfig{
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    8080,
				Path:    "/sms",
			},
			Stdin: StdinConfig{
				Enabled: false,
			},
			Stream: StreamConfig{
				Enabled: false,
				Path:    "/events",
				Types:   []string{},
			},
		},
		Notify: NotifyConfig{
			Log: true,
			Telegram: TelegramConfig{
				Enabled: false,
				ChatIDs: FlexStringList{},
			},
			Discord: ChatConfig{ChannelIDs: FlexStringList{}},
			Slack:   ChatConfig{ChannelIDs: FlexStringList{}},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}
