package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
			PageSize:  10,
		},
		Telegram: TelegramConfig{
			Mode:        "webhook",
			APIEndpoint: "https://api.telegram.org",
		},
		Memos: MemosConfig{
			DefaultVisibility: "PRIVATE",
			TimeoutSeconds:    30,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			WebhookPath: "/telegram/webhook",
		},
		Album: AlbumConfig{
			Backend:    "sqlite",
			DBPath:     "~/.memobridge/albums.db",
			TTLSeconds: 3600,
		},
		Media: MediaConfig{
			MaxBytes: 20 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
