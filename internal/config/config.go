package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for memobridge.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Memos    MemosConfig    `json:"memos" yaml:"memos"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Album    AlbumConfig    `json:"album" yaml:"album"`
	Media    MediaConfig    `json:"media" yaml:"media"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`   // debug | info | warn | error
	LogFormat string `json:"logFormat" yaml:"logFormat"` // text | json
	PageSize  int    `json:"pageSize" yaml:"pageSize"`   // notes per list page
}

type TelegramConfig struct {
	Token         string `json:"token" yaml:"token"`
	Mode          string `json:"mode" yaml:"mode"` // "webhook" | "polling"
	WebhookURL    string `json:"webhookURL" yaml:"webhookURL"`
	WebhookSecret string `json:"webhookSecret" yaml:"webhookSecret"`
	APIEndpoint   string `json:"apiEndpoint" yaml:"apiEndpoint"` // Bot API server base URL
}

type MemosConfig struct {
	BaseURL           string `json:"baseURL" yaml:"baseURL"`
	Token             string `json:"token" yaml:"token"`
	DefaultVisibility string `json:"defaultVisibility" yaml:"defaultVisibility"`
	TimeoutSeconds    int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type ServerConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	WebhookPath string `json:"webhookPath" yaml:"webhookPath"`
}

// AlbumConfig selects where album state lives.
type AlbumConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // "memory" | "sqlite" | "redis"
	DBPath     string `json:"dbPath" yaml:"dbPath"`
	RedisURL   string `json:"redisURL" yaml:"redisURL"`
	TTLSeconds int    `json:"ttlSeconds" yaml:"ttlSeconds"`
}

type MediaConfig struct {
	MaxBytes int64 `json:"maxBytes" yaml:"maxBytes"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// DefaultConfigDir returns the default config directory (~/.memobridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memobridge"
	}
	return filepath.Join(home, ".memobridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
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
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Album.DBPath = ExpandPath(cfg.Album.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} references. The
// default applies when VAR is unset or empty, and may itself be empty. A
// reference with neither a value nor a default is left as written. Bare $VAR
// is not expanded because tokens may contain '$'.
func ExpandEnvVars(input string) string {
	var b strings.Builder
	rest := input
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			break
		}
		n := strings.IndexByte(rest[i:], '}')
		if n < 0 {
			break
		}
		name, def, hasDefault := strings.Cut(rest[i+2:i+n], ":-")
		if !isEnvName(name) {
			// Not a reference; rescan from the next byte so ${A${B}} still
			// expands the inner one.
			b.WriteString(rest[:i+2])
			rest = rest[i+2:]
			continue
		}
		b.WriteString(rest[:i])
		switch v := os.Getenv(name); {
		case v != "":
			b.WriteString(v)
		case hasDefault:
			b.WriteString(def)
		default:
			b.WriteString(rest[i : i+n+1])
		}
		rest = rest[i+n+1:]
	}
	b.WriteString(rest)
	return b.String()
}

func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'A' <= r && r <= 'Z', 'a' <= r && r <= 'z':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Save writes cfg as YAML or JSON depending on the file extension. The file
// holds tokens, so it is created owner-readable only.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.PageSize < 1 || cfg.General.PageSize > 20 {
		errs = append(errs, "general.pageSize must be between 1 and 20")
	}

	switch cfg.Telegram.Mode {
	case "webhook", "polling":
	default:
		errs = append(errs, "telegram.mode must be one of: webhook, polling")
	}

	switch strings.ToUpper(cfg.Memos.DefaultVisibility) {
	case "PUBLIC", "PROTECTED", "PRIVATE":
	default:
		errs = append(errs, "memos.defaultVisibility must be one of: PUBLIC, PROTECTED, PRIVATE")
	}
	if cfg.Memos.TimeoutSeconds < 1 {
		errs = append(errs, "memos.timeoutSeconds must be >= 1")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}

	switch cfg.Album.Backend {
	case "memory":
	case "sqlite":
		if cfg.Album.DBPath == "" {
			errs = append(errs, "album.dbPath is required for the sqlite backend")
		}
	case "redis":
		if cfg.Album.RedisURL == "" {
			errs = append(errs, "album.redisURL is required for the redis backend")
		}
	default:
		errs = append(errs, "album.backend must be one of: memory, sqlite, redis")
	}
	if cfg.Album.TTLSeconds < 1 {
		errs = append(errs, "album.ttlSeconds must be >= 1")
	}

	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CheckRuntime reports settings that must be filled in before serving. They
// are not part of Validate so a fresh default config can still be saved and
// edited with `config set`.
func CheckRuntime(cfg *Config) error {
	var errs []string
	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required")
	}
	if cfg.Memos.BaseURL == "" {
		errs = append(errs, "memos.baseURL is required")
	}
	if cfg.Memos.Token == "" {
		errs = append(errs, "memos.token is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("incomplete config:\n  - %s", strings.Join(errs, "\n  - "))
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
