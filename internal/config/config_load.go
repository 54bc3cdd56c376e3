package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Defaults.
const (
	DefaultBotName      = "orange"
	DefaultCooldownMs   = 180000
	DefaultAPIBase      = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultModel        = "doubao-seed-1-6-251015"
	DefaultListen       = "127.0.0.1:18790"
	DefaultDataDir      = "./data"
	DefaultConfigPath   = "config.json"
	AllGroups           = "-1"
	defaultAITimeoutSec = 60
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name: DefaultBotName,
		},
		Keyword: KeywordConfig{
			EnableGroups: FlexibleStringSlice{AllGroups},
			CooldownMs:   DefaultCooldownMs,
		},
		AI: AIConfig{
			APIBase:    DefaultAPIBase,
			Model:      DefaultModel,
			TimeoutSec: defaultAITimeoutSec,
		},
		Plugins: map[string]bool{
			"keyword": true,
			"orange":  true,
		},
		Channels: ChannelsConfig{
			OneBot: OneBotConfig{Mode: "forward"},
		},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: DefaultDataDir,
		},
		HTTP: HTTPConfig{
			Listen: DefaultListen,
		},
		Logging: LoggingConfig{Format: "text"},
	}
}

// ResolvePath picks the config file: the flag value, else $BOT_CONFIG,
// else config.json in the working directory.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("BOT_CONFIG"); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the gateway cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.backend postgres requires BOT_POSTGRES_DSN")
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol: must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format)
	}
	if c.Keyword.CooldownMs < 0 {
		return fmt.Errorf("keyword.cooldown_ms: must not be negative")
	}
	return nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("BOT_NAME", &c.Bot.Name)
	if v := os.Getenv("BOT_OWNER_IDS"); v != "" {
		c.Bot.OwnerIDs = splitList(v)
	}
	envInt("BOT_COOLDOWN_MS", &c.Keyword.CooldownMs)

	envStr("BOT_AI_API_KEY", &c.AI.APIKey)
	envStr("BOT_AI_API_BASE", &c.AI.APIBase)
	envStr("BOT_AI_MODEL", &c.AI.Model)

	envStr("BOT_HTTP_LISTEN", &c.HTTP.Listen)
	envStr("BOT_HTTP_TOKEN", &c.HTTP.Token)

	envStr("BOT_STORAGE_BACKEND", &c.Storage.Backend)
	envStr("BOT_DATA_DIR", &c.Storage.DataDir)
	envStr("BOT_POSTGRES_DSN", &c.Storage.PostgresDSN)

	envStr("BOT_REDIS_ADDR", &c.Redis.Addr)
	envStr("BOT_REDIS_PASSWORD", &c.Redis.Password)

	envStr("BOT_ONEBOT_WS_URL", &c.Channels.OneBot.WSURL)
	envStr("BOT_ONEBOT_ACCESS_TOKEN", &c.Channels.OneBot.AccessToken)
	envStr("BOT_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("BOT_DISCORD_TOKEN", &c.Channels.Discord.Token)

	envStr("BOT_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)

	// Auto-enable channels if credentials are provided via env
	if os.Getenv("BOT_ONEBOT_WS_URL") != "" {
		c.Channels.OneBot.Enabled = true
	}
	if os.Getenv("BOT_TELEGRAM_TOKEN") != "" {
		c.Channels.Telegram.Enabled = true
	}
	if os.Getenv("BOT_DISCORD_TOKEN") != "" {
		c.Channels.Discord.Enabled = true
	}

	// OpenTelemetry standard env vars
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	envStr("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call this after modifying config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

func splitList(s string) FlexibleStringSlice {
	var out FlexibleStringSlice
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config, used to detect reload changes.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by the doctor command and the admin API.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := &Config{}
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.AI.APIKey)
	maskNonEmpty(&cp.HTTP.Token)
	maskNonEmpty(&cp.Redis.Password)

	maskNonEmpty(&cp.Channels.OneBot.AccessToken)
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)

	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
