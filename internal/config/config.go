package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration of the bot.
type Config struct {
	Bot       BotConfig       `json:"bot"`
	Keyword   KeywordConfig   `json:"keyword"`
	AI        AIConfig        `json:"ai"`
	Plugins   map[string]bool `json:"plugins,omitempty"`
	Channels  ChannelsConfig  `json:"channels"`
	Storage   StorageConfig   `json:"storage"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	HTTP      HTTPConfig      `json:"http"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Backup    BackupConfig    `json:"backup,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Tailscale TailscaleConfig `json:"tailscale,omitempty"`
	mu        sync.RWMutex
}

// BotConfig identifies the bot and its owners.
type BotConfig struct {
	Name     string              `json:"name"`
	OwnerIDs FlexibleStringSlice `json:"owner_ids"`
}

// KeywordConfig holds the defaults of the keyword engine. Values stored in
// the keyword data directory (cooldownTime, enableGroups) take precedence.
type KeywordConfig struct {
	EnableGroups FlexibleStringSlice `json:"enable_groups"`      // "-1" enables every group
	CooldownMs   int                 `json:"cooldown_ms"`        // per-key suppression window
	DataDir      string              `json:"data_dir,omitempty"` // file backend directory override
}

// Cooldown returns the cooldown window as a duration.
func (k KeywordConfig) Cooldown() time.Duration {
	return time.Duration(k.CooldownMs) * time.Millisecond
}

// AIConfig configures the OpenAI-compatible chat-completion endpoint.
// APIKey may also come from env BOT_AI_API_KEY.
type AIConfig struct {
	APIBase             string `json:"api_base"`
	APIKey              string `json:"api_key,omitempty"`
	Model               string `json:"model"`
	SystemPrompt        string `json:"system_prompt,omitempty"`
	TimeoutSec          int    `json:"timeout_sec"`
	MaxCompletionTokens int    `json:"max_completion_tokens,omitempty"`
	ReasoningEffort     string `json:"reasoning_effort,omitempty"` // "minimal", "low", "medium", "high"
	MaxRetries          int    `json:"max_retries,omitempty"`      // attempts after the first (default 0)
}

// Timeout returns the whole-call AI timeout.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

// StorageConfig selects the keyword/plugin persistence backend.
// PostgresDSN is NEVER read from config.json, only from env BOT_POSTGRES_DSN.
type StorageConfig struct {
	Backend     string `json:"backend"`               // "file" (default), "sqlite", "postgres"
	DataDir     string `json:"data_dir,omitempty"`    // file backend root
	SQLitePath  string `json:"sqlite_path,omitempty"` // default <data_dir>/bot.db
	PostgresDSN string `json:"-"`
}

// RedisConfig enables the shared cooldown gate. Empty Addr keeps the
// cooldown in process.
type RedisConfig struct {
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"` // default "bot:cooldown:"
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Listen string `json:"listen"`          // empty disables the admin API
	Token  string `json:"token,omitempty"` // bearer token for /api/v1 and /mcp
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "mikann-bot")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// BackupConfig schedules keyword table backups. Empty Schedule disables them.
type BackupConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron expression, e.g. "0 4 * * *"
	Dir      string `json:"dir,omitempty"`      // default <data_dir>/backups
	Keep     int    `json:"keep,omitempty"`     // newest backups kept (0 = all)
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Format string `json:"format,omitempty"` // "text" (default) or "json"
}

// TailscaleConfig configures the optional Tailscale tsnet listener.
// Requires building with -tags tsnet. Auth key from env only (never persisted).
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`  // Tailscale machine name (e.g. "mikann-bot")
	StateDir  string `json:"state_dir,omitempty"` // persistent state directory (default: os.UserConfigDir/tsnet-mikann-bot)
	AuthKey   string `json:"-"`                   // from env BOT_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"` // remove node on exit (default false)
}

// Owners returns a copy of the owner IDs.
func (c *Config) Owners() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.Bot.OwnerIDs...)
}

// KeywordDataDir returns the directory of the file-backed keyword tables.
func (c *Config) KeywordDataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Keyword.DataDir != "" {
		return ExpandHome(c.Keyword.DataDir)
	}
	return ExpandHome(c.Storage.DataDir)
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bot = src.Bot
	c.Keyword = src.Keyword
	c.AI = src.AI
	c.Plugins = src.Plugins
	c.Channels = src.Channels
	c.Storage = src.Storage
	c.Redis = src.Redis
	c.HTTP = src.HTTP
	c.Telemetry = src.Telemetry
	c.Backup = src.Backup
	c.Logging = src.Logging
	c.Tailscale = src.Tailscale
}
