package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	OneBot   OneBotConfig   `json:"onebot"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`

	// Per-chat outbound limiter shared by all channels.
	SendIntervalMs int `json:"send_interval_ms,omitempty"` // default 500, negative disables
	SendBurst      int `json:"send_burst,omitempty"`       // default 3
}

// OneBotConfig connects to a OneBot v11 implementation (NapCat, Lagrange).
// In "forward" mode the bot dials WSURL; in "reverse" mode it listens on
// Listen+Path and the implementation connects to it.
type OneBotConfig struct {
	Enabled           bool                `json:"enabled"`
	Mode              string              `json:"mode,omitempty"`   // "forward" (default) or "reverse"
	WSURL             string              `json:"ws_url,omitempty"` // forward: e.g. "ws://127.0.0.1:3001"
	Listen            string              `json:"listen,omitempty"` // reverse: e.g. "0.0.0.0:8080"
	Path              string              `json:"path,omitempty"`   // reverse: default "/onebot/v11/ws"
	AccessToken       string              `json:"access_token,omitempty"`
	AllowFrom         FlexibleStringSlice `json:"allow_from"`
	ReconnectInterval int                 `json:"reconnect_interval,omitempty"` // seconds, forward backoff base (default 5)
	ActionTimeout     int                 `json:"action_timeout,omitempty"`     // seconds (default 10)
	MaxImageDim       int                 `json:"max_image_dim,omitempty"`      // downscale local images above this (default 2048)
}

type TelegramConfig struct {
	Enabled     bool                `json:"enabled"`
	Token       string              `json:"token"`
	Proxy       string              `json:"proxy,omitempty"`
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
	MaxImageDim int                 `json:"max_image_dim,omitempty"`
}

type DiscordConfig struct {
	Enabled     bool                `json:"enabled"`
	Token       string              `json:"token"`
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
	MaxImageDim int                 `json:"max_image_dim,omitempty"`
}
