package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Bot      BotConfig      `mapstructure:"bot"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Convo    ConvoConfig    `mapstructure:"convo"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	// URL is a postgres:// DSN or a sqlite file path. Empty means the
	// in-memory store.
	URL string `mapstructure:"url"`
}

type BotConfig struct {
	// Marker is the prefix that makes a message a command.
	Marker string `mapstructure:"marker"`
	// Sudo lists operator sender IDs. The first entry is the primary
	// operator and receives private forwards.
	Sudo []string `mapstructure:"sudo"`
	// BroadcastChat names a chat whose traffic is dropped wholesale.
	BroadcastChat  string        `mapstructure:"broadcast_chat"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type CacheConfig struct {
	MessagesPerChat int           `mapstructure:"messages_per_chat"`
	MessageMaxAge   time.Duration `mapstructure:"message_max_age"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SettingsTTL     time.Duration `mapstructure:"settings_ttl"`
}

type ConvoConfig struct {
	MaxTurns      int           `mapstructure:"max_turns"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Personality string  `mapstructure:"personality"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("bot.marker", ".")
	v.SetDefault("bot.reconnect_delay", 3*time.Second)
	v.SetDefault("cache.messages_per_chat", 100)
	v.SetDefault("cache.message_max_age", time.Hour)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("cache.settings_ttl", 5*time.Minute)
	v.SetDefault("convo.max_turns", 10)
	v.SetDefault("convo.idle_timeout", 30*time.Minute)
	v.SetDefault("convo.flush_interval", 15*time.Second)
	v.SetDefault("convo.batch_size", 8)
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.7)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file when one is given; env-only setups skip it
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if sudo := v.GetString("SUDO_IDS"); sudo != "" {
		config.Bot.Sudo = splitList(sudo)
	}

	if marker := v.GetString("COMMAND_MARKER"); marker != "" {
		config.Bot.Marker = marker
	}

	if chat := v.GetString("BROADCAST_CHAT"); chat != "" {
		config.Bot.BroadcastChat = chat
	}

	return &config, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
