// Package config loads the process configuration. The Leonardo API key and
// the Telegram bot token are both required; the process refuses to start
// without either.
package config

import (
	"errors"
)

const (
	EnvLeonardoAPIKey = "LEONARDO_API_KEY"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvHistoryDBPath  = "GENBOT_HISTORY_DB"
)

var (
	ErrMissingAPIKey = errors.New("Leonardo API key required: set LEONARDO_API_KEY or use --api-key")
	ErrMissingToken  = errors.New("Telegram bot token required: set TELEGRAM_BOT_TOKEN or use --token")
)

type Config struct {
	LeonardoAPIKey string
	TelegramToken  string
	HistoryDBPath  string
}

// Load resolves configuration with flag values taking priority over the
// environment. getenv is injectable for tests.
func Load(flagAPIKey, flagToken, flagDBPath string, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		LeonardoAPIKey: flagAPIKey,
		TelegramToken:  flagToken,
		HistoryDBPath:  flagDBPath,
	}

	if cfg.LeonardoAPIKey == "" {
		cfg.LeonardoAPIKey = getenv(EnvLeonardoAPIKey)
	}
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = getenv(EnvTelegramToken)
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = getenv(EnvHistoryDBPath)
	}

	if cfg.LeonardoAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.TelegramToken == "" {
		return nil, ErrMissingToken
	}

	return cfg, nil
}
