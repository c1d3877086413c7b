package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type AzureTTSConfig struct {
	Enabled         bool   `env:"AZURE_TTS_ENABLED"`
	Region          string `env:"AZURE_TTS_REGION, default=eastus"`
	SubscriptionKey string `env:"AZURE_TTS_SUBSCRIPTION_KEY"`
	CharLimit       int    `env:"AZURE_TTS_CHAR_LIMIT, default=1000"`
	CharsPerSecond  int    `env:"AZURE_TTS_CHARS_PER_SECOND, default=200"`
}

type GoogleTTSConfig struct {
	Enabled        bool   `env:"GOOGLE_TTS_ENABLED"`
	APIKey         string `env:"GOOGLE_TTS_API_KEY"`
	CharLimit      int    `env:"GOOGLE_TTS_CHAR_LIMIT, default=4000"`
	CharsPerSecond int    `env:"GOOGLE_TTS_CHARS_PER_SECOND, default=200"`
}

type TranslateConfig struct {
	Enabled bool   `env:"GOOGLE_TRANSLATE_ENABLED"`
	APIKey  string `env:"GOOGLE_TRANSLATE_API_KEY"`
}

type TTSConfig struct {
	Azure     AzureTTSConfig
	Google    GoogleTTSConfig
	Translate TranslateConfig
}

func NewTTSConfigFromEnv() (*TTSConfig, error) {
	var cfg TTSConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
