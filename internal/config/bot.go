package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// BotConfig holds the session-level tunables for the bot.
type BotConfig struct {
	// NeglectTimeout is how long a bound session may sit idle before the
	// bot warns the channel and releases itself.
	NeglectTimeout time.Duration `env:"TALKWARD_NEGLECT_TIMEOUT, default=2h"`

	// NeglectMessages are the warning utterances spoken when the neglect
	// timeout expires. One is chosen at random.
	NeglectMessages []string `env:"TALKWARD_NEGLECT_MESSAGES, default=talkward inactivity timeout"`

	// CharLimit caps how many characters a guild may synthesize per message.
	CharLimit int `env:"TALKWARD_CHAR_LIMIT, default=2000"`
}

func NewBotConfigFromEnv() (*BotConfig, error) {
	var cfg BotConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
