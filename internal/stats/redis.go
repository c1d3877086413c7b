package stats

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	statsKeyPrefix  = "talkward:stats:"
	fieldMessages   = "messages"
	fieldCharacters = "characters"
)

// RedisRecorder accumulates counters in a redis hash per guild, so totals
// survive restarts and are shared across shards.
type RedisRecorder struct {
	client *redis.Client
}

func NewRedisRecorder(client *redis.Client) *RedisRecorder {
	return &RedisRecorder{client: client}
}

func (r *RedisRecorder) key(guildID string) string {
	return statsKeyPrefix + guildID
}

func (r *RedisRecorder) Record(ctx context.Context, guildID string, characters int) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, r.key(guildID), fieldMessages, 1)
		pipe.HIncrBy(ctx, r.key(guildID), fieldCharacters, int64(characters))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record stats for guild %s: %w", guildID, err)
	}
	return nil
}

func (r *RedisRecorder) Totals(ctx context.Context, guildID string) (Totals, error) {
	fields, err := r.client.HGetAll(ctx, r.key(guildID)).Result()
	if err != nil {
		return Totals{}, fmt.Errorf("failed to read stats for guild %s: %w", guildID, err)
	}

	var t Totals
	if t.Messages, err = parseCounter(fields[fieldMessages]); err != nil {
		return Totals{}, fmt.Errorf("corrupt message counter for guild %s: %w", guildID, err)
	}
	if t.Characters, err = parseCounter(fields[fieldCharacters]); err != nil {
		return Totals{}, fmt.Errorf("corrupt character counter for guild %s: %w", guildID, err)
	}
	return t, nil
}

// parseCounter treats a missing hash field as zero.
func parseCounter(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

var _ Recorder = (*RedisRecorder)(nil)
