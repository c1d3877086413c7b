package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists settings blobs as jsonb rows keyed by guild.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, guildID string) (*GuildSettings, error) {
	const query = `SELECT blob FROM guild_settings WHERE guild_id = $1`

	var blob []byte
	err := s.db.QueryRow(ctx, query, guildID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load settings for guild %s: %w", guildID, err)
	}

	var gs GuildSettings
	if err := json.Unmarshal(blob, &gs); err != nil {
		return nil, fmt.Errorf("failed to decode settings for guild %s: %w", guildID, err)
	}
	return &gs, nil
}

func (s *PostgresStore) Save(ctx context.Context, gs *GuildSettings) error {
	const query = `
	INSERT INTO guild_settings (guild_id, blob, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (guild_id) DO UPDATE SET
		blob = EXCLUDED.blob,
		updated_at = EXCLUDED.updated_at
	`

	gs.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to encode settings for guild %s: %w", gs.GuildID, err)
	}

	if _, err := s.db.Exec(ctx, query, gs.GuildID, blob, gs.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save settings for guild %s: %w", gs.GuildID, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
