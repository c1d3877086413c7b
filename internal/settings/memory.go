package settings

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps settings blobs in memory. Used in tests and as a
// fallback when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, guildID string) (*GuildSettings, error) {
	s.mu.RLock()
	blob, ok := s.blobs[guildID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var gs GuildSettings
	if err := json.Unmarshal(blob, &gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

func (s *MemoryStore) Save(ctx context.Context, gs *GuildSettings) error {
	gs.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(gs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.blobs[gs.GuildID] = blob
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
