// Package stats tracks per-guild usage counters: how many messages and how
// many characters have been spoken. Counters are best-effort; a recording
// failure never blocks or fails playback.
package stats

import (
	"context"
	"sync"
)

// Totals are the accumulated counters for one guild.
type Totals struct {
	Messages   int64
	Characters int64
}

// Recorder accumulates usage counters.
type Recorder interface {
	Record(ctx context.Context, guildID string, characters int) error
	Totals(ctx context.Context, guildID string) (Totals, error)
}

// MemoryRecorder keeps counters in memory. Used in tests and as a fallback
// when no redis is configured.
type MemoryRecorder struct {
	mu     sync.Mutex
	totals map[string]Totals
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{totals: make(map[string]Totals)}
}

func (r *MemoryRecorder) Record(ctx context.Context, guildID string, characters int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.totals[guildID]
	t.Messages++
	t.Characters += int64(characters)
	r.totals[guildID] = t
	return nil
}

func (r *MemoryRecorder) Totals(ctx context.Context, guildID string) (Totals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[guildID], nil
}

var _ Recorder = (*MemoryRecorder)(nil)
