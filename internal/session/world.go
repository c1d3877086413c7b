package session

import (
	"context"
	"log/slog"
	"sync"
)

// Factory builds the session for a guild. The world calls it once per guild
// on first sight.
type Factory func(guildID string) *Session

// World is the process-wide guild-to-session registry. It is mutated only on
// guild join, guild leave, and shutdown, so a single mutex is enough.
type World struct {
	factory Factory
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewWorld(factory Factory) *World {
	return &World{
		factory:  factory,
		log:      slog.Default(),
		sessions: make(map[string]*Session),
	}
}

// Add registers a guild, creating its session if absent, and returns it.
// Returns nil after Shutdown.
func (w *World) Add(guildID string) *Session {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if s, ok := w.sessions[guildID]; ok {
		return s
	}

	s := w.factory(guildID)
	w.sessions[guildID] = s
	w.log.Info("guild session created", "guildID", guildID)
	return s
}

// Get returns the session for guildID, if any.
func (w *World) Get(guildID string) (*Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[guildID]
	return s, ok
}

// Len returns the number of registered guilds.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

// Remove disposes and drops the session for guildID. No-op for unknown
// guilds.
func (w *World) Remove(ctx context.Context, guildID string) {
	w.mu.Lock()
	s, ok := w.sessions[guildID]
	delete(w.sessions, guildID)
	w.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Dispose(ctx); err != nil {
		w.log.Warn("failed to dispose guild session", "guildID", guildID, "error", err)
	}
	w.log.Info("guild session removed", "guildID", guildID)
}

// Shutdown disposes every session and rejects further Adds.
func (w *World) Shutdown(ctx context.Context) {
	w.mu.Lock()
	w.closed = true
	sessions := w.sessions
	w.sessions = make(map[string]*Session)
	w.mu.Unlock()

	for guildID, s := range sessions {
		if err := s.Dispose(ctx); err != nil {
			w.log.Warn("failed to dispose guild session", "guildID", guildID, "error", err)
		}
	}
	w.log.Info("world shut down", "guilds", len(sessions))
}
