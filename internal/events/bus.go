// Package events carries session lifecycle notifications between the guild
// sessions and interested subscribers (presence updates, logging, stats).
//
// Each event has a fixed payload type and its own subscribe/publish pair.
// Subscribers register once at startup; delivery is synchronous and in
// registration order.
package events

import "sync"

// FollowEvent fires when a member takes control of a guild session.
type FollowEvent struct {
	GuildID   string
	MemberID  string
	ChannelID string
}

// ReleaseEvent fires when a guild session lets go of its voice channel.
type ReleaseEvent struct {
	GuildID string
	Reason  string
}

// MessageDeliveredEvent fires after a spoken message finishes playback.
type MessageDeliveredEvent struct {
	GuildID    string
	MemberID   string
	Characters int
}

type Bus struct {
	mu            sync.RWMutex
	followSubs    []func(FollowEvent)
	releaseSubs   []func(ReleaseEvent)
	deliveredSubs []func(MessageDeliveredEvent)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) SubscribeFollow(fn func(FollowEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.followSubs = append(b.followSubs, fn)
}

func (b *Bus) SubscribeRelease(fn func(ReleaseEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseSubs = append(b.releaseSubs, fn)
}

func (b *Bus) SubscribeMessageDelivered(fn func(MessageDeliveredEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveredSubs = append(b.deliveredSubs, fn)
}

func (b *Bus) PublishFollow(e FollowEvent) {
	b.mu.RLock()
	subs := b.followSubs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishRelease(e ReleaseEvent) {
	b.mu.RLock()
	subs := b.releaseSubs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishMessageDelivered(e MessageDeliveredEvent) {
	b.mu.RLock()
	subs := b.deliveredSubs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
