// Package settings persists the per-guild configuration blob: member voice
// preferences, the default provider, and the admin role. Live session state
// (timers, connections, the permitted set) is never persisted.
package settings

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when a guild has no stored settings.
var ErrNotFound = errors.New("guild settings not found")

// MemberSettings are one member's voice preferences in one guild.
type MemberSettings struct {
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Gender   string  `json:"gender,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Muted    bool    `json:"muted,omitempty"`
	// TranslateLanguage, when set, has messages translated before synthesis.
	TranslateLanguage string `json:"translateLanguage,omitempty"`
}

// GuildSettings is the persisted settings blob for one guild.
type GuildSettings struct {
	GuildID         string                    `json:"guildId"`
	DefaultProvider string                    `json:"defaultProvider,omitempty"`
	AdminRole       string                    `json:"adminRole,omitempty"`
	Members         map[string]MemberSettings `json:"members,omitempty"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

// NewGuildSettings returns an empty settings blob for guildID.
func NewGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID: guildID,
		Members: make(map[string]MemberSettings),
	}
}

// Member returns the settings for memberID, lazily creating an empty record.
func (g *GuildSettings) Member(memberID string) MemberSettings {
	if g.Members == nil {
		g.Members = make(map[string]MemberSettings)
	}
	m, ok := g.Members[memberID]
	if !ok {
		m = MemberSettings{}
		g.Members[memberID] = m
	}
	return m
}

// SetMember stores the settings for memberID.
func (g *GuildSettings) SetMember(memberID string, m MemberSettings) {
	if g.Members == nil {
		g.Members = make(map[string]MemberSettings)
	}
	g.Members[memberID] = m
}

// ResetMember drops every stored setting for memberID.
func (g *GuildSettings) ResetMember(memberID string) {
	delete(g.Members, memberID)
}

// Store loads and saves guild settings blobs.
type Store interface {
	Load(ctx context.Context, guildID string) (*GuildSettings, error)
	Save(ctx context.Context, s *GuildSettings) error
}
