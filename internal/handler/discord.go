// Package handler wires Discord gateway events and slash commands to the
// guild sessions.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/talkward/internal/session"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type MessageCreateHandler = func(*discordgo.Session, *discordgo.MessageCreate)
type GuildCreateHandler = func(*discordgo.Session, *discordgo.GuildCreate)
type GuildDeleteHandler = func(*discordgo.Session, *discordgo.GuildDelete)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)

// eventTimeout bounds the work done for a single gateway event.
const eventTimeout = 30 * time.Second

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID)
}

// MakeMessageCreateHandler feeds guild chat into the session's speech path.
// The session does its own gating; anything it drops is dropped silently.
func MakeMessageCreateHandler(world *session.World) MessageCreateHandler {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.GuildID == "" {
			return
		}
		sess, ok := world.Get(m.GuildID)
		if !ok {
			return
		}

		var roles []string
		if m.Member != nil {
			roles = m.Member.Roles
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		err := sess.Speak(ctx, session.Message{
			MemberID: m.Author.ID,
			Roles:    roles,
			Content:  m.Content,
		})
		if err != nil {
			slog.Warn("Failed to handle chat message", "guildID", m.GuildID, "error", err)
		}
	}
}

// MakeGuildCreateHandler registers a session for the guild and installs the
// slash commands there.
func MakeGuildCreateHandler(world *session.World) GuildCreateHandler {
	return func(s *discordgo.Session, g *discordgo.GuildCreate) {
		world.Add(g.ID)
		if err := EstablishCommands(s, g.ID); err != nil {
			slog.Error("Failed to establish commands", "guildID", g.ID, "error", err)
		}
	}
}

// MakeGuildDeleteHandler disposes the guild's session when the bot is
// removed. Outage events (Unavailable) keep the session around.
func MakeGuildDeleteHandler(world *session.World) GuildDeleteHandler {
	return func(s *discordgo.Session, g *discordgo.GuildDelete) {
		if g.Unavailable {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		world.Remove(ctx, g.ID)
	}
}

type Handlers struct {
	Ready             ReadyHandler
	MessageCreate     MessageCreateHandler
	GuildCreate       GuildCreateHandler
	GuildDelete       GuildDeleteHandler
	InteractionCreate InteractionCreateHandler
}

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.MessageCreate != nil {
		s.AddHandler(handlers.MessageCreate)
	}
	if handlers.GuildCreate != nil {
		s.AddHandler(handlers.GuildCreate)
	}
	if handlers.GuildDelete != nil {
		s.AddHandler(handlers.GuildDelete)
	}
	if handlers.InteractionCreate != nil {
		s.AddHandler(handlers.InteractionCreate)
	}

	return s, nil
}
