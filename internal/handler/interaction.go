package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/talkward/internal/presenters"
	"github.com/glizzus/talkward/internal/session"
	"github.com/glizzus/talkward/internal/settings"
	"github.com/glizzus/talkward/internal/stats"
	"github.com/glizzus/talkward/internal/tts"
	"github.com/glizzus/talkward/internal/util"
)

// DiscordSession is the slice of discordgo.Session the interaction router
// needs. Tests substitute a mock.
type DiscordSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// MakeInteractionCreateHandler routes the talkward slash command tree and
// the voice select menu to the guild's session.
func MakeInteractionCreateHandler(world *session.World, registry *tts.Registry, recorder stats.Recorder) InteractionCreateHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		switch i.Type {
		case discordgo.InteractionMessageComponent:
			reply, err := dispatchComponent(ctx, world, i)
			if err != nil {
				reply = replyForError(i.GuildID, err)
			}
			respond(s, i, reply)

		case discordgo.InteractionApplicationCommand:
			command := i.ApplicationCommandData()
			if command.Name != "talkward" || len(command.Options) == 0 {
				return
			}
			reply, err := dispatch(ctx, s, world, registry, recorder, i, command.Options[0])
			if err != nil {
				reply = replyForError(i.GuildID, err)
			}
			respond(s, i, reply)
		}
	}
}

// dispatchComponent handles the voice select menu: picking an entry stores
// it as the member's voice.
func dispatchComponent(ctx context.Context, world *session.World, i *discordgo.InteractionCreate) (string, error) {
	data := i.MessageComponentData()
	if data.CustomID != presenters.ComponentIDVoiceSelect || len(data.Values) == 0 {
		return "", nil
	}

	sess, ok := world.Get(i.GuildID)
	if !ok {
		return "", &UserError{Message: "talkward is not active in this server"}
	}
	memberID := interactionMemberID(i)

	current, err := sess.MemberSettings(ctx, memberID)
	if err != nil {
		return "", err
	}
	current.Voice = data.Values[0]
	if err := sess.UpdateMemberSettings(ctx, memberID, current); err != nil {
		return "", err
	}
	return "Voice set to " + data.Values[0] + ".", nil
}

func dispatch(
	ctx context.Context,
	s *discordgo.Session,
	world *session.World,
	registry *tts.Registry,
	recorder stats.Recorder,
	i *discordgo.InteractionCreate,
	sub *discordgo.ApplicationCommandInteractionDataOption,
) (string, error) {
	sess, ok := world.Get(i.GuildID)
	if !ok {
		return "", &UserError{Message: "talkward is not active in this server"}
	}
	memberID := interactionMemberID(i)

	switch sub.Name {
	case "follow":
		channelID, err := memberVoiceChannel(s, i.GuildID, memberID)
		if err != nil {
			return "", err
		}
		if err := sess.Follow(ctx, memberID, channelID); err != nil {
			return "", err
		}
		return "Following you. Chat away.", nil

	case "release":
		if err := requireMaster(sess, memberID); err != nil {
			return "", err
		}
		if err := sess.Release(ctx); err != nil {
			return "", err
		}
		return "Released.", nil

	case "sidle":
		if err := requireMaster(sess, memberID); err != nil {
			return "", err
		}
		channelID, err := memberVoiceChannel(s, i.GuildID, memberID)
		if err != nil {
			return "", err
		}
		if err := sess.SwitchChannel(ctx, channelID); err != nil {
			return "", err
		}
		return "Sidled over.", nil

	case "permit":
		if err := requireMaster(sess, memberID); err != nil {
			return "", err
		}
		id, err := mentionableID(sub.Options, "who")
		if err != nil {
			return "", err
		}
		if err := sess.Permit(id); err != nil {
			return "", err
		}
		return "Permitted.", nil

	case "unpermit":
		if err := requireMaster(sess, memberID); err != nil {
			return "", err
		}
		id, err := mentionableID(sub.Options, "who")
		if err != nil {
			return "", err
		}
		sess.Unpermit(id)
		return "Unpermitted.", nil

	case "transfer":
		if err := requireMaster(sess, memberID); err != nil {
			return "", err
		}
		opts := optionMap(sub.Options)
		to, ok := opts["to"]
		if !ok {
			return "", &UserError{Message: "tell me who to transfer to"}
		}
		if err := sess.SetMaster(to.UserValue(nil).ID); err != nil {
			return "", err
		}
		return "Control transferred.", nil

	case "voice":
		if len(sub.Options) == 0 {
			return "", &UserError{Message: "voice needs a subcommand"}
		}
		if sub.Options[0].Name == "list" {
			resp := presenters.BuildVoiceListResponse(registry.Voices())
			if err := s.InteractionRespond(i.Interaction, resp); err != nil {
				slog.Error("Failed to respond with voice list", "error", err)
			}
			return "", nil
		}
		return handleVoice(ctx, sess, memberID, sub.Options[0])

	case "sfx":
		opts := optionMap(sub.Options)
		name, ok := opts["name"]
		if !ok {
			return "", &UserError{Message: "which clip?"}
		}
		if err := sess.PlaySound(ctx, name.StringValue()); err != nil {
			return "", err
		}
		return "Playing " + name.StringValue() + ".", nil

	case "stats":
		totals, err := recorder.Totals(ctx, i.GuildID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("This server has spoken %d messages (%d characters).",
			totals.Messages, totals.Characters), nil
	}

	return "", &UserError{Message: "unknown command"}
}

func handleVoice(
	ctx context.Context,
	sess *session.Session,
	memberID string,
	sub *discordgo.ApplicationCommandInteractionDataOption,
) (string, error) {
	switch sub.Name {
	case "reset":
		if err := sess.ResetMemberSettings(ctx, memberID); err != nil {
			return "", err
		}
		return "Voice preferences reset.", nil

	case "set":
		current, err := sess.MemberSettings(ctx, memberID)
		if err != nil {
			return "", err
		}
		updated := applyVoiceOptions(current, sub.Options)
		if err := sess.UpdateMemberSettings(ctx, memberID, updated); err != nil {
			return "", err
		}
		return "Voice preferences updated.", nil
	}
	return "", &UserError{Message: "unknown voice subcommand"}
}

// applyVoiceOptions merges supplied options over the member's current
// settings, leaving omitted fields untouched.
func applyVoiceOptions(
	m settings.MemberSettings,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) settings.MemberSettings {
	for _, option := range options {
		switch option.Name {
		case "voice":
			m.Voice = option.StringValue()
		case "language":
			m.Language = option.StringValue()
		case "gender":
			m.Gender = option.StringValue()
		case "pitch":
			m.Pitch = util.Clamp(option.FloatValue(), -10, 10)
		case "speed":
			m.Speed = util.Clamp(option.FloatValue(), 0.25, 4)
		case "translate":
			m.TranslateLanguage = option.StringValue()
		}
	}
	return m
}

func optionMap(
	options []*discordgo.ApplicationCommandInteractionDataOption,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		m[option.Name] = option
	}
	return m
}

// mentionableID extracts the raw snowflake behind a mentionable option,
// which may name either a member or a role.
func mentionableID(
	options []*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) (string, error) {
	opts := optionMap(options)
	option, ok := opts[name]
	if !ok {
		return "", &UserError{Message: "missing " + name + " option"}
	}
	id, ok := option.Value.(string)
	if !ok || id == "" {
		return "", &UserError{Message: "invalid " + name + " option"}
	}
	return id, nil
}

func interactionMemberID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// memberVoiceChannel finds the voice channel the member currently occupies.
func memberVoiceChannel(s *discordgo.Session, guildID, memberID string) (string, error) {
	g, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("failed to look up guild %s: %w", guildID, err)
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == memberID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", &NotInVoiceChannelError{MemberID: memberID}
}

func requireMaster(sess *session.Session, memberID string) error {
	if !sess.IsMaster(memberID) {
		return &UserError{Message: "only the session master can do that"}
	}
	return nil
}

// replyForError turns an error into something worth showing the user.
// Anything unexpected gets a generic reply and a log line.
func replyForError(guildID string, err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}
	var notInVoice *NotInVoiceChannelError
	if errors.As(err, &notInVoice) {
		return "Join a voice channel first."
	}

	switch {
	case errors.Is(err, session.ErrNotBound):
		return "I'm not in a voice channel."
	case errors.Is(err, session.ErrAlreadyBound):
		return "I'm already following someone here."
	case errors.Is(err, session.ErrFollowInProgress):
		return "Hold on, I'm already joining a channel."
	case errors.Is(err, session.ErrFollowCancelled):
		return "I was released before I could join."
	}

	slog.Error("Command failed", "guildID", guildID, "error", err)
	return "Something went wrong."
}

func respond(s DiscordSession, i *discordgo.InteractionCreate, content string) {
	if content == "" {
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}
