package handler

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/talkward/internal/session"
	"github.com/glizzus/talkward/internal/settings"
)

func strOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func numOption(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionNumber,
		Value: value,
	}
}

func TestApplyVoiceOptions(t *testing.T) {
	tests := []struct {
		name     string
		current  settings.MemberSettings
		options  []*discordgo.ApplicationCommandInteractionDataOption
		expected settings.MemberSettings
	}{
		{
			name:    "sets provided fields",
			current: settings.MemberSettings{},
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				strOption("voice", "amy"),
				strOption("language", "en-US"),
				strOption("gender", "FEMALE"),
				numOption("pitch", 3),
				numOption("speed", 1.5),
			},
			expected: settings.MemberSettings{
				Voice:    "amy",
				Language: "en-US",
				Gender:   "FEMALE",
				Pitch:    3,
				Speed:    1.5,
			},
		},
		{
			name: "omitted fields are untouched",
			current: settings.MemberSettings{
				Voice: "brian",
				Pitch: -2,
			},
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				strOption("translate", "es"),
			},
			expected: settings.MemberSettings{
				Voice:             "brian",
				Pitch:             -2,
				TranslateLanguage: "es",
			},
		},
		{
			name:    "out of range values are clamped",
			current: settings.MemberSettings{},
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				numOption("pitch", 99),
				numOption("speed", 0.01),
			},
			expected: settings.MemberSettings{
				Pitch: 10,
				Speed: 0.25,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyVoiceOptions(tt.current, tt.options)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("settings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMentionableID(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{
			Name:  "who",
			Type:  discordgo.ApplicationCommandOptionMentionable,
			Value: "123456",
		},
	}

	id, err := mentionableID(options, "who")
	if err != nil {
		t.Fatalf("mentionableID: %v", err)
	}
	if id != "123456" {
		t.Errorf("id = %q, want 123456", id)
	}

	if _, err := mentionableID(nil, "who"); err == nil {
		t.Error("expected error for missing option")
	}
}

func TestInteractionMemberID(t *testing.T) {
	guild := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{User: &discordgo.User{ID: "m-1"}},
		},
	}
	if got := interactionMemberID(guild); got != "m-1" {
		t.Errorf("guild interaction member = %q, want m-1", got)
	}

	dm := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			User: &discordgo.User{ID: "u-1"},
		},
	}
	if got := interactionMemberID(dm); got != "u-1" {
		t.Errorf("dm interaction member = %q, want u-1", got)
	}
}

func TestReplyForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "user error passes through",
			err:      &UserError{Message: "only the session master can do that"},
			expected: "only the session master can do that",
		},
		{
			name:     "not in voice channel",
			err:      &NotInVoiceChannelError{MemberID: "m-1"},
			expected: "Join a voice channel first.",
		},
		{
			name:     "not bound",
			err:      session.ErrNotBound,
			expected: "I'm not in a voice channel.",
		},
		{
			name:     "already bound",
			err:      session.ErrAlreadyBound,
			expected: "I'm already following someone here.",
		},
		{
			name:     "follow cancelled by release",
			err:      session.ErrFollowCancelled,
			expected: "I was released before I could join.",
		},
		{
			name:     "unexpected errors get a generic reply",
			err:      errors.New("pipe burst"),
			expected: "Something went wrong.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replyForError("guild-1", tt.err); got != tt.expected {
				t.Errorf("replyForError = %q, want %q", got, tt.expected)
			}
		})
	}
}

type mockSession struct {
	responses []*discordgo.InteractionResponse
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.responses = append(m.responses, resp)
	return nil
}

var _ DiscordSession = (*mockSession)(nil)

func TestRespond(t *testing.T) {
	mock := &mockSession{}
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}

	respond(mock, i, "hello")
	respond(mock, i, "")

	if len(mock.responses) != 1 {
		t.Fatalf("responses = %d, want 1 (empty content is not sent)", len(mock.responses))
	}
	if got := mock.responses[0].Data.Content; got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
	if mock.responses[0].Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("command replies should be ephemeral")
	}
}
