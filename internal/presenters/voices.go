// Package presenters builds Discord interaction responses for the richer
// command replies: anything beyond a plain text line.
package presenters

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/talkward/internal/tts"
)

// selectMenuLimit is Discord's cap on options in one select menu.
const selectMenuLimit = 25

var noVoicesFoundResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "No voices available",
		Flags:   discordgo.MessageFlagsEphemeral,
	},
}

const ComponentIDVoiceSelect = "voice_select_menu"

func voiceToSelectMenuOption(v tts.Voice) discordgo.SelectMenuOption {
	return discordgo.SelectMenuOption{
		Label:       v.Alias,
		Value:       v.ID,
		Description: fmt.Sprintf("%s, %s (%s)", v.Language, v.Gender, v.Provider),
	}
}

var voiceSelectMinValues = 1

func buildVoiceSelectMenu(voices []tts.Voice) *discordgo.InteractionResponse {
	if len(voices) > selectMenuLimit {
		voices = voices[:selectMenuLimit]
	}

	var options []discordgo.SelectMenuOption
	for _, v := range voices {
		options = append(options, voiceToSelectMenuOption(v))
	}

	menu := discordgo.SelectMenu{
		CustomID:    ComponentIDVoiceSelect,
		Placeholder: "Pick a voice",
		MinValues:   &voiceSelectMinValues,
		MaxValues:   1,
		Options:     options,
	}

	row := discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			menu,
		},
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Pick a voice:",
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				row,
			},
		},
	}
}

// BuildVoiceListResponse renders the available voices as a select menu so a
// member can pick one without typing its name.
func BuildVoiceListResponse(voices []tts.Voice) *discordgo.InteractionResponse {
	if len(voices) == 0 {
		return noVoicesFoundResponse
	}

	return buildVoiceSelectMenu(voices)
}
