package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var voiceSetOptions = []*discordgo.ApplicationCommandOption{
	{
		Name:        "voice",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "An exact voice name or alias.",
		Required:    false,
	},
	{
		Name:        "language",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "A language code like en-US. Picks a voice for you.",
		Required:    false,
	},
	{
		Name:        "gender",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "Preferred voice gender.",
		Required:    false,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "male", Value: "MALE"},
			{Name: "female", Value: "FEMALE"},
		},
	},
	{
		Name:        "pitch",
		Type:        discordgo.ApplicationCommandOptionNumber,
		Description: "Pitch adjustment between -10 and 10.",
		Required:    false,
	},
	{
		Name:        "speed",
		Type:        discordgo.ApplicationCommandOptionNumber,
		Description: "Speaking rate between 0.25 and 4.",
		Required:    false,
	},
	{
		Name:        "translate",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "Translate your messages to this language before speaking.",
		Required:    false,
	},
}

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "talkward",
		Description: "Control the talkward voice session",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "follow",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Have the bot join your voice channel and speak your chat",
			},
			{
				Name:        "release",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Release the bot from its voice channel",
			},
			{
				Name:        "sidle",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Move the bot into your current voice channel",
			},
			{
				Name:        "permit",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Allow a member or role to trigger speech",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "who",
						Type:        discordgo.ApplicationCommandOptionMentionable,
						Description: "The member or role to permit.",
						Required:    true,
					},
				},
			},
			{
				Name:        "unpermit",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Revoke a member or role's permission to trigger speech",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "who",
						Type:        discordgo.ApplicationCommandOptionMentionable,
						Description: "The member or role to unpermit.",
						Required:    true,
					},
				},
			},
			{
				Name:        "transfer",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Hand control of the session to another member",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "to",
						Type:        discordgo.ApplicationCommandOptionUser,
						Description: "The member to hand control to.",
						Required:    true,
					},
				},
			},
			{
				Name:        "voice",
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Description: "Manage your voice preferences",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "set",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Description: "Set your voice preferences.",
						Options:     voiceSetOptions,
					},
					{
						Name:        "reset",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Description: "Reset your voice preferences to defaults.",
					},
					{
						Name:        "list",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Description: "Browse the available voices.",
					},
				},
			},
			{
				Name:        "sfx",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Play a stored sound effect clip",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "name",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The clip to play.",
						Required:    true,
					},
				},
			},
			{
				Name:        "stats",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Show how much this server has spoken",
			},
		},
	},
}

func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}
