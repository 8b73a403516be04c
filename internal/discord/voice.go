package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var errNotInVoice = errors.New("join a voice channel first")

// onVoiceServerUpdate hands the voice server credentials to the guild's player.
func (b *Bot) onVoiceServerUpdate(_ *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	b.lava.VoiceServerUpdate(v.GuildID, voiceServerEvent(v))
}

// onVoiceStateUpdate forwards voice state changes. The client ignores every
// user but the bot itself.
func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil {
		return
	}
	b.lava.VoiceStateUpdate(v.GuildID, v.UserID, v.SessionID, v.ChannelID)
}

// voiceServerEvent converts the gateway payload back into the raw shape the
// node expects in voiceUpdate.
func voiceServerEvent(v *discordgo.VoiceServerUpdate) map[string]any {
	return map[string]any{
		"token":    v.Token,
		"guild_id": v.GuildID,
		"endpoint": v.Endpoint,
	}
}

// userVoiceChannel returns the voice channel userID is connected to.
func (b *Bot) userVoiceChannel(guildID, userID string) (string, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("error retrieving guild: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", errNotInVoice
}

// joinVoice asks the gateway to move the bot into channelID. The node, not
// this process, opens the voice connection, so only the voice state op is
// sent. An empty channelID leaves voice.
func (b *Bot) joinVoice(guildID, channelID string) error {
	return b.dg.ChannelVoiceJoinManual(guildID, channelID, false, true)
}
