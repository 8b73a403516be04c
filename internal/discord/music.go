package discord

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lavalink-client/pkg/lavalink"
	"github.com/keshon/lavalink-client/pkg/util"
)

// textChannelKey is the player store key holding the channel that receives
// playback notifications.
const textChannelKey = "text_channel"

const queuePreview = 10

var minVolume = 0.0

var musicCommand = &discordgo.ApplicationCommand{
	Name:        "music",
	Description: "Control music playback",
	Type:        discordgo.ChatApplicationCommand,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "play",
			Description: "Play a track or add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "input",
					Description: "Link or search query",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "source",
					Description: "Where to search when the input is not a link",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "YouTube", Value: "youtube"},
						{Name: "SoundCloud", Value: "soundcloud"},
					},
				},
			},
		},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "skip", Description: "Skip to the next track"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "stop", Description: "Stop playback and clear the queue"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "pause", Description: "Pause playback"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "resume", Description: "Resume playback"},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "volume",
			Description: "Set the volume",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "level",
				Description: "0 to 1000, 100 is the default",
				Required:    true,
				MinValue:    &minVolume,
				MaxValue:    lavalink.MaxVolume,
			}},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "seek",
			Description: "Jump to a position in the current track",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "position",
				Description: "Position such as 90, 1:30 or 1:02:03",
				Required:    true,
			}},
		},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "queue", Description: "Show the queue"},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "shuffle",
			Description: "Pick the next track at random",
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "On or off", Required: true,
			}},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "repeat",
			Description: "Re-queue tracks after they play",
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "On or off", Required: true,
			}},
		},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "now", Description: "Show the current track"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "leave", Description: "Leave the voice channel"},
	},
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) getString(name string) string {
	if v, ok := o[name]; ok {
		return v.StringValue()
	}
	return ""
}

func (o options) getInt(name string) int64 {
	if v, ok := o[name]; ok {
		return v.IntValue()
	}
	return 0
}

func (o options) getBool(name string) bool {
	if v, ok := o[name]; ok {
		return v.BoolValue()
	}
	return false
}

func (b *Bot) runMusic(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{Description: "Missing subcommand."})
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)

	if sub.Name == "play" {
		return b.runPlay(s, i, opts.getString("input"), opts.getString("source"))
	}

	p, ok := b.lava.Player(i.GuildID)
	if !ok {
		return RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{Description: "Nothing is playing."})
	}

	var (
		reply string
		err   error
	)
	switch sub.Name {
	case "skip":
		err = p.PlayNext()
		reply = "⏭️ Skipped."
	case "stop":
		p.ClearQueue()
		err = p.Stop()
		reply = "⏹️ Playback stopped. Queue cleared."
	case "pause":
		err = p.SetPause(true)
		reply = "⏸️ Paused."
	case "resume":
		err = p.SetPause(false)
		reply = "▶️ Resumed."
	case "volume":
		level := int(opts.getInt("level"))
		err = p.SetVolume(level)
		reply = fmt.Sprintf("🔊 Volume set to %d.", level)
	case "seek":
		var ms int64
		if ms, err = parsePosition(opts.getString("position")); err == nil {
			err = p.SeekTo(ms)
			reply = "⏩ Seeking to " + util.FormatTime(ms) + "."
		}
	case "queue":
		return RespondEmbed(s, i, queueEmbed(p.Current(), p.Queue(), p.Shuffle(), p.Repeat()))
	case "shuffle":
		on := opts.getBool("enabled")
		err = p.SetShuffle(on)
		reply = "🔀 Shuffle " + onOff(on) + "."
	case "repeat":
		on := opts.getBool("enabled")
		err = p.SetRepeat(on)
		reply = "🔁 Repeat " + onOff(on) + "."
	case "now":
		return RespondEmbed(s, i, nowPlayingEmbed(p.Current(), p.Position(), p.Paused()))
	case "leave":
		if err = b.joinVoice(i.GuildID, ""); err == nil {
			err = b.lava.DestroyPlayer(i.GuildID)
		}
		reply = "👋 Left the voice channel."
	default:
		return RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{Description: "Unknown subcommand: " + sub.Name})
	}

	if err != nil {
		return RespondEmbedEphemeral(s, i, errorEmbed("🎵 Error", err))
	}
	return RespondEmbed(s, i, &discordgo.MessageEmbed{Description: reply, Color: EmbedColor})
}

func (b *Bot) runPlay(s *discordgo.Session, i *discordgo.InteractionCreate, input, source string) error {
	if strings.TrimSpace(input) == "" {
		return RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{Title: "🎵 Error", Description: "Input is required."})
	}

	channelID, err := b.userVoiceChannel(i.GuildID, i.Member.User.ID)
	if err != nil {
		return RespondEmbedEphemeral(s, i, errorEmbed("🎵 Voice Error", err))
	}

	if err := RespondDeferred(s, i); err != nil {
		return fmt.Errorf("failed to send deferred response: %w", err)
	}

	tracks, title, err := b.resolve(i.GuildID, identifier(input, source), i.Member.User.ID)
	if err != nil {
		return FollowupEmbedEphemeral(s, i, errorEmbed("🎵 Error", err))
	}

	p, err := b.lava.CreatePlayer(i.GuildID)
	if err != nil {
		return FollowupEmbedEphemeral(s, i, errorEmbed("🎵 Error", err))
	}
	p.Store(textChannelKey, i.ChannelID)

	if err := p.AddTracks(i.Member.User.ID, tracks...); err != nil {
		return FollowupEmbedEphemeral(s, i, errorEmbed("🎵 Queue Error", err))
	}

	if p.ChannelID() != channelID {
		if err := b.joinVoice(i.GuildID, channelID); err != nil {
			return FollowupEmbedEphemeral(s, i, errorEmbed("🎵 Voice Error", err))
		}
	}

	if err := FollowupEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "➕ Track(s) Added",
		Description: title,
		Color:       EmbedColor,
	}); err != nil {
		b.log.Warn().Err(err).Msg("Failed to send followup")
	}

	if p.Current() == nil {
		return p.PlayNext()
	}
	return nil
}

// resolve loads identifier on the guild's node, or any node when the guild
// has no player yet.
func (b *Bot) resolve(guildID, id, requester string) ([]*lavalink.Track, string, error) {
	var node *lavalink.Node
	if p, ok := b.lava.Player(guildID); ok {
		node = p.Node()
	}
	if node == nil {
		if avail := b.lava.AvailableNodes(); len(avail) > 0 {
			node = avail[0]
		}
	}
	if node == nil {
		return nil, "", lavalink.ErrNoAvailableNode
	}

	ctx, cancel := context.WithTimeout(b.ctx, 15*time.Second)
	defer cancel()
	res, err := node.LoadTracks(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return selectTracks(res, requester)
}

// selectTracks picks what to enqueue from a load result: the whole playlist,
// or the first match of a search.
func selectTracks(res *lavalink.LoadResult, requester string) ([]*lavalink.Track, string, error) {
	switch res.LoadType {
	case lavalink.LoadFailed:
		msg := "unknown error"
		if res.Exception != nil {
			msg = res.Exception.Message
		}
		return nil, "", fmt.Errorf("failed to load track: %s", msg)
	case lavalink.LoadEmpty:
		return nil, "", errors.New("no matches found")
	}

	tracks, err := res.Build(requester)
	if err != nil {
		return nil, "", err
	}
	if len(tracks) == 0 {
		return nil, "", errors.New("no matches found")
	}

	if res.LoadType == lavalink.LoadPlaylist {
		return tracks, fmt.Sprintf("📃 %s (%d tracks)", res.PlaylistInfo.Name, len(tracks)), nil
	}
	return tracks[:1], trackLine(tracks[0]), nil
}

// identifier turns user input into a node load identifier. Links are passed
// through; anything else becomes a search on source.
func identifier(input, source string) string {
	input = strings.TrimSpace(input)
	if u, err := url.Parse(input); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return input
	}
	if source == "soundcloud" {
		return "scsearch:" + input
	}
	return "ytsearch:" + input
}

// parsePosition reads "90", "1:30" or "1:02:03" into milliseconds.
func parsePosition(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	var secs int64
	for _, part := range parts {
		var n int64
		if _, err := fmt.Sscanf(part, "%d", &n); err != nil || n < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		secs = secs*60 + n
	}
	return secs * 1000, nil
}

func trackLine(t *lavalink.Track) string {
	dur := util.FormatTime(t.Duration)
	if t.Stream {
		dur = "live"
	}
	title := t.Title
	if title == "" {
		title = t.Identifier
	}
	if t.URI != "" {
		return fmt.Sprintf("🎶 [%s](%s) `%s`", title, t.URI, dur)
	}
	return fmt.Sprintf("🎶 %s `%s`", title, dur)
}

func nowPlayingEmbed(t *lavalink.Track, position int64, paused bool) *discordgo.MessageEmbed {
	if t == nil {
		return &discordgo.MessageEmbed{Description: "Nothing is playing.", Color: EmbedColor}
	}
	title := "▶️ Now Playing"
	if paused {
		title = "⏸️ Paused"
	}
	desc := trackLine(t)
	if !t.Stream {
		desc += fmt.Sprintf("\n%s / %s", util.FormatTime(position), util.FormatTime(t.Duration))
	}
	if t.Requester != "" {
		desc += fmt.Sprintf("\nRequested by <@%s>", t.Requester)
	}
	return &discordgo.MessageEmbed{Title: title, Description: desc, Color: EmbedColor}
}

func queueEmbed(current *lavalink.Track, queue []*lavalink.Track, shuffle, repeat bool) *discordgo.MessageEmbed {
	var sb strings.Builder
	if current != nil {
		sb.WriteString("**Now:** " + trackLine(current) + "\n\n")
	}
	if len(queue) == 0 {
		sb.WriteString("The queue is empty.")
	}
	for n, t := range queue {
		if n == queuePreview {
			fmt.Fprintf(&sb, "…and %d more", len(queue)-queuePreview)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", n+1, trackLine(t))
	}
	return &discordgo.MessageEmbed{
		Title:       "📜 Queue",
		Description: strings.TrimRight(sb.String(), "\n"),
		Color:       EmbedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Shuffle %s · Repeat %s", onOff(shuffle), onOff(repeat))},
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// onPlayerEvent posts playback notifications to the channel the music was
// requested from.
func (b *Bot) onPlayerEvent(e lavalink.Event) {
	var (
		p     *lavalink.Player
		embed *discordgo.MessageEmbed
	)
	switch ev := e.(type) {
	case lavalink.TrackStartEvent:
		p, embed = ev.Player, nowPlayingEmbed(ev.Track, 0, false)
	case lavalink.QueueEndEvent:
		p, embed = ev.Player, &discordgo.MessageEmbed{Description: "🏁 Queue ended.", Color: EmbedColor}
	case lavalink.TrackExceptionEvent:
		p, embed = ev.Player, &discordgo.MessageEmbed{Title: "⚠️ Playback Error", Description: ev.Error}
	case lavalink.NodeChangedEvent:
		b.log.Info().Str("guild", ev.Player.GuildID()).Str("node", ev.New.Name()).Msg("Player moved")
		return
	default:
		return
	}

	channelID, _ := p.Fetch(textChannelKey, "").(string)
	if channelID == "" {
		return
	}
	go func() {
		if err := MessageEmbed(b.dg, channelID, embed); err != nil {
			b.log.Warn().Err(err).Str("channel", channelID).Msg("Failed to post player event")
		}
	}()
}
