package discord

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/lavalink-client/internal/config"
	"github.com/keshon/lavalink-client/pkg/lavalink"
	"github.com/keshon/lavalink-client/pkg/util"
)

// Bot is a Discord bot that plays music through remote audio nodes.
type Bot struct {
	cfg  *config.Config
	log  zerolog.Logger
	dg   *discordgo.Session
	lava *lavalink.Client
	ctx  context.Context

	// guild command creation is limited to keep clear of Discord's rate limits
	cmdLimiter *rate.Limiter
}

// NewBot creates a Bot. Nothing connects until Run.
func NewBot(cfg *config.Config, log zerolog.Logger) *Bot {
	return &Bot{
		cfg:        cfg,
		log:        log,
		cmdLimiter: rate.NewLimiter(rate.Every(time.Second/40), 1),
	}
}

// Run connects to Discord and to the audio nodes and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg
	b.ctx = ctx

	self, err := dg.User("@me")
	if err != nil {
		return fmt.Errorf("failed to retrieve bot user: %w", err)
	}

	b.lava = lavalink.New(lavalink.Config{
		UserID:      self.ID,
		ShardCount:  b.cfg.DiscordShardCount,
		Logger:      b.log.With().Str("component", "lavalink").Logger(),
		ConnectBack: b.cfg.ConnectBack,
	})
	defer b.lava.Close()
	b.lava.AddEventHook(b.onPlayerEvent)

	nodes, err := b.cfg.Nodes()
	if err != nil {
		return err
	}
	for _, nc := range nodes {
		if _, err := b.lava.AddNode(nc); err != nil {
			return fmt.Errorf("add node %s: %w", nc.Name, err)
		}
	}

	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceServerUpdate)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("Shutdown signal received, cleaning up")
	for _, p := range b.lava.Players() {
		_ = b.joinVoice(p.GuildID(), "")
	}
	return nil
}

// onReady registers the music command in every guild the bot is in.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	guilds := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		if b.isGuildBlacklisted(g.ID) {
			b.log.Info().Str("guild", g.ID).Msg("Skipping blacklisted guild")
			continue
		}
		guilds = append(guilds, g.ID)
	}

	err := util.Parallel(b.ctx, guilds, 4, func(ctx context.Context, guildID string) error {
		if err := b.registerCommands(ctx, guildID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Msg("Error registering slash commands")
		}
		return nil
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Command registration interrupted")
	}

	b.log.Info().Str("user", r.User.Username).Int("guilds", len(guilds)).Msg("Discord bot is running")
}

// onGuildCreate registers commands in guilds joined after startup.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.isGuildBlacklisted(g.ID) {
		return
	}
	if err := b.registerCommands(b.ctx, g.ID); err != nil {
		b.log.Error().Err(err).Str("guild", g.ID).Msg("Failed to register commands for guild")
	}
}

// onInteractionCreate routes slash commands.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != musicCommand.Name {
		b.log.Warn().Str("command", data.Name).Msg("Unknown command")
		return
	}
	if i.GuildID == "" || i.Member == nil {
		_ = RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{Description: "This command only works in servers."})
		return
	}

	if err := b.runMusic(s, i); err != nil {
		b.log.Error().Err(err).Str("guild", i.GuildID).Msg("Error running slash command")
		_ = RespondEmbedEphemeral(s, i, errorEmbed("Error running slash command", err))
	}
}

// registerCommands creates the music command in guildID.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	if err := b.cmdLimiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.dg.ApplicationCommandCreate(b.dg.State.User.ID, guildID, musicCommand); err != nil {
		return fmt.Errorf("create command %s: %w", musicCommand.Name, err)
	}
	b.log.Debug().Str("guild", guildID).Str("command", musicCommand.Name).Msg("Command created")
	return nil
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.cfg.DiscordGuildBlacklist, guildID)
}
