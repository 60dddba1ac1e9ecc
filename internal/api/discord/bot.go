// Package discord exposes the playback controller as Discord slash
// commands and delivers its messages to text channels.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/infra/config"
)

// Player is the playback surface driven by commands.
type Player interface {
	Play(ctx context.Context, req playback.PlayRequest) error
	Skip(ctx context.Context, guildID, replyChannelID string) error
	Pause(ctx context.Context, guildID, replyChannelID string) error
	Resume(ctx context.Context, guildID, replyChannelID string) error
	Stop(ctx context.Context, guildID, replyChannelID string) error
	Snapshot(guildID string) (queue.Snapshot, bool)
}

// Config represents command layer configuration.
type Config struct {
	GuildID        string        // Register commands on this guild only; empty for global
	CommandTimeout time.Duration // Upper bound for one command, including resolution
	Messages       config.MessagesConfig
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Search for a song and play it or add it to the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Search text or a link (YouTube, Spotify track, ...)",
				Required:    true,
			},
		},
	},
	{Name: "skip", Description: "Skip the current song"},
	{Name: "pause", Description: "Pause the current song"},
	{Name: "resume", Description: "Resume the paused song"},
	{Name: "stop", Description: "Stop playback, clear the queue and leave the voice channel"},
	{Name: "queue", Description: "Show the current song and the queue"},
}

// command is an interaction reduced to what the handlers need.
type command struct {
	Name           string
	GuildID        string
	ChannelID      string
	UserID         string
	UserName       string
	VoiceChannelID string
	Query          string
}

// Bot wires slash commands to a Player.
type Bot struct {
	session *discordgo.Session
	player  Player
	config  Config

	removeHandlers []func()
}

// NewBot creates a new bot.
func NewBot(session *discordgo.Session, player Player, cfg Config) *Bot {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = time.Minute
	}
	return &Bot{
		session: session,
		player:  player,
		config:  cfg,
	}
}

// Intents returns the gateway intents the bot needs.
func Intents() discordgo.Intent {
	return discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildVoiceStates
}

// Start registers event handlers. Call before opening the session.
func (b *Bot) Start() {
	b.removeHandlers = append(b.removeHandlers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onInteractionCreate),
	)
}

// Close removes event handlers.
func (b *Bot) Close() {
	for _, remove := range b.removeHandlers {
		remove()
	}
	b.removeHandlers = nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Msgf("discord: logged in: user=%s#%s guilds=%d", r.User.Username, r.User.Discriminator, len(r.Guilds))
	if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.config.GuildID, commands); err != nil {
		zlog.Error().Err(err).Msg("discord: failed to register commands")
		return
	}
	zlog.Info().Msgf("discord: commands registered: count=%d guild=%q", len(commands), b.config.GuildID)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.Member == nil || i.GuildID == "" {
		b.respond(i.Interaction, "This command only works in a server.", true)
		return
	}

	cmd := b.toCommand(i)

	if cmd.Name == "queue" {
		b.respond(i.Interaction, b.queueText(cmd.GuildID), false)
		return
	}

	// Replies arrive in the channel through the notifier; the interaction
	// only needs an acknowledgement within Discord's deadline.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		zlog.Warn().Err(err).Msgf("discord: could not acknowledge interaction: command=%s", cmd.Name)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.config.CommandTimeout)
		defer cancel()

		b.dispatch(ctx, cmd)
		if err := s.InteractionResponseDelete(i.Interaction); err != nil {
			zlog.Debug().Msgf("discord: could not delete acknowledgement: %v", err)
		}
	}()
}

func (b *Bot) toCommand(i *discordgo.InteractionCreate) command {
	data := i.ApplicationCommandData()
	cmd := command{
		Name:      data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}
	if i.Member.User != nil {
		cmd.UserID = i.Member.User.ID
		cmd.UserName = i.Member.User.Username
	}
	if i.Member.Nick != "" {
		cmd.UserName = i.Member.Nick
	}
	for _, opt := range data.Options {
		if opt.Name == "query" {
			cmd.Query = opt.StringValue()
		}
	}
	if cmd.Name == "play" {
		cmd.VoiceChannelID = b.voiceChannelOf(cmd.GuildID, cmd.UserID)
	}
	return cmd
}

// dispatch runs a command against the player. Errors were already
// reported to the user; they are only logged here.
func (b *Bot) dispatch(ctx context.Context, cmd command) {
	var err error
	switch cmd.Name {
	case "play":
		err = b.player.Play(ctx, playback.PlayRequest{
			GuildID:        cmd.GuildID,
			VoiceChannelID: cmd.VoiceChannelID,
			ReplyChannelID: cmd.ChannelID,
			Query:          cmd.Query,
			Requester:      requester(cmd),
		})
	case "skip":
		err = b.player.Skip(ctx, cmd.GuildID, cmd.ChannelID)
	case "pause":
		err = b.player.Pause(ctx, cmd.GuildID, cmd.ChannelID)
	case "resume":
		err = b.player.Resume(ctx, cmd.GuildID, cmd.ChannelID)
	case "stop":
		err = b.player.Stop(ctx, cmd.GuildID, cmd.ChannelID)
	default:
		err = errors.Newf("unknown command %q", cmd.Name)
	}

	if err != nil {
		zlog.Info().Msgf("discord: command ended with error: command=%s guild=%s user=%s error=%v",
			cmd.Name, cmd.GuildID, cmd.UserID, err)
	}
}

func (b *Bot) queueText(guildID string) string {
	s, ok := b.player.Snapshot(guildID)
	if !ok {
		return b.config.Messages.QueueEmpty
	}
	return formatQueue(s, b.config.Messages)
}

// voiceChannelOf returns the voice channel the user is connected to.
func (b *Bot) voiceChannelOf(guildID, userID string) string {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		zlog.Debug().Msgf("discord: guild not in state: guild=%s error=%v", guildID, err)
		return ""
	}
	return voiceChannelIn(guild, userID)
}

func voiceChannelIn(guild *discordgo.Guild, userID string) string {
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func (b *Bot) respond(i *discordgo.Interaction, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		zlog.Warn().Err(err).Msg("discord: could not respond to interaction")
	}
}
