// Package main provides the bot server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
	"github.com/osa030/guildbox/internal/api/discord"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/app/resolve"
	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/logger"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/voice"
	"github.com/osa030/guildbox/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("guildbox-server", "guildbox Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

const shutdownTimeout = 10 * time.Second

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic so deferred cleanup always runs.
func run(cfg *config.Config) error {
	ctx := context.Background()

	filters, err := buildFilters(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	resolver := buildResolver(ctx, cfg)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return errors.Wrap(err, "failed to create Discord session")
	}
	session.Identify.Intents = discord.Intents()

	dispatcher := notification.NewDispatcher(discord.NewChannelSender(session), notification.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		SendTimeout: cfg.SendTimeout(),
		QueueSize:   cfg.Notifier.QueueSize,
	})

	connector := voice.NewConnector(session, voice.Config{
		FFmpegPath:        cfg.Voice.FFmpegPath,
		Bitrate:           cfg.Voice.Bitrate,
		ReconnectDelayMax: cfg.Voice.ReconnectDelayMax,
	})

	controller := playback.NewController(playback.Config{
		Messages:       cfg.Messages,
		Filters:        filters,
		ResolveTimeout: cfg.ResolveTimeout(),
		ConnectTimeout: cfg.ConnectTimeout(),
	}, queue.NewRegistry(), resolver, connector, dispatcher)

	presence := discord.NewPresence(session)
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		consumeEvents(controller.Events(), presence)
	}()

	bot := discord.NewBot(session, controller, discord.Config{
		GuildID:  cfg.Discord.GuildID,
		Messages: cfg.Messages,
	})
	bot.Start()

	if err := session.Open(); err != nil {
		return errors.Wrap(err, "failed to open Discord session")
	}

	var server *http.Server
	serverErrCh := make(chan error, 1)
	if cfg.Admin.Enabled {
		server = newAdminServer(cfg, controller)
		go func() {
			zlog.Info().Msgf("Starting admin server: addr=%s", cfg.Admin.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrCh <- err
			}
		}()
	}

	executeHooks(cfg.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "admin server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop taking commands, then leave every voice channel while the
	// gateway is still open.
	bot.Close()
	controller.Close(shutdownCtx)
	<-eventsDone

	if err := dispatcher.Close(shutdownCtx); err != nil {
		zlog.Warn().Msgf("Failed to flush notifications: %v", err)
	}
	if err := session.Close(); err != nil {
		zlog.Error().Msgf("Failed to close Discord session: %v", err)
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown admin server: %v", err)
		}
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Hooks.OnStopped, "on_stopped")

	return runErr
}

// buildFilters creates the filter chain from enabled filters.
func buildFilters(cfg *config.Config) (*filter.Chain, error) {
	names := cfg.EnabledFilters()
	specs := make([]filter.Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, filter.Spec{Name: name, Settings: cfg.Filters[name].Settings})
	}
	return filter.BuildChain(specs)
}

// buildResolver creates the yt-dlp resolver, with Spotify track links
// rewritten to searches when credentials are configured.
func buildResolver(ctx context.Context, cfg *config.Config) *resolve.Chain {
	ytdlpResolver := ytdlp.New(ytdlp.Config{
		Path:         cfg.Resolver.YtDlpPath,
		Format:       cfg.Resolver.Format,
		SearchPrefix: cfg.Resolver.SearchPrefix,
		CookiesPath:  cfg.Resolver.CookiesPath,
		Proxy:        cfg.Resolver.Proxy,
	})

	if !cfg.SpotifyEnabled() {
		zlog.Info().Msg("Spotify not configured, Spotify links are passed to yt-dlp as-is")
		return resolve.NewChain(ytdlpResolver)
	}

	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		zlog.Warn().Msgf("Spotify unavailable, Spotify links are passed to yt-dlp as-is: %v", err)
		return resolve.NewChain(ytdlpResolver)
	}
	return resolve.NewChain(ytdlpResolver, spotifyClient)
}

func newAdminServer(cfg *config.Config, controller *playback.Controller) *http.Server {
	mux := http.NewServeMux()
	path, handler := apiconnect.NewAdminServiceHandler(
		apiconnect.NewAdminService(controller),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)
	mux.Handle(path, handler)

	return &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// consumeEvents runs until the controller closes its event channel.
func consumeEvents(events <-chan playback.Event, presence *discord.Presence) {
	for ev := range events {
		handleEvent(ev, presence)
	}
}

func handleEvent(ev playback.Event, presence *discord.Presence) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("Panic while handling event %s: %v", ev.Type, r)
		}
	}()

	if ev.Err != nil {
		zlog.Warn().Msgf("Playback event: type=%s guild=%s epoch=%d error=%v", ev.Type, ev.GuildID, ev.Epoch, ev.Err)
	} else {
		zlog.Debug().Msgf("Playback event: type=%s guild=%s epoch=%d state=%s", ev.Type, ev.GuildID, ev.Epoch, ev.State)
	}
	presence.HandleEvent(ev)
}

// printFilters prints available filters.
func printFilters() {
	registered := filter.GetRegistered()
	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
