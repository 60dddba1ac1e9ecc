// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord  DiscordConfig           `yaml:"discord"`
	Admin    AdminConfig             `yaml:"admin"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Voice    VoiceConfig             `yaml:"voice"`
	Notifier NotifierConfig          `yaml:"notifier"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Hooks    HooksConfig             `yaml:"hooks"`
}

// DiscordConfig represents bot account configuration.
type DiscordConfig struct {
	Token string `yaml:"token" validate:"required"`
	// GuildID registers slash commands on a single guild (fast, for development).
	// Empty registers them globally.
	GuildID string `yaml:"guild_id"`
}

// AdminConfig represents the admin RPC server configuration.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":8080"`
	Token   string `yaml:"token" validate:"required_if=Enabled true"`
}

// ResolverConfig represents yt-dlp resolver configuration.
type ResolverConfig struct {
	YtDlpPath    string `yaml:"ytdlp_path" default:"yt-dlp"`
	Format       string `yaml:"format" default:"bestaudio[abr<=96]/bestaudio"`
	SearchPrefix string `yaml:"search_prefix" default:"ytsearch1:"`
	TimeoutSec   int    `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=300"`
	CookiesPath  string `yaml:"cookies_path"`
	Proxy        string `yaml:"proxy"`
}

// VoiceConfig represents voice transport configuration.
type VoiceConfig struct {
	FFmpegPath        string `yaml:"ffmpeg_path" default:"ffmpeg"`
	Bitrate           int    `yaml:"bitrate" default:"96000" validate:"gte=8000,lte=512000"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec" default:"10" validate:"gte=1,lte=60"`
	ReconnectDelayMax int    `yaml:"reconnect_delay_max" default:"5" validate:"gte=0,lte=60"`
}

// NotifierConfig represents outbound message delivery configuration.
type NotifierConfig struct {
	RatePerSec    float64 `yaml:"rate_per_sec" default:"5" validate:"gt=0"`
	Burst         int     `yaml:"burst" default:"5" validate:"gte=1"`
	SendTimeoutMs int     `yaml:"send_timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
	QueueSize     int     `yaml:"queue_size" default:"256" validate:"gte=1"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
// Messages ending in a title take it as the only %s verb.
type MessagesConfig struct {
	NowPlaying            string `yaml:"now_playing" default:"Now playing: **%s**"`
	AddedToQueue          string `yaml:"added_to_queue" default:"Added to queue: **%s**"`
	NotInVoiceChannel     string `yaml:"not_in_voice_channel" default:"You must be in a voice channel."`
	NoResults             string `yaml:"no_results" default:"No results found for your query."`
	NoAudioURL            string `yaml:"no_audio_url" default:"Could not retrieve the audio URL for this track."`
	ConnectFailed         string `yaml:"connect_failed" default:"Could not join your voice channel."`
	PlaybackError         string `yaml:"playback_error" default:"Could not play **%s**, skipping."`
	Skipped               string `yaml:"skipped" default:"Skipped the current song."`
	NothingToSkip         string `yaml:"nothing_to_skip" default:"Not playing anything to skip."`
	BotNotInVoice         string `yaml:"bot_not_in_voice" default:"I'm not in a voice channel."`
	NothingPlaying        string `yaml:"nothing_playing" default:"Nothing is currently playing."`
	Paused                string `yaml:"paused" default:"Playback paused!"`
	NotPaused             string `yaml:"not_paused" default:"I'm not paused right now."`
	Resumed               string `yaml:"resumed" default:"Playback resumed!"`
	Stopped               string `yaml:"stopped" default:"Stopped playback and disconnected!"`
	NotConnected          string `yaml:"not_connected" default:"I'm not connected to any voice channel."`
	QueueEmpty            string `yaml:"queue_empty" default:"The queue is empty."`
	QueueLimitExceeded    string `yaml:"queue_limit_exceeded" default:"The queue is full, try again later."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track's length is outside the allowed range."`
	UserPending           string `yaml:"user_pending" default:"You already have too many tracks waiting in the queue."`
	DefaultError          string `yaml:"default_error" default:"Something went wrong."`
}

// HooksConfig represents shell commands run around the server lifecycle.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"` // Commands to execute after the bot is online
	OnStopped []string `yaml:"on_stopped"` // Commands to execute after shutdown
}

// SpotifyConfig represents Spotify API configuration.
// Spotify links are only resolved when both fields are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// DefaultMessages returns the built-in message set.
func DefaultMessages() MessagesConfig {
	var m MessagesConfig
	// Only string fields with literal defaults; cannot fail.
	_ = defaults.Set(&m)
	return m
}

// GetMessage returns the message for the given filter rejection code.
func (c *Config) GetMessage(code string) string {
	return c.Messages.ForCode(code)
}

// ForCode returns the message for the given filter rejection code.
func (m MessagesConfig) ForCode(code string) string {
	switch code {
	case "queue_limit_exceeded":
		return m.QueueLimitExceeded
	case "duration_limit_exceeded":
		return m.DurationLimitExceeded
	case "user_pending":
		return m.UserPending
	default:
		return m.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// ResolveTimeout returns the resolver timeout.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSec) * time.Second
}

// ConnectTimeout returns the voice connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Voice.ConnectTimeoutSec) * time.Second
}

// SendTimeout returns the per-message send timeout.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Notifier.SendTimeoutMs) * time.Millisecond
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the names of enabled filters in sorted order.
func (c *Config) EnabledFilters() []string {
	names := make([]string, 0, len(c.Filters))
	for name, f := range c.Filters {
		if f.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
