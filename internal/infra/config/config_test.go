package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: Config{
				Discord:  DiscordConfig{Token: "bot-token"},
				Resolver: ResolverConfig{TimeoutSec: 30},
				Voice:    VoiceConfig{Bitrate: 96000, ConnectTimeoutSec: 10},
				Notifier: NotifierConfig{RatePerSec: 5, Burst: 5, SendTimeoutMs: 5000, QueueSize: 16},
			},
			wantErr: false,
		},
		{
			name: "missing discord token",
			config: Config{
				Resolver: ResolverConfig{TimeoutSec: 30},
				Voice:    VoiceConfig{Bitrate: 96000, ConnectTimeoutSec: 10},
				Notifier: NotifierConfig{RatePerSec: 5, Burst: 5, SendTimeoutMs: 5000, QueueSize: 16},
			},
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name: "admin enabled without token",
			config: Config{
				Discord:  DiscordConfig{Token: "bot-token"},
				Admin:    AdminConfig{Enabled: true, Addr: ":8080"},
				Resolver: ResolverConfig{TimeoutSec: 30},
				Voice:    VoiceConfig{Bitrate: 96000, ConnectTimeoutSec: 10},
				Notifier: NotifierConfig{RatePerSec: 5, Burst: 5, SendTimeoutMs: 5000, QueueSize: 16},
			},
			wantErr: true,
			errMsg:  "Admin.Token",
		},
		{
			name: "spotify id without secret",
			config: Config{
				Discord:  DiscordConfig{Token: "bot-token"},
				Resolver: ResolverConfig{TimeoutSec: 30},
				Voice:    VoiceConfig{Bitrate: 96000, ConnectTimeoutSec: 10},
				Notifier: NotifierConfig{RatePerSec: 5, Burst: 5, SendTimeoutMs: 5000, QueueSize: 16},
				Spotify:  SpotifyConfig{ClientID: "id"},
			},
			wantErr: true,
			errMsg:  "ClientSecret",
		},
		{
			name: "bitrate out of range",
			config: Config{
				Discord:  DiscordConfig{Token: "bot-token"},
				Resolver: ResolverConfig{TimeoutSec: 30},
				Voice:    VoiceConfig{Bitrate: 1000, ConnectTimeoutSec: 10},
				Notifier: NotifierConfig{RatePerSec: 5, Burst: 5, SendTimeoutMs: 5000, QueueSize: 16},
			},
			wantErr: true,
			errMsg:  "Bitrate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	cfg, err := Parse([]byte("discord:\n  token: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Discord.Token)
	assert.Equal(t, "yt-dlp", cfg.Resolver.YtDlpPath)
	assert.Equal(t, "ytsearch1:", cfg.Resolver.SearchPrefix)
	assert.Equal(t, 30*time.Second, cfg.ResolveTimeout())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 5*time.Second, cfg.SendTimeout())
	assert.Equal(t, "Now playing: **%s**", cfg.Messages.NowPlaying)
	assert.False(t, cfg.SpotifyEnabled())
}

func TestParse_FileValuesKept(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	data := []byte(`
discord:
  token: abc
messages:
  now_playing: "Jetzt läuft: %s"
voice:
  bitrate: 64000
filters:
  queue_limit_filter:
    enabled: true
    settings:
      max_pending: 10
  duration_limit_filter:
    enabled: false
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "Jetzt läuft: %s", cfg.Messages.NowPlaying)
	assert.Equal(t, "Skipped the current song.", cfg.Messages.Skipped)
	assert.Equal(t, 64000, cfg.Voice.Bitrate)
	assert.True(t, cfg.IsFilterEnabled("queue_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("unknown"))
	assert.Equal(t, []string{"queue_limit_filter"}, cfg.EnabledFilters())
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord:\n  token: from-file\n"), 0o600))

	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("SPOTIFY_CLIENT_ID", "sid")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "ssecret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Discord.Token)
	assert.True(t, cfg.SpotifyEnabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestMessages_ForCode(t *testing.T) {
	m := DefaultMessages()

	tests := []struct {
		code     string
		expected string
	}{
		{code: "queue_limit_exceeded", expected: m.QueueLimitExceeded},
		{code: "duration_limit_exceeded", expected: m.DurationLimitExceeded},
		{code: "user_pending", expected: m.UserPending},
		{code: "something_else", expected: m.DefaultError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.ForCode(tt.code))
		})
	}
	assert.NotEmpty(t, m.DefaultError)
}

func TestLoad_BundledExample(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "bot-token")

	cfg, err := Load("../../../config/server.yaml")

	require.NoError(t, err)
	assert.Equal(t, "bot-token", cfg.Discord.Token)
	assert.False(t, cfg.SpotifyEnabled())
	assert.Equal(t, []string{"queue_limit_filter", "user_pending_filter"}, cfg.EnabledFilters())
	assert.Empty(t, cfg.Hooks.OnStarted)
}
