// Package ytdlp resolves queries and links to audio streams with yt-dlp.
package ytdlp

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/resolve"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Config represents yt-dlp resolver configuration.
type Config struct {
	Path         string // Executable, default "yt-dlp"
	Format       string // Format selector
	SearchPrefix string // Prepended to plain-text queries, e.g. "ytsearch1:"
	CookiesPath  string
	Proxy        string
}

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Resolver implements resolve.Resolver on top of the yt-dlp CLI.
type Resolver struct {
	config Config
	run    runFunc
}

// New creates a new yt-dlp resolver.
func New(cfg Config) *Resolver {
	if cfg.Path == "" {
		cfg.Path = "yt-dlp"
	}
	if cfg.Format == "" {
		cfg.Format = "bestaudio/best"
	}
	if cfg.SearchPrefix == "" {
		cfg.SearchPrefix = "ytsearch1:"
	}
	return &Resolver{config: cfg, run: runCommand}
}

// info is the subset of yt-dlp's JSON output we read.
type info struct {
	Type             string   `json:"_type"`
	Title            string   `json:"title"`
	URL              string   `json:"url"`
	WebpageURL       string   `json:"webpage_url"`
	Duration         float64  `json:"duration"`
	IsLive           bool     `json:"is_live"`
	Entries          []info   `json:"entries"`
	RequestedFormats []format `json:"requested_formats"`
}

type format struct {
	URL    string `json:"url"`
	ACodec string `json:"acodec"`
}

// Resolve implements resolve.Resolver.
func (r *Resolver) Resolve(ctx context.Context, query string) (track.Track, error) {
	args := r.args(query)
	start := time.Now()
	out, err := r.run(ctx, r.config.Path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return track.Track{}, errors.Wrap(ctxErr, "yt-dlp interrupted")
		}
		return track.Track{}, errors.Mark(errors.Wrap(err, "yt-dlp failed"), resolve.ErrNotFound)
	}
	zlog.Debug().Msgf("ytdlp: resolved: query=%q elapsed=%v bytes=%d", query, time.Since(start), len(out))
	return parse(out)
}

// args builds the yt-dlp command line for a query.
func (r *Resolver) args(query string) []string {
	args := []string{
		"-J",
		"--no-playlist",
		"--no-warnings",
		"-f", r.config.Format,
	}
	if r.config.CookiesPath != "" {
		args = append(args, "--cookies", r.config.CookiesPath)
	}
	if r.config.Proxy != "" {
		args = append(args, "--proxy", r.config.Proxy)
	}

	target := strings.TrimSpace(query)
	if !isURL(target) {
		target = r.config.SearchPrefix + target
	}
	return append(args, "--", target)
}

// parse converts yt-dlp JSON output into a track.
func parse(data []byte) (track.Track, error) {
	var v info
	if err := json.Unmarshal(data, &v); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to decode yt-dlp output")
	}

	if v.Type == "playlist" || v.Entries != nil {
		if len(v.Entries) == 0 {
			return track.Track{}, errors.Wrap(resolve.ErrNotFound, "search returned no entries")
		}
		v = v.Entries[0]
	}

	streamURL := v.URL
	if streamURL == "" {
		for _, f := range v.RequestedFormats {
			if f.URL != "" && f.ACodec != "none" {
				streamURL = f.URL
				break
			}
		}
	}
	if streamURL == "" {
		return track.Track{}, errors.Wrapf(resolve.ErrNoStream, "title %q", v.Title)
	}

	t := track.New(streamURL, v.Title)
	t.WebpageURL = v.WebpageURL
	if !v.IsLive && v.Duration > 0 {
		t.Duration = time.Duration(v.Duration * float64(time.Second))
	}
	return t, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, errors.Wrap(err, msg)
		}
		return nil, err
	}
	return out, nil
}
