// Package voice implements the playback transport on Discord voice
// connections: ffmpeg decodes the stream to PCM, opus encodes it.
package voice

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/transport"
)

// Config represents voice transport configuration.
type Config struct {
	FFmpegPath        string
	Bitrate           int // Opus bitrate in bits per second
	ReconnectDelayMax int // Seconds, passed to ffmpeg -reconnect_delay_max
}

// link is the part of a Discord voice connection a stream writes to.
type link interface {
	Speaking(b bool) error
	Frames() chan<- []byte
	Disconnect() error
}

type discordLink struct {
	vc *discordgo.VoiceConnection
}

func (l discordLink) Speaking(b bool) error { return l.vc.Speaking(b) }
func (l discordLink) Frames() chan<- []byte { return l.vc.OpusSend }
func (l discordLink) Disconnect() error { return l.vc.Disconnect() }

// Connector joins voice channels through a discordgo session.
type Connector struct {
	session *discordgo.Session
	config  Config
	source  sourceFunc
	encoder encoderFunc

	mu   sync.Mutex
	gens map[string]uint64 // Latest connection generation per guild
}

// NewConnector creates a new voice connector.
func NewConnector(session *discordgo.Session, cfg Config) *Connector {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = 96000
	}
	return &Connector{
		session: session,
		config:  cfg,
		source:  ffmpegSource(cfg),
		encoder: opusEncoder(cfg.Bitrate),
		gens:    make(map[string]uint64),
	}
}

// Connect implements transport.Connector.
// discordgo reuses a guild's voice connection when it joins again, so each
// Connection carries a generation and only the latest one may disconnect.
func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (transport.Connection, error) {
	type joined struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan joined, 1)
	go func() {
		vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
		ch <- joined{vc: vc, err: err}
	}()

	select {
	case j := <-ch:
		if j.err != nil {
			return nil, errors.Wrapf(j.err, "failed to join voice channel: guild=%s channel=%s", guildID, channelID)
		}
		gen := c.nextGen(guildID)
		zlog.Info().Msgf("voice: connected: guild=%s channel=%s gen=%d", guildID, channelID, gen)
		return c.newConnection(guildID, channelID, gen, discordLink{vc: j.vc}), nil
	case <-ctx.Done():
		// Release the session if the join completes later.
		go func() {
			if j := <-ch; j.err == nil && j.vc != nil {
				_ = j.vc.Disconnect()
			}
		}()
		return nil, errors.Wrap(ctx.Err(), "voice join timed out")
	}
}

func (c *Connector) newConnection(guildID, channelID string, gen uint64, l link) *Connection {
	return &Connection{
		connector: c,
		guildID:   guildID,
		channelID: channelID,
		gen:       gen,
		link:      l,
	}
}

func (c *Connector) nextGen(guildID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[guildID]++
	return c.gens[guildID]
}

func (c *Connector) isLatest(guildID string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[guildID] == gen
}

// Connection is one voice session of a guild.
type Connection struct {
	connector *Connector
	guildID   string
	channelID string
	gen       uint64
	link      link

	mu      sync.Mutex
	current *stream
	closed  bool
}

// Play implements transport.Connection.
func (c *Connection) Play(streamRef string, onFinished transport.FinishedFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		onFinished(errors.New("voice connection closed"))
		return
	}
	if c.current != nil {
		c.current.stop()
	}
	s := newStream(streamRef, c.link, c.connector.source, c.connector.encoder, onFinished)
	c.current = s
	c.mu.Unlock()

	go s.run()
}

// Pause implements transport.Connection.
func (c *Connection) Pause() {
	if s := c.stream(); s != nil {
		s.pause()
	}
}

// Resume implements transport.Connection.
func (c *Connection) Resume() {
	if s := c.stream(); s != nil {
		s.resume()
	}
}

// Stop implements transport.Connection.
func (c *Connection) Stop() {
	if s := c.stream(); s != nil {
		s.stop()
	}
}

// IsPlaying implements transport.Connection.
func (c *Connection) IsPlaying() bool {
	s := c.stream()
	return s != nil && s.active() && !s.isPaused()
}

// IsPaused implements transport.Connection.
func (c *Connection) IsPaused() bool {
	s := c.stream()
	return s != nil && s.active() && s.isPaused()
}

// ChannelID implements transport.Connection.
func (c *Connection) ChannelID() string {
	return c.channelID
}

// Disconnect stops playback, waits for the stream to end and leaves the
// channel unless a newer connection for the guild has taken over.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.current
	c.mu.Unlock()

	if s != nil {
		s.stop()
		select {
		case <-s.done:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "stream did not stop in time")
		}
	}

	if !c.connector.isLatest(c.guildID, c.gen) {
		zlog.Debug().Msgf("voice: superseded connection released: guild=%s gen=%d", c.guildID, c.gen)
		return nil
	}
	if err := c.link.Disconnect(); err != nil {
		return errors.Wrapf(err, "failed to leave voice channel: guild=%s", c.guildID)
	}
	zlog.Info().Msgf("voice: disconnected: guild=%s channel=%s", c.guildID, c.channelID)
	return nil
}

func (c *Connection) stream() *stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
