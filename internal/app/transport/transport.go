// Package transport defines the voice transport boundary used by playback.
package transport

import "context"

// FinishedFunc is invoked exactly once per Connection.Play call, after the
// stream ends cleanly (err == nil), is stopped, or fails. It may be called
// from any goroutine, including synchronously from inside Play or Stop.
type FinishedFunc func(err error)

// Connector establishes voice connections.
type Connector interface {
	// Connect joins the given voice channel of a guild.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is a live voice session for one guild.
type Connection interface {
	// Play starts streaming streamRef. It must not block for the duration
	// of the stream.
	Play(streamRef string, onFinished FinishedFunc)
	Pause()
	Resume()
	// Stop ends the current stream. Safe to call repeatedly.
	Stop()
	Disconnect(ctx context.Context) error
	IsPlaying() bool
	IsPaused() bool
	ChannelID() string
}
