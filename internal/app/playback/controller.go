// Package playback drives per-guild queues: it decides when to start,
// continue, pause or terminate playback and talks to the voice transport.
package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/app/resolve"
	"github.com/osa030/guildbox/internal/app/transport"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

// Notifier delivers user-facing text. Notify must not block; it is called
// while a guild is locked.
type Notifier interface {
	Notify(channelID, text string)
}

// Config holds controller configuration.
type Config struct {
	Messages          config.MessagesConfig
	Filters           *filter.Chain // Optional
	ResolveTimeout    time.Duration // Zero means no timeout
	ConnectTimeout    time.Duration // Zero means no timeout
	DisconnectTimeout time.Duration // Zero means 5s
	EventBuffer       int           // Zero means 64
}

// PlayRequest is a user request to play a query in a guild.
type PlayRequest struct {
	GuildID        string
	VoiceChannelID string // Voice channel of the requester, empty if none
	ReplyChannelID string // Text channel for replies
	Query          string
	Requester      track.Requester
}

// Controller runs the playback state machine of every guild in a registry.
type Controller struct {
	registry  *queue.Registry
	resolver  resolve.Resolver
	connector transport.Connector
	notifier  Notifier
	config    Config

	eventCh chan Event

	mu      sync.Mutex // Guards closing and eventCh close; taken after a guild lock
	closing bool
	wg      sync.WaitGroup // Finished-callback goroutines
}

// NewController creates a new playback controller.
func NewController(cfg Config, registry *queue.Registry, resolver resolve.Resolver, connector transport.Connector, notifier Notifier) *Controller {
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = 5 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return &Controller{
		registry:  registry,
		resolver:  resolver,
		connector: connector,
		notifier:  notifier,
		config:    cfg,
		eventCh:   make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Play resolves the query, enqueues the track and starts playback if the
// guild was idle.
func (c *Controller) Play(ctx context.Context, req PlayRequest) error {
	msgs := c.config.Messages
	if req.VoiceChannelID == "" {
		c.reply(req.ReplyChannelID, msgs.NotInVoiceChannel)
		return ErrNotInVoiceChannel
	}

	t, err := c.resolve(ctx, req.Query)
	if err != nil {
		zlog.Info().Msgf("playback: resolve failed: guild=%s query=%q error=%v", req.GuildID, req.Query, err)
		if errors.Is(err, resolve.ErrNoStream) {
			c.reply(req.ReplyChannelID, msgs.NoAudioURL)
		} else {
			c.reply(req.ReplyChannelID, msgs.NoResults)
		}
		return errors.Mark(errors.Wrapf(err, "resolve %q", req.Query), ErrResolutionFailed)
	}

	result := c.config.Filters.Execute(ctx, filter.Request{
		GuildID: req.GuildID,
		UserID:  req.Requester.UserID,
		Track:   t,
	}, c.registry)
	if !result.Accepted {
		zlog.Info().Msgf("playback: request rejected: guild=%s user=%s filter=%s code=%s",
			req.GuildID, req.Requester.UserID, result.Filter, result.Code)
		c.reply(req.ReplyChannelID, msgs.ForCode(result.Code))
		return errors.Wrapf(ErrRejected, "%s: %s", result.Filter, result.Code)
	}

	qt := track.QueuedTrack{
		Track:          t,
		Requester:      req.Requester,
		ReplyChannelID: req.ReplyChannelID,
		AddedAt:        time.Now(),
	}
	ticket := c.registry.Enqueue(req.GuildID, qt)
	zlog.Info().Msgf("playback: track enqueued: guild=%s session=%s title=%q position=%d prior=%s start=%t",
		req.GuildID, ticket.Guild.SessionID(), t.Title, ticket.Position, ticket.Prior, ticket.Start)

	if !ticket.Start {
		c.reply(req.ReplyChannelID, withTitle(msgs.AddedToQueue, t.Title))
		return nil
	}
	return c.start(ctx, ticket.Guild, req)
}

// resolve runs the resolver outside any guild lock.
func (c *Controller) resolve(ctx context.Context, query string) (track.Track, error) {
	if c.config.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ResolveTimeout)
		defer cancel()
	}
	t, err := c.resolver.Resolve(ctx, query)
	if err != nil {
		return track.Track{}, err
	}
	if !t.IsPlayable() {
		return track.Track{}, errors.Wrapf(resolve.ErrNoStream, "query %q", query)
	}
	return t, nil
}

// start connects the transport for a guild whose start this caller claimed
// and plays the head of the queue.
func (c *Controller) start(ctx context.Context, g *queue.Guild, req PlayRequest) error {
	connectCtx := ctx
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}
	conn, err := c.connector.Connect(connectCtx, req.GuildID, req.VoiceChannelID)

	g.Lock()
	g.SetStartingLocked(false)

	if err != nil {
		dropped := g.ClearLocked()
		g.SetStatusLocked(queue.StateIdle)
		c.registry.EvictLocked(g)
		g.Unlock()

		zlog.Error().Err(err).Msgf("playback: connect failed: guild=%s channel=%s dropped=%d",
			req.GuildID, req.VoiceChannelID, len(dropped))
		c.reply(req.ReplyChannelID, c.config.Messages.ConnectFailed)
		return errors.Mark(errors.Wrapf(err, "connect guild=%s", req.GuildID), ErrConnectFailed)
	}

	if g.ClosedLocked() {
		// Stopped while connecting.
		g.Unlock()
		zlog.Info().Msgf("playback: guild stopped during connect, releasing connection: guild=%s", req.GuildID)
		c.disconnect(req.GuildID, conn)
		return nil
	}

	g.SetConnLocked(conn)
	idle := c.advanceLocked(g)
	g.Unlock()

	if idle != nil {
		c.disconnect(req.GuildID, idle)
	}
	return nil
}

// advanceLocked starts the head of the queue, or terminates the guild when
// nothing is pending. It returns the connection to disconnect once the
// guild is unlocked (nil while playback continues).
func (c *Controller) advanceLocked(g *queue.Guild) transport.Connection {
	conn := g.ConnLocked()
	qt, ok := g.PopLocked()
	if !ok || conn == nil {
		g.ClearLocked()
		g.SetConnLocked(nil)
		g.SetCurrentLocked(nil)
		g.SetStatusLocked(queue.StateIdle)
		epoch := g.NextEpochLocked()
		c.registry.EvictLocked(g)

		zlog.Info().Msgf("playback: queue exhausted, going idle: guild=%s session=%s", g.ID(), g.SessionID())
		c.emit(Event{Type: EventQueueEmpty, GuildID: g.ID(), State: queue.StateIdle, Epoch: epoch})
		return conn
	}

	epoch := g.NextEpochLocked()
	g.SetCurrentLocked(&qt)
	g.SetStatusLocked(queue.StatePlaying)
	conn.Play(qt.Track.StreamRef, c.finishedFunc(g, epoch))

	zlog.Info().Msgf("playback: track started: guild=%s epoch=%d title=%q remaining=%d",
		g.ID(), epoch, qt.Track.Title, g.LenLocked())
	c.reply(qt.ReplyChannelID, withTitle(c.config.Messages.NowPlaying, qt.Track.Title))
	c.emit(Event{Type: EventTrackStarted, GuildID: g.ID(), Track: &qt, State: queue.StatePlaying, Epoch: epoch})
	return nil
}

// finishedFunc returns the transport callback for one stream. The callback
// hands off to a goroutine so it may fire synchronously from Play or Stop
// while the guild is locked.
func (c *Controller) finishedFunc(g *queue.Guild, epoch uint64) transport.FinishedFunc {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			c.mu.Lock()
			if c.closing {
				c.mu.Unlock()
				return
			}
			c.wg.Add(1)
			c.mu.Unlock()

			go func() {
				defer c.wg.Done()
				c.onTrackFinished(g, epoch, err)
			}()
		})
	}
}

// onTrackFinished advances the guild whose stream for epoch ended.
// Callbacks from superseded epochs or evicted guilds are dropped.
func (c *Controller) onTrackFinished(g *queue.Guild, epoch uint64, err error) {
	g.Lock()
	if g.ClosedLocked() || g.EpochLocked() != epoch {
		g.Unlock()
		zlog.Debug().Msgf("playback: stale finish ignored: guild=%s epoch=%d", g.ID(), epoch)
		return
	}

	finished := g.CurrentLocked()
	var playErr error
	if err != nil {
		playErr = errors.Mark(err, ErrTransportPlayback)
		title := ""
		if finished != nil {
			title = finished.Track.Title
			c.reply(finished.ReplyChannelID, withTitle(c.config.Messages.PlaybackError, title))
		}
		zlog.Warn().Err(err).Msgf("playback: stream failed, advancing: guild=%s epoch=%d title=%q", g.ID(), epoch, title)
	} else {
		zlog.Debug().Msgf("playback: track finished: guild=%s epoch=%d", g.ID(), epoch)
	}
	c.emit(Event{Type: EventTrackFinished, GuildID: g.ID(), Track: finished, State: g.StatusLocked(), Epoch: epoch, Err: playErr})

	idle := c.advanceLocked(g)
	g.Unlock()

	if idle != nil {
		c.disconnect(g.ID(), idle)
	}
}

// Skip asks the transport to stop the current stream; the finished
// callback performs the dequeue.
func (c *Controller) Skip(ctx context.Context, guildID, replyChannelID string) error {
	msgs := c.config.Messages
	g, ok := c.registry.Get(guildID)
	if !ok {
		c.reply(replyChannelID, msgs.NothingToSkip)
		return ErrNoActiveConnection
	}

	g.Lock()
	conn := g.ConnLocked()
	if !g.StatusLocked().Active() || conn == nil {
		g.Unlock()
		c.reply(replyChannelID, msgs.NothingToSkip)
		return ErrNoActiveConnection
	}
	cur := g.CurrentLocked()
	epoch := g.EpochLocked()
	// Under the lock so a concurrent natural finish cannot make this
	// skip hit the following track.
	conn.Stop()
	c.emit(Event{Type: EventTrackSkipped, GuildID: guildID, Track: cur, State: g.StatusLocked(), Epoch: epoch})
	g.Unlock()

	zlog.Info().Msgf("playback: skip requested: guild=%s epoch=%d", guildID, epoch)
	c.reply(replyChannelID, msgs.Skipped)
	return nil
}

// Pause pauses the current stream.
func (c *Controller) Pause(ctx context.Context, guildID, replyChannelID string) error {
	msgs := c.config.Messages
	g, ok := c.registry.Get(guildID)
	if !ok {
		c.reply(replyChannelID, msgs.BotNotInVoice)
		return ErrNoActiveConnection
	}

	g.Lock()
	conn := g.ConnLocked()
	switch st := g.StatusLocked(); {
	case st == queue.StateIdle || conn == nil:
		g.Unlock()
		c.reply(replyChannelID, msgs.BotNotInVoice)
		return ErrNoActiveConnection
	case st == queue.StatePaused:
		g.Unlock()
		c.reply(replyChannelID, msgs.NothingPlaying)
		return errors.Wrap(ErrInvalidState, "already paused")
	}

	conn.Pause()
	g.SetStatusLocked(queue.StatePaused)
	c.emit(Event{Type: EventStateChanged, GuildID: guildID, Track: g.CurrentLocked(), State: queue.StatePaused, Epoch: g.EpochLocked()})
	g.Unlock()

	zlog.Info().Msgf("playback: paused: guild=%s", guildID)
	c.reply(replyChannelID, msgs.Paused)
	return nil
}

// Resume resumes a paused stream.
func (c *Controller) Resume(ctx context.Context, guildID, replyChannelID string) error {
	msgs := c.config.Messages
	g, ok := c.registry.Get(guildID)
	if !ok {
		c.reply(replyChannelID, msgs.BotNotInVoice)
		return ErrNoActiveConnection
	}

	g.Lock()
	conn := g.ConnLocked()
	switch st := g.StatusLocked(); {
	case st == queue.StateIdle || conn == nil:
		g.Unlock()
		c.reply(replyChannelID, msgs.BotNotInVoice)
		return ErrNoActiveConnection
	case st == queue.StatePlaying:
		g.Unlock()
		c.reply(replyChannelID, msgs.NotPaused)
		return errors.Wrap(ErrInvalidState, "not paused")
	}

	conn.Resume()
	g.SetStatusLocked(queue.StatePlaying)
	c.emit(Event{Type: EventStateChanged, GuildID: guildID, Track: g.CurrentLocked(), State: queue.StatePlaying, Epoch: g.EpochLocked()})
	g.Unlock()

	zlog.Info().Msgf("playback: resumed: guild=%s", guildID)
	c.reply(replyChannelID, msgs.Resumed)
	return nil
}

// Stop clears the queue, stops the stream and disconnects.
func (c *Controller) Stop(ctx context.Context, guildID, replyChannelID string) error {
	msgs := c.config.Messages
	g, ok := c.registry.Get(guildID)
	if !ok {
		c.reply(replyChannelID, msgs.NotConnected)
		return ErrNoActiveConnection
	}

	g.Lock()
	conn := g.ConnLocked()
	if conn == nil && !g.StartingLocked() {
		g.Unlock()
		c.reply(replyChannelID, msgs.NotConnected)
		return ErrNoActiveConnection
	}

	prior := g.StatusLocked()
	dropped := g.ClearLocked()
	g.SetCurrentLocked(nil)
	g.SetConnLocked(nil)
	g.SetStatusLocked(queue.StateIdle)
	epoch := g.NextEpochLocked()
	c.registry.EvictLocked(g)
	if conn != nil && prior.Active() {
		conn.Stop()
	}
	c.emit(Event{Type: EventStopped, GuildID: guildID, State: queue.StateIdle, Epoch: epoch})
	g.Unlock()

	zlog.Info().Msgf("playback: stopped: guild=%s prior=%s dropped=%d", guildID, prior, len(dropped))
	if conn != nil {
		c.disconnect(guildID, conn)
	}
	c.reply(replyChannelID, msgs.Stopped)
	return nil
}

// Snapshot returns the state of one guild.
func (c *Controller) Snapshot(guildID string) (queue.Snapshot, bool) {
	g, ok := c.registry.Get(guildID)
	if !ok {
		return queue.Snapshot{}, false
	}
	return g.Snapshot(), true
}

// Snapshots returns the state of every active guild ordered by guild ID.
func (c *Controller) Snapshots() []queue.Snapshot {
	guilds := c.registry.All()
	result := make([]queue.Snapshot, 0, len(guilds))
	for _, g := range guilds {
		result = append(result, g.Snapshot())
	}
	return result
}

// Close stops every guild, waits for in-flight callbacks and closes the
// event channel.
func (c *Controller) Close(ctx context.Context) {
	for _, g := range c.registry.All() {
		_ = c.Stop(ctx, g.ID(), "")
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	close(c.eventCh)
	c.mu.Unlock()

	c.wg.Wait()
	zlog.Info().Msg("playback: controller closed")
}

func (c *Controller) disconnect(guildID string, conn transport.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.DisconnectTimeout)
	defer cancel()
	if err := conn.Disconnect(ctx); err != nil {
		zlog.Warn().Err(err).Msgf("playback: disconnect failed: guild=%s", guildID)
	}
}

func (c *Controller) reply(channelID, text string) {
	if channelID == "" || text == "" {
		return
	}
	c.notifier.Notify(channelID, text)
}

// emit sends an event without blocking; events are dropped when the
// consumer lags. Safe to call with a guild locked.
func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	select {
	case c.eventCh <- ev:
	default:
		zlog.Warn().Msgf("playback: event dropped: type=%s guild=%s", ev.Type, ev.GuildID)
	}
}

// withTitle fills the title into a message template that expects one.
func withTitle(tmpl, title string) string {
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return fmt.Sprintf(tmpl, title)
}
