package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

// Presence shows the most recently started track as the bot's
// "Listening to" status.
type Presence struct {
	update func(title string) error

	mu     sync.Mutex
	guild  string // Guild whose track is shown
	status string
}

// NewPresence creates a presence updater for the session.
func NewPresence(session *discordgo.Session) *Presence {
	return &Presence{
		update: func(title string) error {
			return session.UpdateListeningStatus(title)
		},
	}
}

// HandleEvent updates the status for playback events.
func (p *Presence) HandleEvent(ev playback.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.status
	switch ev.Type {
	case playback.EventTrackStarted:
		if ev.Track != nil {
			p.guild = ev.GuildID
			next = ev.Track.Track.Title
		}
	case playback.EventQueueEmpty, playback.EventStopped:
		if ev.GuildID == p.guild {
			p.guild = ""
			next = ""
		}
	}

	if next == p.status {
		return
	}
	if err := p.update(next); err != nil {
		zlog.Debug().Msgf("discord: presence update failed: %v", err)
		return
	}
	p.status = next
}
