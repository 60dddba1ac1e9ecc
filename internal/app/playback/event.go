package playback

import (
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Track started playing
	EventTrackFinished                  // Track finished playing (cleanly or with an error)
	EventTrackSkipped                   // Skip was requested for the current track
	EventStateChanged                   // Playback state changed (pause/resume)
	EventQueueEmpty                     // Queue ran out and the guild went idle
	EventStopped                        // Playback was stopped explicitly
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackFinished:
		return "track_finished"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	GuildID string
	Track   *track.QueuedTrack // Track concerned (nil for some events)
	State   queue.State        // Playback state after the event
	Epoch   uint64
	Err     error // Set on EventTrackFinished when the stream failed
}
