// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track is a playable item resolved from a user query.
// Values are compared by value; the same track may be queued many times.
type Track struct {
	StreamRef  string        // Opaque reference handed to the voice transport
	Title      string        // Display title
	WebpageURL string        // Page the stream was resolved from (optional)
	Duration   time.Duration // Zero when unknown (live streams, some extractors)
}

// New creates a track. An empty title is replaced by "Untitled".
func New(streamRef, title string) Track {
	if title == "" {
		title = "Untitled"
	}
	return Track{StreamRef: streamRef, Title: title}
}

// IsPlayable reports whether the track carries a stream reference.
func (t Track) IsPlayable() bool {
	return t.StreamRef != ""
}

// DisplayDuration formats the duration as mm:ss, or "live" when unknown.
func (t Track) DisplayDuration() string {
	if t.Duration <= 0 {
		return "live"
	}
	d := t.Duration.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}

// Requester represents the user who asked for the track.
type Requester struct {
	UserID string // Discord user ID
	Name   string // Display name at request time
}

// QueuedTrack represents a track waiting in a guild queue.
type QueuedTrack struct {
	Track          Track     // Resolved track
	Requester      Requester // Who asked for it
	ReplyChannelID string    // Text channel notified when the track starts
	AddedAt        time.Time // Time when added to queue
}
