// Package queue provides per-guild pending-track queues and the registry owning them.
package queue

// State represents the playback state of a guild.
type State int

const (
	StateIdle    State = iota // Nothing streaming; no voice connection held
	StatePlaying              // A track is streaming
	StatePaused               // A track is loaded but paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a track is loaded (playing or paused).
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
