package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/osa030/guildbox/internal/app/transport"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Guild holds the pending tracks and playback status of one guild.
//
// Methods with the Locked suffix must be called between Lock and Unlock.
// All transitions of a guild happen inside that exclusive section; guilds
// never share a lock.
type Guild struct {
	mu sync.Mutex

	id        string
	sessionID string // Correlates log lines of one queue lifetime
	createdAt time.Time

	pending  []track.QueuedTrack // FIFO, head plays next
	current  *track.QueuedTrack  // Track being streamed, never in pending
	status   State
	epoch    uint64 // Bumped on every stream start and on termination
	conn     transport.Connection
	starting bool // A caller is connecting the transport for the first track
	closed   bool // Evicted from the registry; no further transitions
}

func newGuild(id string) *Guild {
	return &Guild{
		id:        id,
		sessionID: uuid.New().String(),
		createdAt: time.Now(),
		pending:   make([]track.QueuedTrack, 0),
		status:    StateIdle,
	}
}

// ID returns the guild ID.
func (g *Guild) ID() string { return g.id }

// SessionID returns the identifier of this queue lifetime.
func (g *Guild) SessionID() string { return g.sessionID }

// Lock enters the guild's exclusive section.
func (g *Guild) Lock() { g.mu.Lock() }

// Unlock leaves the guild's exclusive section.
func (g *Guild) Unlock() { g.mu.Unlock() }

func (g *Guild) StatusLocked() State { return g.status }

func (g *Guild) SetStatusLocked(s State) { g.status = s }

func (g *Guild) EpochLocked() uint64 { return g.epoch }

// NextEpochLocked starts a new playback epoch and returns it.
func (g *Guild) NextEpochLocked() uint64 {
	g.epoch++
	return g.epoch
}

func (g *Guild) ConnLocked() transport.Connection { return g.conn }

func (g *Guild) SetConnLocked(c transport.Connection) { g.conn = c }

func (g *Guild) CurrentLocked() *track.QueuedTrack { return g.current }

func (g *Guild) SetCurrentLocked(qt *track.QueuedTrack) { g.current = qt }

func (g *Guild) StartingLocked() bool { return g.starting }

func (g *Guild) SetStartingLocked(v bool) { g.starting = v }

func (g *Guild) ClosedLocked() bool { return g.closed }

func (g *Guild) LenLocked() int { return len(g.pending) }

// PushLocked appends a track to the tail and returns its 1-based position.
func (g *Guild) PushLocked(qt track.QueuedTrack) int {
	g.pending = append(g.pending, qt)
	return len(g.pending)
}

// PopLocked removes and returns the head of the queue.
func (g *Guild) PopLocked() (track.QueuedTrack, bool) {
	if len(g.pending) == 0 {
		return track.QueuedTrack{}, false
	}
	qt := g.pending[0]
	g.pending[0] = track.QueuedTrack{}
	g.pending = g.pending[1:]
	return qt, true
}

// ClearLocked drops every pending track and returns them.
func (g *Guild) ClearLocked() []track.QueuedTrack {
	removed := g.pending
	g.pending = make([]track.QueuedTrack, 0)
	return removed
}

// Snapshot is a point-in-time copy of a guild queue.
type Snapshot struct {
	GuildID   string
	SessionID string
	Status    State
	Epoch     uint64
	Current   *track.QueuedTrack
	Pending   []track.QueuedTrack
	Connected bool
	ChannelID string
	CreatedAt time.Time
}

// Snapshot returns a copy of the guild state.
func (g *Guild) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Guild) snapshotLocked() Snapshot {
	s := Snapshot{
		GuildID:   g.id,
		SessionID: g.sessionID,
		Status:    g.status,
		Epoch:     g.epoch,
		Pending:   make([]track.QueuedTrack, len(g.pending)),
		Connected: g.conn != nil,
		CreatedAt: g.createdAt,
	}
	copy(s.Pending, g.pending)
	if g.current != nil {
		cur := *g.current
		s.Current = &cur
	}
	if g.conn != nil {
		s.ChannelID = g.conn.ChannelID()
	}
	return s
}
