package queue

import (
	"sort"
	"sync"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Ticket describes the outcome of an enqueue.
type Ticket struct {
	Guild    *Guild
	Prior    State // Status before the append
	Position int   // 1-based position in pending after the append
	Start    bool  // The caller must start playback for this guild
}

// Registry maps guild IDs to their queues with thread-safe access.
type Registry struct {
	mu     sync.RWMutex
	guilds map[string]*Guild
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guilds: make(map[string]*Guild),
	}
}

// GetOrCreate returns the queue of a guild, creating an empty one if absent.
func (r *Registry) GetOrCreate(guildID string) *Guild {
	r.mu.RLock()
	g, ok := r.guilds[guildID]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guilds[guildID]; ok {
		return g
	}
	g = newGuild(guildID)
	r.guilds[guildID] = g
	return g
}

// Get returns the queue of a guild if present.
func (r *Registry) Get(guildID string) (*Guild, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guilds[guildID]
	return g, ok
}

// Remove drops the guild entry. Removing an absent guild is a no-op.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	g, ok := r.guilds[guildID]
	delete(r.guilds, guildID)
	r.mu.Unlock()

	if !ok {
		return
	}
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// EvictLocked closes g and removes it from the registry if it is still the
// registered queue for its guild. Must be called with g locked.
func (r *Registry) EvictLocked(g *Guild) {
	g.closed = true
	r.mu.Lock()
	if cur, ok := r.guilds[g.id]; ok && cur == g {
		delete(r.guilds, g.id)
	}
	r.mu.Unlock()
}

// Enqueue appends qt to the tail of the guild queue, creating the queue if
// absent. Exactly one concurrent caller observing an idle guild gets
// Ticket.Start set.
func (r *Registry) Enqueue(guildID string, qt track.QueuedTrack) Ticket {
	for {
		g := r.GetOrCreate(guildID)
		g.mu.Lock()
		if g.closed {
			// Evicted between lookup and lock; the next lookup sees a fresh queue.
			g.mu.Unlock()
			continue
		}
		t := Ticket{Guild: g, Prior: g.status}
		t.Position = g.PushLocked(qt)
		if g.status == StateIdle && !g.starting {
			g.starting = true
			t.Start = true
		}
		g.mu.Unlock()
		return t
	}
}

// PendingCount returns the number of pending tracks of a guild.
func (r *Registry) PendingCount(guildID string) int {
	g, ok := r.Get(guildID)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// PendingByUser returns how many pending (not yet started) tracks of a
// guild were requested by userID.
func (r *Registry) PendingByUser(guildID, userID string) int {
	g, ok := r.Get(guildID)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, qt := range g.pending {
		if qt.Requester.UserID == userID {
			count++
		}
	}
	return count
}

// All returns every registered guild ordered by guild ID.
func (r *Registry) All() []*Guild {
	r.mu.RLock()
	result := make([]*Guild, 0, len(r.guilds))
	for _, g := range r.guilds {
		result = append(result, g)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].id < result[j].id })
	return result
}

// Count returns the number of registered guilds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guilds)
}
