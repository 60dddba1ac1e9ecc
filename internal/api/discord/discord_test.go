package discord

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

type fakePlayer struct {
	calls    []string
	plays    []playback.PlayRequest
	snapshot *queue.Snapshot
	err      error
}

func (p *fakePlayer) Play(_ context.Context, req playback.PlayRequest) error {
	p.calls = append(p.calls, "play")
	p.plays = append(p.plays, req)
	return p.err
}

func (p *fakePlayer) record(name, guildID, channelID string) error {
	p.calls = append(p.calls, fmt.Sprintf("%s:%s:%s", name, guildID, channelID))
	return p.err
}

func (p *fakePlayer) Skip(_ context.Context, g, c string) error { return p.record("skip", g, c) }
func (p *fakePlayer) Pause(_ context.Context, g, c string) error { return p.record("pause", g, c) }
func (p *fakePlayer) Resume(_ context.Context, g, c string) error { return p.record("resume", g, c) }
func (p *fakePlayer) Stop(_ context.Context, g, c string) error { return p.record("stop", g, c) }

func (p *fakePlayer) Snapshot(string) (queue.Snapshot, bool) {
	if p.snapshot == nil {
		return queue.Snapshot{}, false
	}
	return *p.snapshot, true
}

func queued(title string, minutes int, by string) track.QueuedTrack {
	trk := track.New("ref-"+title, title)
	trk.Duration = time.Duration(minutes) * time.Minute
	return track.QueuedTrack{Track: trk, Requester: track.Requester{UserID: by, Name: by}}
}

func TestBot_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		cmd      command
		expected string
	}{
		{name: "skip", cmd: command{Name: "skip", GuildID: "g1", ChannelID: "c1"}, expected: "skip:g1:c1"},
		{name: "pause", cmd: command{Name: "pause", GuildID: "g1", ChannelID: "c1"}, expected: "pause:g1:c1"},
		{name: "resume", cmd: command{Name: "resume", GuildID: "g1", ChannelID: "c1"}, expected: "resume:g1:c1"},
		{name: "stop", cmd: command{Name: "stop", GuildID: "g2", ChannelID: "c9"}, expected: "stop:g2:c9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{}
			b := &Bot{player: p}

			b.dispatch(context.Background(), tt.cmd)

			assert.Equal(t, []string{tt.expected}, p.calls)
		})
	}
}

func TestBot_DispatchPlay(t *testing.T) {
	p := &fakePlayer{err: playback.ErrNotInVoiceChannel}
	b := &Bot{player: p}

	b.dispatch(context.Background(), command{
		Name:           "play",
		GuildID:        "g1",
		ChannelID:      "text",
		UserID:         "u1",
		UserName:       "alice",
		VoiceChannelID: "voice",
		Query:          "never gonna give you up",
	})

	require.Len(t, p.plays, 1)
	assert.Equal(t, playback.PlayRequest{
		GuildID:        "g1",
		VoiceChannelID: "voice",
		ReplyChannelID: "text",
		Query:          "never gonna give you up",
		Requester:      track.Requester{UserID: "u1", Name: "alice"},
	}, p.plays[0])
}

func TestBot_DispatchUnknown(t *testing.T) {
	p := &fakePlayer{}
	b := &Bot{player: p}

	b.dispatch(context.Background(), command{Name: "shuffle"})

	assert.Empty(t, p.calls)
}

func TestBot_QueueText(t *testing.T) {
	msgs := config.DefaultMessages()

	p := &fakePlayer{}
	b := &Bot{player: p, config: Config{Messages: msgs}}
	assert.Equal(t, msgs.QueueEmpty, b.queueText("g1"))

	current := queued("Song A", 3, "alice")
	p.snapshot = &queue.Snapshot{GuildID: "g1", Status: queue.StatePlaying, Current: &current}
	assert.Equal(t, "**Now playing:** Song A (03:00) - alice", b.queueText("g1"))
}

func TestFormatQueue(t *testing.T) {
	msgs := config.DefaultMessages()
	current := queued("Song A", 3, "alice")

	tests := []struct {
		name     string
		snapshot queue.Snapshot
		expected string
	}{
		{
			name:     "empty",
			snapshot: queue.Snapshot{Status: queue.StateIdle},
			expected: msgs.QueueEmpty,
		},
		{
			name: "playing with pending",
			snapshot: queue.Snapshot{
				Status:  queue.StatePlaying,
				Current: &current,
				Pending: []track.QueuedTrack{queued("Song B", 4, "bob"), queued("Song C", 0, "")},
			},
			expected: "**Now playing:** Song A (03:00) - alice\n1. Song B (04:00) - bob\n2. Song C (live)",
		},
		{
			name:     "paused",
			snapshot: queue.Snapshot{Status: queue.StatePaused, Current: &current},
			expected: "**Paused:** Song A (03:00) - alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatQueue(tt.snapshot, msgs))
		})
	}
}

func TestFormatQueue_Truncates(t *testing.T) {
	current := queued("Now", 1, "")
	s := queue.Snapshot{Status: queue.StatePlaying, Current: &current}
	for i := 0; i < maxListed+5; i++ {
		s.Pending = append(s.Pending, queued(fmt.Sprintf("Song %d", i+1), 1, ""))
	}

	out := formatQueue(s, config.DefaultMessages())

	assert.Contains(t, out, "10. Song 10 (01:00)")
	assert.NotContains(t, out, "11. Song 11")
	assert.Contains(t, out, "... and 5 more")
}

func TestVoiceChannelIn(t *testing.T) {
	guild := &discordgo.Guild{
		ID: "g1",
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "u1", ChannelID: "v1"},
			{UserID: "u2", ChannelID: "v2"},
		},
	}

	assert.Equal(t, "v2", voiceChannelIn(guild, "u2"))
	assert.Equal(t, "", voiceChannelIn(guild, "u3"))
}

func TestPresence_HandleEvent(t *testing.T) {
	var updates []string
	p := &Presence{update: func(title string) error {
		updates = append(updates, title)
		return nil
	}}
	a := queued("Song A", 3, "")
	b := queued("Song B", 3, "")

	p.HandleEvent(playback.Event{Type: playback.EventTrackStarted, GuildID: "g1", Track: &a})
	p.HandleEvent(playback.Event{Type: playback.EventTrackStarted, GuildID: "g1", Track: &a})
	p.HandleEvent(playback.Event{Type: playback.EventTrackStarted, GuildID: "g2", Track: &b})
	p.HandleEvent(playback.Event{Type: playback.EventQueueEmpty, GuildID: "g1"})
	p.HandleEvent(playback.Event{Type: playback.EventStateChanged, GuildID: "g2"})
	p.HandleEvent(playback.Event{Type: playback.EventStopped, GuildID: "g2"})

	assert.Equal(t, []string{"Song A", "Song B", ""}, updates)
}

func TestPresence_UpdateFailureRetriesNextEvent(t *testing.T) {
	fail := true
	var updates []string
	p := &Presence{update: func(title string) error {
		if fail {
			return assert.AnError
		}
		updates = append(updates, title)
		return nil
	}}
	a := queued("Song A", 3, "")

	p.HandleEvent(playback.Event{Type: playback.EventTrackStarted, GuildID: "g1", Track: &a})
	fail = false
	p.HandleEvent(playback.Event{Type: playback.EventTrackStarted, GuildID: "g1", Track: &a})

	assert.Equal(t, []string{"Song A"}, updates)
}
