package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/track"
)

type fakeQueue struct {
	pending int
	byUser  map[string]int
}

func (q fakeQueue) PendingCount(guildID string) int { return q.pending }

func (q fakeQueue) PendingByUser(guildID, userID string) int { return q.byUser[userID] }

func TestQueueLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		maxPending   int
		pending      int
		wantAccepted bool
	}{
		{name: "below limit", maxPending: 3, pending: 2, wantAccepted: true},
		{name: "at limit", maxPending: 3, pending: 3, wantAccepted: false},
		{name: "empty queue", maxPending: 1, pending: 0, wantAccepted: true},
		{name: "not configured", maxPending: 0, pending: 100, wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &QueueLimitFilter{maxPending: tt.maxPending}
			result := f.Check(context.Background(), Request{GuildID: "g1"}, fakeQueue{pending: tt.pending})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "queue_limit_exceeded", result.Code)
			}
		})
	}
}

func TestUserPendingFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		maxPerUser   int
		userID       string
		byUser       map[string]int
		wantAccepted bool
	}{
		{name: "no pending tracks", maxPerUser: 1, userID: "u1", byUser: map[string]int{}, wantAccepted: true},
		{name: "at limit", maxPerUser: 2, userID: "u1", byUser: map[string]int{"u1": 2}, wantAccepted: false},
		{name: "other user at limit", maxPerUser: 2, userID: "u1", byUser: map[string]int{"u2": 5}, wantAccepted: true},
		{name: "anonymous requester", maxPerUser: 1, userID: "", byUser: map[string]int{"": 9}, wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &UserPendingFilter{maxPerUser: tt.maxPerUser}
			req := Request{GuildID: "g1", UserID: tt.userID}
			result := f.Check(context.Background(), req, fakeQueue{byUser: tt.byUser})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "user_pending", result.Code)
			}
		})
	}
}

func TestDurationLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		config       DurationLimitConfig
		duration     time.Duration
		wantAccepted bool
	}{
		{name: "within range", config: DurationLimitConfig{MinSeconds: 30, MaxMinutes: 10}, duration: 4 * time.Minute, wantAccepted: true},
		{name: "too short", config: DurationLimitConfig{MinSeconds: 30, MaxMinutes: 10}, duration: 10 * time.Second, wantAccepted: false},
		{name: "too long", config: DurationLimitConfig{MaxMinutes: 10}, duration: 11 * time.Minute, wantAccepted: false},
		{name: "no maximum", config: DurationLimitConfig{MaxMinutes: 0}, duration: 3 * time.Hour, wantAccepted: true},
		{name: "live rejected", config: DurationLimitConfig{MaxMinutes: 10}, duration: 0, wantAccepted: false},
		{name: "live allowed", config: DurationLimitConfig{MaxMinutes: 10, AllowLive: true}, duration: 0, wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			f := &DurationLimitFilter{config: &cfg}
			req := Request{Track: track.Track{StreamRef: "ref", Title: "t", Duration: tt.duration}}
			result := f.Check(context.Background(), req, fakeQueue{})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "duration_limit_exceeded", result.Code)
			}
		})
	}
}

func TestDurationLimitFilter_Unconfigured(t *testing.T) {
	f := NewDurationLimitFilter()
	result := f.Check(context.Background(), Request{}, fakeQueue{})
	assert.True(t, result.Accepted)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		settings map[string]any
		wantErr  bool
	}{
		{name: "queue limit defaults", filter: &QueueLimitFilter{}, settings: nil},
		{name: "queue limit negative", filter: &QueueLimitFilter{}, settings: map[string]any{"max_pending": -1}, wantErr: true},
		{name: "user pending string value", filter: &UserPendingFilter{}, settings: map[string]any{"max_per_user": "2"}},
		{name: "duration min above max", filter: NewDurationLimitFilter(), settings: map[string]any{"min_seconds": 600, "max_minutes": 5}, wantErr: true},
		{name: "duration valid", filter: NewDurationLimitFilter(), settings: map[string]any{"min_seconds": 10, "max_minutes": 5, "allow_live": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig_AppliesSettings(t *testing.T) {
	f := &UserPendingFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_per_user": 2}))
	assert.Equal(t, 2, f.maxPerUser)

	q := &QueueLimitFilter{}
	require.NoError(t, q.ValidateConfig(nil))
	assert.Equal(t, 50, q.maxPending)
}

func TestChain_Execute(t *testing.T) {
	chain := NewChain()
	chain.Add(&QueueLimitFilter{maxPending: 5})
	chain.Add(&UserPendingFilter{maxPerUser: 1})

	req := Request{GuildID: "g1", UserID: "u1"}

	result := chain.Execute(context.Background(), req, fakeQueue{pending: 1})
	assert.True(t, result.Accepted)

	result = chain.Execute(context.Background(), req, fakeQueue{pending: 1, byUser: map[string]int{"u1": 1}})
	assert.False(t, result.Accepted)
	assert.Equal(t, "user_pending", result.Code)
	assert.Equal(t, "user_pending_filter", result.Filter)

	// the first rejecting filter wins
	result = chain.Execute(context.Background(), req, fakeQueue{pending: 5, byUser: map[string]int{"u1": 1}})
	assert.Equal(t, "queue_limit_exceeded", result.Code)
}

func TestChain_NilAcceptsAll(t *testing.T) {
	var chain *Chain
	assert.True(t, chain.Execute(context.Background(), Request{}, fakeQueue{}).Accepted)
}

func TestBuildChain(t *testing.T) {
	chain, err := BuildChain([]Spec{
		{Name: "queue_limit_filter", Settings: map[string]any{"max_pending": 2}},
		{Name: "user_pending_filter"},
	})
	require.NoError(t, err)
	require.Len(t, chain.Filters(), 2)
	assert.Equal(t, "queue_limit_filter", chain.Filters()[0].Name())
	assert.Equal(t, "user_pending_filter", chain.Filters()[1].Name())

	_, err = BuildChain([]Spec{{Name: "nope"}})
	assert.Error(t, err)

	_, err = BuildChain([]Spec{{Name: "queue_limit_filter", Settings: map[string]any{"max_pending": -3}}})
	assert.Error(t, err)
}

func TestRegisteredFilters(t *testing.T) {
	assert.Equal(t, []string{"duration_limit_filter", "queue_limit_filter", "user_pending_filter"}, Names())
	for name, factory := range GetRegistered() {
		f := factory()
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.ReturnCodes())
		assert.NotEmpty(t, f.Description())
	}
}
