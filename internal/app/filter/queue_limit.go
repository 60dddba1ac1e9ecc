package filter

import (
	"context"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"50" validate:"gte=1"`
}

// QueueLimitFilter caps the number of tracks waiting in a guild queue.
type QueueLimitFilter struct {
	maxPending int
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Rejects requests when the guild queue is full"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_limit_exceeded"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.maxPending = config.MaxPending
	return nil
}

// Check is advisory: concurrent requests may overshoot the limit slightly.
func (f *QueueLimitFilter) Check(ctx context.Context, req Request, q QueueView) Result {
	if f.maxPending <= 0 {
		return Accept()
	}
	if q.PendingCount(req.GuildID) >= f.maxPending {
		return Reject("queue_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}
