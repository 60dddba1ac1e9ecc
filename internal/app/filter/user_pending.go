package filter

import (
	"context"
)

// UserPendingConfig represents the configuration for UserPendingFilter.
type UserPendingConfig struct {
	MaxPerUser int `yaml:"max_per_user" mapstructure:"max_per_user" default:"3" validate:"gte=1"`
}

// UserPendingFilter checks how many tracks the requester already has waiting.
type UserPendingFilter struct {
	maxPerUser int
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Checks if the requester has too many tracks waiting to be played"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.maxPerUser = config.MaxPerUser
	return nil
}

func (f *UserPendingFilter) Check(ctx context.Context, req Request, q QueueView) Result {
	if f.maxPerUser <= 0 || req.UserID == "" {
		return Accept()
	}
	if q.PendingByUser(req.GuildID, req.UserID) >= f.maxPerUser {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func() Filter {
		return &UserPendingFilter{}
	})
}
