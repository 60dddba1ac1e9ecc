package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
)

// ChannelSender posts plain text messages to Discord channels.
type ChannelSender struct {
	session *discordgo.Session
}

// NewChannelSender creates a new channel sender.
func NewChannelSender(session *discordgo.Session) *ChannelSender {
	return &ChannelSender{session: session}
}

// Send implements notification.Sender.
func (s *ChannelSender) Send(ctx context.Context, channelID, text string) error {
	if _, err := s.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrapf(err, "failed to send message: channel=%s", channelID)
	}
	return nil
}
