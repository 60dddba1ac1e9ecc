package discord

import (
	"fmt"
	"strings"

	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

// maxListed bounds the queue listing to stay under Discord's message limit.
const maxListed = 10

func requester(cmd command) track.Requester {
	return track.Requester{UserID: cmd.UserID, Name: cmd.UserName}
}

func formatQueue(s queue.Snapshot, msgs config.MessagesConfig) string {
	if s.Current == nil && len(s.Pending) == 0 {
		return msgs.QueueEmpty
	}

	var sb strings.Builder
	if s.Current != nil {
		state := "Now playing"
		if s.Status == queue.StatePaused {
			state = "Paused"
		}
		fmt.Fprintf(&sb, "**%s:** %s\n", state, formatEntry(*s.Current))
	}
	for i, qt := range s.Pending {
		if i == maxListed {
			fmt.Fprintf(&sb, "... and %d more\n", len(s.Pending)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, formatEntry(qt))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatEntry(qt track.QueuedTrack) string {
	entry := fmt.Sprintf("%s (%s)", qt.Track.Title, qt.Track.DisplayDuration())
	if qt.Requester.Name != "" {
		entry += " - " + qt.Requester.Name
	}
	return entry
}
