package playback

import "github.com/cockroachdb/errors"

// Errors returned by controller operations. Callers classify with errors.Is;
// the user has already been notified when one of these is returned.
var (
	ErrNotInVoiceChannel  = errors.New("requester is not in a voice channel")
	ErrResolutionFailed   = errors.New("resolution failed")
	ErrTransportPlayback  = errors.New("transport playback error")
	ErrNoActiveConnection = errors.New("no active voice connection")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrRejected           = errors.New("request rejected")
	ErrConnectFailed      = errors.New("voice connect failed")
)
