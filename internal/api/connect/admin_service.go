// Package connect serves the operator admin API over connect-rpc.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code; field names are documented on GuildStatus.
package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/queue"
)

const (
	// AdminServiceName is the fully-qualified name of the admin service.
	AdminServiceName = "guildbox.v1.AdminService"

	StatusProcedure = "/" + AdminServiceName + "/Status"
	SkipProcedure   = "/" + AdminServiceName + "/Skip"
	StopProcedure   = "/" + AdminServiceName + "/Stop"
)

// Controller is the playback surface exposed to operators.
type Controller interface {
	Snapshots() []queue.Snapshot
	Skip(ctx context.Context, guildID, replyChannelID string) error
	Stop(ctx context.Context, guildID, replyChannelID string) error
}

// GuildStatus is one entry of the Status response "guilds" list.
type GuildStatus struct {
	GuildID   string // guild_id
	SessionID string // session_id
	State     string // state
	Current   string // current: title of the streaming track, empty if none
	Pending   int    // pending: tracks waiting after the current one
	Connected bool   // connected
	ChannelID string // channel_id: voice channel held
}

// AdminService implements the admin API.
type AdminService struct {
	controller Controller
}

// NewAdminService creates a new admin service.
func NewAdminService(controller Controller) *AdminService {
	return &AdminService{controller: controller}
}

// NewAdminServiceHandler returns the mount path and handler for the service.
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, svc.Status, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, svc.Skip, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	return "/" + AdminServiceName + "/", mux
}

// Status returns the state of every active guild.
func (s *AdminService) Status(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	snapshots := s.controller.Snapshots()
	guilds := make([]any, 0, len(snapshots))
	for _, snap := range snapshots {
		guilds = append(guilds, encodeStatus(toGuildStatus(snap)))
	}

	msg, err := structpb.NewStruct(map[string]any{"guilds": guilds})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Skip skips the current track of a guild.
func (s *AdminService) Skip(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	guildID, err := guildIDOf(req.Msg)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("admin: skip requested: guild=%s", guildID)

	if err := s.controller.Skip(ctx, guildID, ""); err != nil {
		return nil, toConnectError(err)
	}
	return successResponse("Track skipped")
}

// Stop stops playback in a guild, clearing its queue.
func (s *AdminService) Stop(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	guildID, err := guildIDOf(req.Msg)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("admin: stop requested: guild=%s", guildID)

	if err := s.controller.Stop(ctx, guildID, ""); err != nil {
		return nil, toConnectError(err)
	}
	return successResponse("Playback stopped")
}

func toGuildStatus(snap queue.Snapshot) GuildStatus {
	gs := GuildStatus{
		GuildID:   snap.GuildID,
		SessionID: snap.SessionID,
		State:     snap.Status.String(),
		Pending:   len(snap.Pending),
		Connected: snap.Connected,
		ChannelID: snap.ChannelID,
	}
	if snap.Current != nil {
		gs.Current = snap.Current.Track.Title
	}
	return gs
}

func encodeStatus(gs GuildStatus) map[string]any {
	return map[string]any{
		"guild_id":   gs.GuildID,
		"session_id": gs.SessionID,
		"state":      gs.State,
		"current":    gs.Current,
		"pending":    gs.Pending,
		"connected":  gs.Connected,
		"channel_id": gs.ChannelID,
	}
}

func decodeStatus(v *structpb.Value) GuildStatus {
	f := v.GetStructValue().GetFields()
	return GuildStatus{
		GuildID:   f["guild_id"].GetStringValue(),
		SessionID: f["session_id"].GetStringValue(),
		State:     f["state"].GetStringValue(),
		Current:   f["current"].GetStringValue(),
		Pending:   int(f["pending"].GetNumberValue()),
		Connected: f["connected"].GetBoolValue(),
		ChannelID: f["channel_id"].GetStringValue(),
	}
}

func guildIDOf(msg *structpb.Struct) (string, error) {
	guildID := msg.GetFields()["guild_id"].GetStringValue()
	if guildID == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, errors.New("guild_id is required"))
	}
	return guildID, nil
}

func successResponse(message string) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(map[string]any{
		"success": true,
		"message": message,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, playback.ErrNoActiveConnection):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, playback.ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
