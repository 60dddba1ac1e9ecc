package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// AdminClient calls the admin API.
type AdminClient struct {
	status *connect.Client[structpb.Struct, structpb.Struct]
	skip   *connect.Client[structpb.Struct, structpb.Struct]
	stop   *connect.Client[structpb.Struct, structpb.Struct]
}

// NewAdminClient creates a client for the server at baseURL.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string) *AdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := connect.WithInterceptors(NewTokenInterceptor(token))
	return &AdminClient{
		status: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+StatusProcedure, opt),
		skip:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SkipProcedure, opt),
		stop:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+StopProcedure, opt),
	}
}

// NewDefaultAdminClient uses http.DefaultClient.
func NewDefaultAdminClient(baseURL, token string) *AdminClient {
	return NewAdminClient(http.DefaultClient, baseURL, token)
}

// Status lists active guilds.
func (c *AdminClient) Status(ctx context.Context) ([]GuildStatus, error) {
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return nil, err
	}
	values := resp.Msg.GetFields()["guilds"].GetListValue().GetValues()
	guilds := make([]GuildStatus, 0, len(values))
	for _, v := range values {
		guilds = append(guilds, decodeStatus(v))
	}
	return guilds, nil
}

// Skip skips the current track of a guild and returns the server message.
func (c *AdminClient) Skip(ctx context.Context, guildID string) (string, error) {
	return c.call(ctx, c.skip, guildID)
}

// Stop stops playback in a guild and returns the server message.
func (c *AdminClient) Stop(ctx context.Context, guildID string) (string, error) {
	return c.call(ctx, c.stop, guildID)
}

func (c *AdminClient) call(ctx context.Context, client *connect.Client[structpb.Struct, structpb.Struct], guildID string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"guild_id": guildID})
	if err != nil {
		return "", err
	}
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetFields()["message"].GetStringValue(), nil
}
