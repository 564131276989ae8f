package recorder

import (
	"context"

	"reactioncut/internal/chatsocket"
)

// ChatSession is the running chat-socket connection for one segment's
// sidecar.
type ChatSession interface {
	Run(ctx context.Context) error
	Close() error
}

// ChatConnector opens a chat sidecar session for a room, writing filtered
// events to the sidecar file at sidecarPath (spec §4.4 chat sidecar). The
// Recorder Loop depends on this narrow interface rather than
// internal/chatsocket directly so the auth/endpoint details (token, uid,
// buvid, websocket URL) stay the caller's concern.
type ChatConnector interface {
	Connect(ctx context.Context, roomID, sidecarPath string, filters chatsocket.Filters) (ChatSession, error)
}

// ChatsocketConnector adapts internal/chatsocket to ChatConnector, filling
// in a room ID and sidecar path per call against a fixed auth/endpoint
// template.
type ChatsocketConnector struct {
	Template chatsocket.Config
}

// Connect implements ChatConnector.
func (c ChatsocketConnector) Connect(ctx context.Context, roomID, sidecarPath string, filters chatsocket.Filters) (ChatSession, error) {
	sidecar, err := chatsocket.OpenSidecar(sidecarPath)
	if err != nil {
		return nil, err
	}
	cfg := c.Template
	cfg.RoomID = roomID
	cfg.Filters = filters
	client, err := chatsocket.Connect(ctx, cfg, sidecar)
	if err != nil {
		sidecar.Close()
		return nil, err
	}
	return chatSessionAdapter{client: client, sidecar: sidecar}, nil
}

type chatSessionAdapter struct {
	client  *chatsocket.Client
	sidecar *chatsocket.SidecarWriter
}

func (a chatSessionAdapter) Run(ctx context.Context) error {
	return a.client.Run(ctx)
}

func (a chatSessionAdapter) Close() error {
	_ = a.client.Close()
	return a.sidecar.Close()
}
