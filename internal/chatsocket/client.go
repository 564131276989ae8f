package chatsocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"
)

const heartbeatInterval = 30 * time.Second

// messageEnvelope is the JSON shape of an op=5 notification body; only cmd
// needs to be pulled out up front, the rest is forwarded to the sidecar
// untouched.
type messageEnvelope struct {
	Cmd string `json:"cmd"`
}

// Config wires a Client to a single room's chat socket.
type Config struct {
	URL       string
	RoomID    string
	Token     string
	UID       int64
	Buvid     string
	TLSConfig *tls.Config
	Filters   Filters
}

// Client drains a room's chat/event firehose and writes retained events to
// a sidecar, sending the auth handshake up front and a heartbeat every 30
// seconds for as long as the connection is open.
type Client struct {
	cfg     Config
	conn    Conn
	sidecar *SidecarWriter

	now func() time.Time
}

// Connect opens the transport and performs the auth handshake, without yet
// starting the read/heartbeat loop.
func Connect(ctx context.Context, cfg Config, sidecar *SidecarWriter) (*Client, error) {
	conn, err := Dial(ctx, cfg.URL, cfg.TLSConfig)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, conn: conn, sidecar: sidecar, now: time.Now}
	if err := c.auth(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) auth(ctx context.Context) error {
	body, err := EncodeAuthPayload(c.cfg.RoomID, c.cfg.Token, c.cfg.UID, c.cfg.Buvid)
	if err != nil {
		return fmt.Errorf("chatsocket: encode auth payload: %w", err)
	}
	return c.conn.WriteMessage(ctx, EncodePacket(OpAuth, body))
}

// Run reads events until ctx is cancelled or the connection errors,
// sending a heartbeat every 30 seconds and writing filtered events to the
// sidecar. It returns nil on clean context cancellation.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.readLoop(ctx)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.conn.Close()
			<-errCh
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			if err := c.conn.WriteMessage(ctx, EncodePacket(OpHeartbeat, nil)); err != nil {
				c.conn.Close()
				<-errCh
				return fmt.Errorf("chatsocket: heartbeat: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		raw, err := c.conn.ReadMessage(ctx)
		if err != nil {
			return err
		}
		packets, err := ParsePackets(raw)
		if err != nil {
			return err
		}
		for _, p := range packets {
			if p.Op != OpMessage {
				continue
			}
			if err := c.handleMessage(p.Body); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handleMessage(body []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if !c.cfg.Filters.Allows(env.Cmd) {
		return nil
	}
	return c.sidecar.WriteEvent(env.Cmd, json.RawMessage(body), c.now())
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.conn.Close()
}
