package chatsocket

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn for exercising Client without a real
// socket: writes are recorded, and queued messages are handed back from
// ReadMessage in order.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	inbox    chan []byte
	closed   bool
	closeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return nil, errors.New("fakeConn: closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteMessage(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbox)
	return c.closeErr
}

func (c *fakeConn) recordedWrites() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func TestClientRunFiltersAndWritesSidecar(t *testing.T) {
	conn := newFakeConn()
	sidecarPath := filepath.Join(t.TempDir(), "chat.jsonl")
	sidecar, err := OpenSidecar(sidecarPath)
	if err != nil {
		t.Fatalf("open sidecar: %v", err)
	}

	client := &Client{
		cfg: Config{
			RoomID:  "42",
			Filters: Filters{RecordDanmaku: true},
		},
		conn:    conn,
		sidecar: sidecar,
		now:     func() time.Time { return time.Unix(0, 0).UTC() },
	}

	allowed := EncodePacket(OpMessage, []byte(`{"cmd":"DANMU_MSG","info":[1]}`))
	dropped := EncodePacket(OpMessage, []byte(`{"cmd":"SEND_GIFT","info":[2]}`))
	conn.inbox <- allowed
	conn.inbox <- dropped

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("client run: %v", err)
	}
	if err := sidecar.Close(); err != nil {
		t.Fatalf("close sidecar: %v", err)
	}

	raw, err := readAllLines(sidecarPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected 1 retained event, got %d: %v", len(raw), raw)
	}
	var line sidecarLine
	if err := json.Unmarshal(raw[0], &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if line.Cmd != "DANMU_MSG" {
		t.Fatalf("expected DANMU_MSG, got %q", line.Cmd)
	}
}

func TestClientAuthSendsHandshakePacket(t *testing.T) {
	conn := newFakeConn()
	client := &Client{
		cfg: Config{RoomID: "7", Token: "tok", UID: 5},
		conn: conn,
		now:  time.Now,
	}
	if err := client.auth(context.Background()); err != nil {
		t.Fatalf("auth: %v", err)
	}
	writes := conn.recordedWrites()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(writes))
	}
	packets, err := ParsePackets(writes[0])
	if err != nil {
		t.Fatalf("parse written packet: %v", err)
	}
	if len(packets) != 1 || packets[0].Op != OpAuth {
		t.Fatalf("expected one OpAuth packet, got %+v", packets)
	}
}

func readAllLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	return lines, nil
}
