package chatsocket

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestEncodePacketRoundTrip(t *testing.T) {
	wire := EncodePacket(OpAuth, []byte(`{"uid":1}`))
	packets, err := ParsePackets(wire)
	if err != nil {
		t.Fatalf("parse packets: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if packets[0].Op != OpAuth {
		t.Fatalf("expected op %d, got %d", OpAuth, packets[0].Op)
	}
	if string(packets[0].Body) != `{"uid":1}` {
		t.Fatalf("unexpected body %q", packets[0].Body)
	}
}

func TestParsePacketsMultipleFrames(t *testing.T) {
	wire := append(EncodePacket(OpMessage, []byte("a")), EncodePacket(OpMessage, []byte("b"))...)
	packets, err := ParsePackets(wire)
	if err != nil {
		t.Fatalf("parse packets: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if string(packets[0].Body) != "a" || string(packets[1].Body) != "b" {
		t.Fatalf("unexpected bodies: %q %q", packets[0].Body, packets[1].Body)
	}
}

func TestParsePacketsZlibNested(t *testing.T) {
	inner := EncodePacket(OpMessage, []byte(`{"cmd":"DANMU_MSG"}`))

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(inner); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	outer := buildRawPacket(2, compressed.Bytes())
	packets, err := ParsePackets(outer)
	if err != nil {
		t.Fatalf("parse packets: %v", err)
	}
	if len(packets) != 1 || packets[0].Op != OpMessage {
		t.Fatalf("expected one nested OpMessage packet, got %+v", packets)
	}
	if string(packets[0].Body) != `{"cmd":"DANMU_MSG"}` {
		t.Fatalf("unexpected nested body %q", packets[0].Body)
	}
}

func TestParsePacketsBrotliNested(t *testing.T) {
	inner := EncodePacket(OpMessage, []byte(`{"cmd":"SEND_GIFT"}`))

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	if _, err := bw.Write(inner); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}

	outer := buildRawPacket(3, compressed.Bytes())
	packets, err := ParsePackets(outer)
	if err != nil {
		t.Fatalf("parse packets: %v", err)
	}
	if len(packets) != 1 || packets[0].Op != OpMessage {
		t.Fatalf("expected one nested OpMessage packet, got %+v", packets)
	}
	if string(packets[0].Body) != `{"cmd":"SEND_GIFT"}` {
		t.Fatalf("unexpected nested body %q", packets[0].Body)
	}
}

func TestEncodeAuthPayload(t *testing.T) {
	body, err := EncodeAuthPayload("12345", "token-abc", 99, "buvid-xyz")
	if err != nil {
		t.Fatalf("encode auth payload: %v", err)
	}
	if !bytes.Contains(body, []byte(`"roomid":12345`)) {
		t.Fatalf("expected numeric roomid in %s", body)
	}
	if !bytes.Contains(body, []byte(`"protover":3`)) {
		t.Fatalf("expected protover 3 in %s", body)
	}
}

func buildRawPacket(version uint16, body []byte) []byte {
	packetLen := uint32(headerLen + len(body))
	buf := make([]byte, 0, packetLen)
	buf = binary.BigEndian.AppendUint32(buf, packetLen)
	buf = binary.BigEndian.AppendUint16(buf, uint16(headerLen))
	buf = binary.BigEndian.AppendUint16(buf, version)
	buf = binary.BigEndian.AppendUint32(buf, OpMessage)
	buf = binary.BigEndian.AppendUint32(buf, 1)
	buf = append(buf, body...)
	return buf
}
