// Package chatsocket implements the Chat Socket Client (spec §4.4's chat
// sidecar): an authenticated, length-prefixed framing client that drains a
// platform's realtime chat/event firehose into a JSON-lines sidecar file
// beside the current recording segment.
package chatsocket

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Operation codes for the length-prefixed wire protocol.
const (
	OpHeartbeat uint32 = 2
	OpMessage   uint32 = 5
	OpAuth      uint32 = 7
	OpAuthReply uint32 = 8
)

// Packet versions. 0 is an uncompressed JSON body; 1 marks client-originated
// control frames (auth/heartbeat); 2 and 3 are nested zlib- and
// Brotli-compressed batches of further packets.
const (
	versionPlain   uint16 = 0
	versionControl uint16 = 1
	versionZlib    uint16 = 2
	versionBrotli  uint16 = 3
)

const headerLen = 16

// Packet is one decoded frame: its operation, wire version, and body.
type Packet struct {
	Op      uint32
	Version uint16
	Body    []byte
}

// AuthPayload is the JSON body of the OpAuth handshake frame.
type AuthPayload struct {
	UID      int64  `json:"uid"`
	RoomID   int64  `json:"roomid"`
	ProtoVer int    `json:"protover"`
	Platform string `json:"platform"`
	Type     int    `json:"type"`
	Key      string `json:"key"`
	Buvid    string `json:"buvid,omitempty"`
}

// EncodeAuthPayload marshals the handshake payload spec §4.4 specifies:
// {uid, roomid, protover=3, platform=web, type=2, key=token, buvid?}.
func EncodeAuthPayload(roomID, token string, uid int64, buvid string) ([]byte, error) {
	payload := AuthPayload{
		UID:      uid,
		RoomID:   parseRoomID(roomID),
		ProtoVer: 3,
		Platform: "web",
		Type:     2,
		Key:      token,
		Buvid:    buvid,
	}
	return json.Marshal(payload)
}

func parseRoomID(roomID string) int64 {
	var id int64
	for _, r := range roomID {
		if r < '0' || r > '9' {
			return 0
		}
		id = id*10 + int64(r-'0')
	}
	return id
}

// EncodePacket frames body as a single wire packet with the given
// operation, a 16-byte header, wire version 1, and sequence id 1.
func EncodePacket(op uint32, body []byte) []byte {
	packetLen := uint32(headerLen + len(body))
	buf := make([]byte, 0, packetLen)
	buf = binary.BigEndian.AppendUint32(buf, packetLen)
	buf = binary.BigEndian.AppendUint16(buf, uint16(headerLen))
	buf = binary.BigEndian.AppendUint16(buf, versionControl)
	buf = binary.BigEndian.AppendUint32(buf, op)
	buf = binary.BigEndian.AppendUint32(buf, 1)
	buf = append(buf, body...)
	return buf
}

// ParsePackets decodes zero or more back-to-back packets from data,
// recursively expanding zlib (version 2) and Brotli (version 3) bodies into
// their nested packet sequences.
func ParsePackets(data []byte) ([]Packet, error) {
	var packets []Packet
	offset := 0
	for offset+headerLen <= len(data) {
		packetLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		hLen := int(binary.BigEndian.Uint16(data[offset+4 : offset+6]))
		version := binary.BigEndian.Uint16(data[offset+6 : offset+8])
		op := binary.BigEndian.Uint32(data[offset+8 : offset+12])

		bodyStart := offset + hLen
		bodyEnd := offset + packetLen
		if bodyStart > len(data) || bodyEnd > len(data) || bodyEnd < bodyStart {
			return packets, fmt.Errorf("chatsocket: truncated packet at offset %d", offset)
		}
		body := data[bodyStart:bodyEnd]

		switch version {
		case versionZlib:
			decompressed, err := decompressZlib(body)
			if err != nil {
				return packets, err
			}
			inner, err := ParsePackets(decompressed)
			if err != nil {
				return packets, err
			}
			packets = append(packets, inner...)
		case versionBrotli:
			decompressed, err := decompressBrotli(body)
			if err != nil {
				return packets, err
			}
			inner, err := ParsePackets(decompressed)
			if err != nil {
				return packets, err
			}
			packets = append(packets, inner...)
		default:
			packets = append(packets, Packet{Op: op, Version: version, Body: append([]byte(nil), body...)})
		}
		offset += packetLen
	}
	return packets, nil
}

func decompressZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("chatsocket: zlib: %w", err)
	}
	defer reader.Close()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("chatsocket: zlib: %w", err)
	}
	return out, nil
}

func decompressBrotli(data []byte) ([]byte, error) {
	reader := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("chatsocket: brotli: %w", err)
	}
	return out, nil
}
