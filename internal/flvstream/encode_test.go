package flvstream

import (
	"bytes"
	"testing"
)

func TestEncodeRoundTripsThroughParser(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte("FLV"))
	stream.Write([]byte{1, 5, 0, 0, 0, 9})
	stream.Write([]byte{0, 0, 0, 0}) // PreviousTagSize0

	tagHeader := []byte{TagTypeVideo, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0}
	stream.Write(tagHeader)
	stream.Write([]byte{0x17, 0x01})
	stream.Write([]byte{0, 0, 0, uint8(len(tagHeader) + 2)})

	parser := New()
	events, err := parser.Push(stream.Bytes())
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected header + tag, got %d events", len(events))
	}

	var reencoded bytes.Buffer
	for _, event := range events {
		reencoded.Write(Encode(event))
	}

	replay := New()
	replayed, err := replay.Push(reencoded.Bytes())
	if err != nil {
		t.Fatalf("replay push: %v", err)
	}
	if len(replayed) != 2 {
		t.Fatalf("expected re-encoded stream to reparse to 2 events, got %d", len(replayed))
	}
	if replayed[1].Tag.Type != TagTypeVideo {
		t.Fatalf("expected replayed tag type %d, got %d", TagTypeVideo, replayed[1].Tag.Type)
	}
}

func TestEncodeTagAppendsPreviousTagSize(t *testing.T) {
	tag := Tag{Type: TagTypeVideo, Raw: []byte{9, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0x17, 0x01}, DataOffset: tagHeaderSize, DataLen: 2}
	out := Encode(Event{Kind: EventTag, Tag: tag})
	if len(out) != len(tag.Raw)+4 {
		t.Fatalf("expected encoded length %d, got %d", len(tag.Raw)+4, len(out))
	}
	wantSize := uint32(len(tag.Raw))
	gotSize := uint32(out[len(out)-4])<<24 | uint32(out[len(out)-3])<<16 | uint32(out[len(out)-2])<<8 | uint32(out[len(out)-1])
	if gotSize != wantSize {
		t.Fatalf("expected trailing size %d, got %d", wantSize, gotSize)
	}
}
