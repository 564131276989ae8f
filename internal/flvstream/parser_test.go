package flvstream

import (
	"bytes"
	"testing"
)

func buildHeader() []byte {
	// signature + version + flags + headerSize(9) + PreviousTagSize0(0)
	return []byte{'F', 'L', 'V', 1, 1, 0, 0, 0, 9, 0, 0, 0, 0}
}

func buildTag(tagType byte, timestamp uint32, payload []byte) []byte {
	dataSize := len(payload)
	buf := make([]byte, 0, tagHeaderSize+dataSize+prevTagSizeLen)
	buf = append(buf, tagType)
	buf = append(buf, byte(dataSize>>16), byte(dataSize>>8), byte(dataSize))
	buf = append(buf, byte(timestamp>>16), byte(timestamp>>8), byte(timestamp), byte(timestamp>>24))
	buf = append(buf, 0, 0, 0) // stream id
	buf = append(buf, payload...)
	total := tagHeaderSize + dataSize
	buf = append(buf, byte(total>>24), byte(total>>16), byte(total>>8), byte(total))
	return buf
}

func TestParserEmitsHeaderThenTags(t *testing.T) {
	p := New()
	stream := append([]byte{}, buildHeader()...)
	stream = append(stream, buildTag(TagTypeScript, 0, []byte("meta"))...)
	stream = append(stream, buildTag(TagTypeVideo, 40, []byte{0x17, 0x01, 0, 0, 0})...)

	events, err := p.Push(stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind != EventHeader {
		t.Fatalf("expected first event to be header")
	}
	if events[1].Tag.Type != TagTypeScript {
		t.Fatalf("expected second event to be script tag")
	}
	if events[2].Tag.Type != TagTypeVideo || events[2].Tag.Timestamp() != 40 {
		t.Fatalf("expected video tag with timestamp 40, got %+v", events[2].Tag)
	}
}

func TestParserBuffersPartialFrames(t *testing.T) {
	p := New()
	header := buildHeader()
	tag := buildTag(TagTypeAudio, 12, []byte{0xaf, 0x01, 0, 0})

	events, err := p.Push(header[:len(header)-2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events from a partial header, got %d", len(events))
	}

	events, err = p.Push(append(header[len(header)-2:], tag[:5]...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventHeader {
		t.Fatalf("expected exactly the header event once complete, got %+v", events)
	}

	events, err = p.Push(tag[5:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Tag.Type != TagTypeAudio {
		t.Fatalf("expected the buffered audio tag to complete, got %+v", events)
	}
	if p.Buffered() != 0 {
		t.Fatalf("expected no leftover buffered bytes, got %d", p.Buffered())
	}
}

func TestParserRejectsBadSignature(t *testing.T) {
	p := New()
	bad := []byte{'X', 'X', 'X', 1, 1, 0, 0, 0, 9}
	if _, err := p.Push(bad); err != ErrBadFormat {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestTagDataSlice(t *testing.T) {
	raw := buildTag(TagTypeVideo, 5, []byte{1, 2, 3})
	tag := Tag{Type: TagTypeVideo, Raw: raw[:tagHeaderSize+3], DataOffset: tagHeaderSize, DataLen: 3}
	if !bytes.Equal(tag.Data(), []byte{1, 2, 3}) {
		t.Fatalf("unexpected data slice: %v", tag.Data())
	}
}
