// Package flvstream implements a streaming parser for the recorder's
// inbound container format (spec §4.1) and the companion classifier and
// Header Cache (spec §4.2) used to open new recorder segments mid-broadcast.
package flvstream

import (
	"bytes"
	"fmt"
)

// Tag type values used downstream (spec §4.1).
const (
	TagTypeAudio  = 8
	TagTypeVideo  = 9
	TagTypeScript = 18
)

const (
	signatureSize   = 3
	headerFixedSize = 9 // signature(3) + version(1) + flags(1) + headerSize(4)
	prevTagSizeLen  = 4
	tagHeaderSize   = 11
)

var signature = []byte("FLV")

// ErrBadFormat is returned when the stream does not begin with the expected
// three-byte signature.
var ErrBadFormat = fmt.Errorf("flvstream: bad format signature")

// EventKind discriminates the two event shapes the Parser emits.
type EventKind int

const (
	EventHeader EventKind = iota
	EventTag
)

// Tag is one parsed container tag: its declared type, its full raw bytes
// (header + payload, excluding the trailing size field), and the offset and
// length of its payload within those raw bytes.
type Tag struct {
	Type       int
	Raw        []byte
	DataOffset int
	DataLen    int
}

// Data returns the tag's payload slice.
func (t Tag) Data() []byte {
	if t.DataOffset+t.DataLen > len(t.Raw) {
		return nil
	}
	return t.Raw[t.DataOffset : t.DataOffset+t.DataLen]
}

// Timestamp assembles the tag's 32-bit timestamp from raw tag bytes: the
// extended (high) byte at position 7, and the 24-bit base value at
// positions 4, 5, 6 — per spec §4.1.
func (t Tag) Timestamp() uint32 {
	if len(t.Raw) < tagHeaderSize {
		return 0
	}
	high := uint32(t.Raw[7])
	return (high << 24) | (uint32(t.Raw[4]) << 16) | (uint32(t.Raw[5]) << 8) | uint32(t.Raw[6])
}

// Event is one item in the lazy event sequence the Parser yields: either a
// single Header, or a Tag.
type Event struct {
	Kind   EventKind
	Header []byte
	Tag    Tag
}

// Parser is a streaming, non-blocking parser over an append-only byte
// sequence. Push feeds newly arrived bytes and returns whatever complete
// events can now be formed; partial frames remain buffered for the next
// call.
type Parser struct {
	buf        bytes.Buffer
	sawHeader  bool
	headerSize int
}

// New constructs an empty Parser.
func New() *Parser {
	return &Parser{}
}

// Push appends data to the internal buffer and returns every event that can
// be fully decoded from it. It never blocks and never discards a partial
// frame.
func (p *Parser) Push(data []byte) ([]Event, error) {
	if len(data) > 0 {
		p.buf.Write(data)
	}

	var events []Event
	for {
		event, consumed, err := p.tryConsumeOne()
		if err != nil {
			return events, err
		}
		if !consumed {
			break
		}
		events = append(events, event)
	}
	return events, nil
}

func (p *Parser) tryConsumeOne() (Event, bool, error) {
	avail := p.buf.Bytes()

	if !p.sawHeader {
		if len(avail) < headerFixedSize {
			return Event{}, false, nil
		}
		if !bytes.Equal(avail[:signatureSize], signature) {
			return Event{}, false, ErrBadFormat
		}
		declaredHeaderSize := int(avail[5])<<24 | int(avail[6])<<16 | int(avail[7])<<8 | int(avail[8])
		if declaredHeaderSize < headerFixedSize {
			declaredHeaderSize = headerFixedSize
		}
		total := declaredHeaderSize + prevTagSizeLen
		if len(avail) < total {
			return Event{}, false, nil
		}
		header := make([]byte, total)
		copy(header, avail[:total])
		p.buf.Next(total)
		p.sawHeader = true
		p.headerSize = total
		return Event{Kind: EventHeader, Header: header}, true, nil
	}

	if len(avail) < tagHeaderSize {
		return Event{}, false, nil
	}
	tagType := int(avail[0])
	dataSize := int(avail[1])<<16 | int(avail[2])<<8 | int(avail[3])
	frameTotal := tagHeaderSize + dataSize + prevTagSizeLen
	if len(avail) < frameTotal {
		return Event{}, false, nil
	}

	raw := make([]byte, tagHeaderSize+dataSize)
	copy(raw, avail[:tagHeaderSize+dataSize])
	p.buf.Next(frameTotal)

	tag := Tag{
		Type:       tagType,
		Raw:        raw,
		DataOffset: tagHeaderSize,
		DataLen:    dataSize,
	}
	return Event{Kind: EventTag, Tag: tag}, true, nil
}

// Buffered reports how many bytes remain unconsumed (a partial frame, or
// nothing yet if the stream cut off cleanly between frames).
func (p *Parser) Buffered() int {
	return p.buf.Len()
}
