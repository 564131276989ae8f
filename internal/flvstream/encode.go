package flvstream

import "encoding/binary"

// Encode serializes event back into the container's on-disk wire format: a
// Header event is already self-contained (it was captured including its
// trailing zero PreviousTagSize field), and a Tag event gets its trailing
// PreviousTagSize field appended, computed from its own raw length, so the
// result can be written straight to a segment file and later read back by
// any standard player (spec §4.2's segment-priming preamble, and the
// Recorder Loop's steady-state tag writes).
func Encode(event Event) []byte {
	switch event.Kind {
	case EventHeader:
		out := make([]byte, len(event.Header))
		copy(out, event.Header)
		return out
	case EventTag:
		raw := event.Tag.Raw
		out := make([]byte, len(raw)+prevTagSizeLen)
		copy(out, raw)
		binary.BigEndian.PutUint32(out[len(raw):], uint32(len(raw)))
		return out
	default:
		return nil
	}
}
