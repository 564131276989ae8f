package flvstream

// HeaderCache retains the container header and the most recent script,
// video-config, and audio-config tags observed on a live stream, so that a
// newly opened segment (spec §4.6's split policy) can be primed with a
// self-contained header even though the codec-config tags only ever arrive
// once, at the start of the broadcast.
type HeaderCache struct {
	header      []byte
	script      *Tag
	videoConfig *Tag
	audioConfig *Tag
}

// NewHeaderCache constructs an empty cache.
func NewHeaderCache() *HeaderCache {
	return &HeaderCache{}
}

// Observe records event, updating whichever cached slot it matches. Script
// tags and codec-config tags replace any previously cached value of the same
// kind; all other tags are ignored.
func (c *HeaderCache) Observe(event Event) {
	switch event.Kind {
	case EventHeader:
		header := make([]byte, len(event.Header))
		copy(header, event.Header)
		c.header = header
	case EventTag:
		tag := event.Tag
		switch {
		case tag.Type == TagTypeScript:
			cached := cloneTag(tag)
			c.script = &cached
		case IsVideoCodecConfig(tag):
			cached := cloneTag(tag)
			c.videoConfig = &cached
		case IsAudioCodecConfig(tag):
			cached := cloneTag(tag)
			c.audioConfig = &cached
		}
	}
}

// Ready reports whether enough has been cached to prime a new segment: the
// container header plus at least one codec-config tag.
func (c *HeaderCache) Ready() bool {
	return c.header != nil && (c.videoConfig != nil || c.audioConfig != nil)
}

// Prime returns the events that should be written at the start of a new
// segment file: the cached header, then the cached script tag (if any), then
// the cached video and audio codec-config tags (if any), each with its
// timestamp zeroed so the new segment's timeline starts at zero (spec §4.2).
func (c *HeaderCache) Prime() []Event {
	var events []Event
	if c.header != nil {
		header := make([]byte, len(c.header))
		copy(header, c.header)
		events = append(events, Event{Kind: EventHeader, Header: header})
	}
	for _, cached := range []*Tag{c.script, c.videoConfig, c.audioConfig} {
		if cached == nil {
			continue
		}
		zeroed := cloneTag(*cached)
		zeroTimestamp(&zeroed)
		events = append(events, Event{Kind: EventTag, Tag: zeroed})
	}
	return events
}

func cloneTag(tag Tag) Tag {
	raw := make([]byte, len(tag.Raw))
	copy(raw, tag.Raw)
	return Tag{Type: tag.Type, Raw: raw, DataOffset: tag.DataOffset, DataLen: tag.DataLen}
}

// zeroTimestamp clears the timestamp fields (positions 4-7) of a tag's raw
// header bytes in place.
func zeroTimestamp(tag *Tag) {
	if len(tag.Raw) < tagHeaderSize {
		return
	}
	tag.Raw[4] = 0
	tag.Raw[5] = 0
	tag.Raw[6] = 0
	tag.Raw[7] = 0
}
