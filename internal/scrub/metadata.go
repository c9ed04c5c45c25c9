package scrub

// droppedMetadataKeys are removed from request metadata before it leaves the gateway.
var droppedMetadataKeys = map[string]struct{}{
	"user":  {},
	"email": {},
}

// Request is the input to a scrub-only pass.
type Request struct {
	Text     string
	Metadata map[string]any
}

// ScrubRequest scrubs the text and returns a sanitized copy of the metadata.
// Metadata redactions are not added to the result count.
func (s *Scrubber) ScrubRequest(req Request) (Result, map[string]any) {
	return s.Scrub(req.Text), s.ScrubMetadata(req.Metadata)
}

// ScrubMetadata returns a copy of meta without identifying keys, with string
// values (including those in nested maps and slices) scrubbed.
func (s *Scrubber) ScrubMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if _, drop := droppedMetadataKeys[k]; drop {
			continue
		}
		out[k] = s.scrubValue(v)
	}
	return out
}

func (s *Scrubber) scrubValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.Scrub(val).Text
	case map[string]any:
		return s.ScrubMetadata(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = s.scrubValue(item)
		}
		return items
	default:
		return v
	}
}
