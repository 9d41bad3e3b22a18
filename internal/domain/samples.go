package domain

import "encoding/json"

// Sample is one correction kept as evidence inside a pattern.
type Sample struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	SourceID  int64  `json:"source_id"`
}

// SampleBuffer holds a bounded window of pattern samples. When full, adding
// evicts the oldest entry; a sample whose SourceID is already present is
// dropped instead of added, so re-analysis never duplicates evidence.
type SampleBuffer struct {
	cap     int
	entries []Sample
}

const DefaultSampleCap = 20

func NewSampleBuffer(capacity int) SampleBuffer {
	if capacity < 1 {
		capacity = DefaultSampleCap
	}
	return SampleBuffer{cap: capacity}
}

// Add appends s, evicting the oldest entry when full. Returns false when the
// sample was suppressed as a duplicate.
func (b *SampleBuffer) Add(s Sample) bool {
	for _, e := range b.entries {
		if e.SourceID == s.SourceID {
			return false
		}
	}
	if len(b.entries) >= b.cap {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, s)
	return true
}

func (b *SampleBuffer) Len() int { return len(b.entries) }

func (b *SampleBuffer) Cap() int { return b.cap }

// All returns the samples oldest-first.
func (b *SampleBuffer) All() []Sample {
	out := make([]Sample, len(b.entries))
	copy(out, b.entries)
	return out
}

// MarshalJSON stores only the entries; capacity is configuration, not data.
func (b SampleBuffer) MarshalJSON() ([]byte, error) {
	if b.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.entries)
}

// DecodeSamples rebuilds a buffer from its stored JSON form. Entries beyond
// the capacity are trimmed oldest-first, matching Add's eviction order.
func DecodeSamples(raw string, capacity int) (SampleBuffer, error) {
	b := NewSampleBuffer(capacity)
	if raw == "" {
		return b, nil
	}
	var entries []Sample
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return b, err
	}
	if len(entries) > b.cap {
		entries = entries[len(entries)-b.cap:]
	}
	b.entries = entries
	return b, nil
}
