package livedata

import (
	"sync"

	"iot-dashboard/widget"
)

// Ring keeps the newest samples of one subscription.
type Ring struct {
	mu       sync.Mutex
	capacity int
	samples  []widget.Sample
	version  uint64
}

// NewRing creates a ring holding at most capacity samples (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{capacity: capacity, samples: make([]widget.Sample, 0, capacity)}
}

// Push appends a sample, drops the oldest one if the ring is full and returns the new version.
func (r *Ring) Push(s widget.Sample) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, s)
	if len(r.samples) > r.capacity {
		r.samples = r.samples[len(r.samples)-r.capacity:]
	}
	r.version++
	return r.version
}

// Seed puts historical samples in front of the live ones and returns how many were kept.
// History at or after the oldest live timestamp is already in the ring and gets dropped.
func (r *Ring) Seed(history []widget.Sample) int {
	if len(history) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) > 0 {
		if oldest, ok := sampleMillis(r.samples[0]); ok {
			kept := history[:0:0]
			for _, h := range history {
				if ts, ok := sampleMillis(h); ok && ts >= oldest {
					continue
				}
				kept = append(kept, h)
			}
			history = kept
		}
	}
	if len(history) == 0 {
		return 0
	}

	merged := make([]widget.Sample, 0, len(history)+len(r.samples))
	merged = append(merged, history...)
	merged = append(merged, r.samples...)
	if len(merged) > r.capacity {
		merged = merged[len(merged)-r.capacity:]
	}
	r.samples = merged
	r.version++
	return len(history)
}

func sampleMillis(s widget.Sample) (int64, bool) {
	switch ts := s[TimestampKey].(type) {
	case int64:
		return ts, true
	case int:
		return int64(ts), true
	case float64:
		return int64(ts), true
	}
	return 0, false
}

// Grow raises the capacity. A ring never shrinks.
func (r *Ring) Grow(capacity int) {
	r.mu.Lock()
	if capacity > r.capacity {
		r.capacity = capacity
	}
	r.mu.Unlock()
}

// Capacity returns the current capacity.
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

// Snapshot copies the newest n samples, oldest first.
func (r *Ring) Snapshot(n int) []widget.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.samples) {
		n = len(r.samples)
	}
	out := make([]widget.Sample, n)
	copy(out, r.samples[len(r.samples)-n:])
	return out
}

// Latest returns the newest sample or nil.
func (r *Ring) Latest() widget.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return nil
	}
	return r.samples[len(r.samples)-1]
}

// Version increases with every change of the ring content.
func (r *Ring) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Len returns the number of samples held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
