// Package pathstore holds the ordered sequence of rover positions received
// during the lifetime of the process.
package pathstore

import "sync"

// Sample is a single rover position in centimetres.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Store is an append-only path. One goroutine appends while another takes
// snapshots for drawing.
type Store struct {
	mu      sync.RWMutex
	samples []Sample
}

// New returns an empty Store.
func New() *Store {
	return &Store{samples: make([]Sample, 0, 256)}
}

// Append adds s to the end of the path.
func (s *Store) Append(sample Sample) {
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

// Snapshot returns a copy of the path in arrival order.
func (s *Store) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of samples collected so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Bounds returns the per-axis minimum and maximum of the path. ok is false
// when the path is empty.
func (s *Store) Bounds() (min, max Sample, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, Sample{}, false
	}
	min, max = s.samples[0], s.samples[0]
	for _, p := range s.samples[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	return min, max, true
}

// Reset drops every sample. The panel only calls it when configured to start
// each session with a fresh map.
func (s *Store) Reset() {
	s.mu.Lock()
	s.samples = s.samples[:0:0]
	s.mu.Unlock()
}
