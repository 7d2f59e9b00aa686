// internal/emit/slot.go
package emit

import "sync"

// Slot is a single-assignment result holder. The first Offer wins and
// closes Ready; every later Offer is a no-op. This is the typed
// settlement primitive the run coordinator awaits instead of sharing a
// mutable "resolved" flag with the emission path.
type Slot struct {
	mu    sync.Mutex
	done  bool
	value any
	ready chan struct{}
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{ready: make(chan struct{})}
}

// Offer stores v if the slot is still empty and reports whether it won.
func (s *Slot) Offer(v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	s.value = v
	close(s.ready)
	return true
}

// Ready is closed after the first successful Offer.
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}

// Value returns the stored value and whether one was stored.
func (s *Slot) Value() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.done
}
