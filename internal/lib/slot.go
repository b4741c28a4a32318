package lib

import (
	"sync"
)

// Slot is a one-shot notification cell:
//   - Fire(v): store v and release every receiver. Only the first call has effect.
//   - Done(): a channel closed by the first Fire.
//   - Value(): the fired value, if any.
type Slot struct {
	mu    sync.Mutex
	fired bool
	value uint64
	done  chan struct{}
}

// NewSlot creates an empty Slot.
func NewSlot() *Slot {
	return &Slot{
		done: make(chan struct{}),
	}
}

// Fire fills the slot with v and reports whether this call filled it.
// Firing never blocks, whether or not anyone is listening.
func (s *Slot) Fire(v uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fired {
		return false
	}
	s.value = v
	s.fired = true
	close(s.done)

	return true
}

// Done returns a channel that is closed once the slot is fired.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

// Value returns the fired value. ok is false while the slot is still empty.
func (s *Slot) Value() (v uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value, s.fired
}
