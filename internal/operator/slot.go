package operator

import (
	"sync"

	"github.com/vk/hookwire/internal/fault"
)

// Slot is a write-once holder for an instance that does not exist yet.
// Callbacks registered with OnFill run exactly once, when the slot is filled.
type Slot struct {
	mu      sync.Mutex
	filled  bool
	value   any
	waiters []func(any)
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Fill stores v and runs the pending callbacks in registration order. Filling
// twice is an illegal-state error.
func (s *Slot) Fill(v any) error {
	s.mu.Lock()
	if s.filled {
		s.mu.Unlock()
		return fault.IllegalState("operator.Slot", "slot already filled")
	}
	s.filled = true
	s.value = v
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, fn := range waiters {
		fn(v)
	}
	return nil
}

// Get returns the stored instance.
func (s *Slot) Get() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.filled
}

// OnFill registers fn. It runs immediately if the slot is already filled.
func (s *Slot) OnFill(fn func(any)) {
	s.mu.Lock()
	if !s.filled {
		s.waiters = append(s.waiters, fn)
		s.mu.Unlock()
		return
	}
	v := s.value
	s.mu.Unlock()
	fn(v)
}
