package palette

import (
	"sync"

	"github.com/google/uuid"
)

// Signal delivers values of type T to connected callbacks.
// The zero value is ready to use.
type Signal[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
}

type slot[T any] struct {
	id uuid.UUID
	fn func(T)
}

// Connect registers fn and returns a function that disconnects it.
// Disconnecting more than once is a no-op.
func (s *Signal[T]) Connect(fn func(T)) func() {
	id := uuid.New()

	s.mu.Lock()
	s.slots = append(s.slots, slot[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sl := range s.slots {
			if sl.id == id {
				s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every connected callback in connection order.
// Callbacks run without the signal lock held, so they may connect or
// disconnect other callbacks.
func (s *Signal[T]) Emit(v T) {
	s.mu.RLock()
	slots := make([]slot[T], len(s.slots))
	copy(slots, s.slots)
	s.mu.RUnlock()

	for _, sl := range slots {
		sl.fn(v)
	}
}

// Len returns the number of connected callbacks.
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
