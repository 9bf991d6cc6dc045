package palette

import (
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// ChangeKind identifies a store mutation.
type ChangeKind int

const (
	// SectionAdded is reported after a successful Add.
	SectionAdded ChangeKind = iota

	// SectionRemoved is reported after a handle is disposed.
	SectionRemoved
)

// String returns the change name.
func (k ChangeKind) String() string {
	switch k {
	case SectionAdded:
		return "added"
	case SectionRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// StoreChange describes a mutation of the store.
type StoreChange struct {
	Kind      ChangeKind
	SectionID string
}

// Store holds the ordered collection of palette sections.
type Store struct {
	mu      sync.RWMutex
	entries []*entry
	log     logr.Logger

	changed Signal[StoreChange]
}

// entry is the identity a Handle refers to.
type entry struct {
	section Section
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used by the store.
func WithStoreLogger(log logr.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{log: logr.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a section and returns the handle that removes it.
// Adding an id that is already present fails with a *DuplicateSectionError
// and leaves the store untouched.
func (s *Store) Add(section Section) (*Handle, error) {
	if section.ID == "" {
		return nil, ErrInvalidSection
	}

	s.mu.Lock()
	for _, e := range s.entries {
		if e.section.ID == section.ID {
			s.mu.Unlock()
			return nil, &DuplicateSectionError{ID: section.ID}
		}
	}
	e := &entry{section: section.clone()}
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	s.log.V(1).Info("section added", "section", section.ID, "items", len(section.Items))
	s.changed.Emit(StoreChange{Kind: SectionAdded, SectionID: section.ID})

	return &Handle{store: s, entry: e}, nil
}

// Remove disposes h. It is equivalent to h.Dispose.
func (s *Store) Remove(h *Handle) {
	if h == nil || h.store != s {
		return
	}
	h.Dispose()
}

// remove deletes e by identity. It reports whether e was still present.
func (s *Store) remove(e *entry) bool {
	s.mu.Lock()
	idx := -1
	for i, cur := range s.entries {
		if cur == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	s.mu.Unlock()

	s.log.V(1).Info("section removed", "section", e.section.ID)
	s.changed.Emit(StoreChange{Kind: SectionRemoved, SectionID: e.section.ID})
	return true
}

// Sections returns a copy of the current sections in insertion order.
func (s *Store) Sections() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Section, len(s.entries))
	for i, e := range s.entries {
		result[i] = e.section.clone()
	}
	return result
}

// Flatten returns the items of all sections in section order, then item order.
func (s *Store) Flatten() []CommandItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		n += len(e.section.Items)
	}
	items := make([]CommandItem, 0, n)
	for _, e := range s.entries {
		items = append(items, e.section.Items...)
	}
	return items
}

// Has reports whether a section with id is present.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.section.ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of sections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// OnChange registers fn for store mutations and returns a function that
// unregisters it. Callbacks run after the store lock is released.
func (s *Store) OnChange(fn func(StoreChange)) func() {
	return s.changed.Connect(fn)
}

// Handle removes the section it was returned for.
type Handle struct {
	store    *Store
	entry    *entry
	disposed atomic.Bool
}

// ID returns the id of the section the handle refers to.
func (h *Handle) ID() string {
	return h.entry.section.ID
}

// Dispose removes the section from its store.
// Disposing an already disposed handle is a no-op.
func (h *Handle) Dispose() {
	if h == nil || h.disposed.Swap(true) {
		return
	}
	h.store.remove(h.entry)
}

// Disposed reports whether Dispose has been called.
func (h *Handle) Disposed() bool {
	return h.disposed.Load()
}
