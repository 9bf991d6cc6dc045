package command

import (
	"slices"
	"sync"
)

// History tracks recently executed commands in most-recently-used order.
type History struct {
	mu       sync.Mutex
	items    []string
	maxItems int
}

// NewHistory creates a command history with the given capacity.
func NewHistory(maxItems int) *History {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &History{
		items:    make([]string, 0, maxItems),
		maxItems: maxItems,
	}
}

// Add records a command execution.
// If the command was already in history, it is moved to the front.
func (h *History) Add(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if i := slices.Index(h.items, id); i >= 0 {
		h.items = slices.Delete(h.items, i, i+1)
	}
	h.items = slices.Insert(h.items, 0, id)

	if len(h.items) > h.maxItems {
		h.items = h.items[:h.maxItems]
	}
}

// Recent returns up to limit command IDs, most recent first.
// A non-positive limit returns all of them.
func (h *History) Recent(limit int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	return slices.Clone(h.items[:limit])
}

// Position returns the position of a command in history (0 = most recent).
// Returns -1 if not found.
func (h *History) Position(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Index(h.items, id)
}

// Remove removes a specific command from history.
func (h *History) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := slices.Index(h.items, id)
	if i < 0 {
		return false
	}
	h.items = slices.Delete(h.items, i, i+1)
	return true
}

// Clear removes all history entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = h.items[:0]
}

// Len returns the number of items in history.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}
