package palette

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateSection is matched by errors returned when adding a section
	// whose id is already present.
	ErrDuplicateSection = errors.New("duplicate section")

	// ErrInvalidSection is returned for sections without an id.
	ErrInvalidSection = errors.New("invalid section")

	// ErrStaleQuery is returned by SetQuery when a newer query or a store
	// change superseded it before the matcher finished.
	ErrStaleQuery = errors.New("query superseded")
)

// DuplicateSectionError reports an Add with an id already in the store.
type DuplicateSectionError struct {
	ID string
}

func (e *DuplicateSectionError) Error() string {
	return fmt.Sprintf("section %q already exists in command palette", e.ID)
}

// Is makes errors.Is(err, ErrDuplicateSection) succeed.
func (e *DuplicateSectionError) Is(target error) bool {
	return target == ErrDuplicateSection
}

// MatcherError wraps a failure of the external matcher.
// The engine keeps its previous results when this is returned.
type MatcherError struct {
	Query string
	Err   error
}

func (e *MatcherError) Error() string {
	return fmt.Sprintf("matching %q: %v", e.Query, e.Err)
}

func (e *MatcherError) Unwrap() error {
	return e.Err
}
