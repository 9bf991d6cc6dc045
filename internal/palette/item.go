package palette

// Field names a searchable field of a CommandItem.
type Field string

const (
	// FieldTitle is the display title.
	FieldTitle Field = "title"

	// FieldCaption is the descriptive caption.
	FieldCaption Field = "caption"

	// FieldID is the command identifier.
	FieldID Field = "id"
)

// DefaultFields are searched when the engine is not configured otherwise.
var DefaultFields = []Field{FieldTitle, FieldCaption}

// ParseField converts a field name. The second result is false for unknown names.
func ParseField(name string) (Field, bool) {
	switch Field(name) {
	case FieldTitle, FieldCaption, FieldID:
		return Field(name), true
	}
	return "", false
}

// CommandItem is an entry that can be added to a palette section.
// Its identity is ID.
type CommandItem struct {
	// ID is the unique command identifier (e.g. "demo:nes:sumer").
	ID string

	// Args is an opaque payload passed along with the execute intent.
	Args any

	// Shortcut is a display-only key hint.
	Shortcut string

	// Title is the text shown for the item.
	Title string

	// Caption is optional descriptive text.
	Caption string
}

// Text returns the value of the given field.
func (c CommandItem) Text(f Field) string {
	switch f {
	case FieldTitle:
		return c.Title
	case FieldCaption:
		return c.Caption
	case FieldID:
		return c.ID
	default:
		return ""
	}
}

// Section is a named, ordered group of command items displayed together.
type Section struct {
	ID      string
	Heading string
	Items   []CommandItem
}

func (s Section) clone() Section {
	items := make([]CommandItem, len(s.Items))
	copy(items, s.Items)
	s.Items = items
	return s
}

// Span marks matched characters in a field.
// Start and End are rune offsets; End is exclusive.
type Span struct {
	Field Field
	Start int
	End   int
}

// MatchResult is a scored item produced for a single query.
type MatchResult struct {
	Item  CommandItem
	Score int
	Spans []Span
}

// NoSelection is the selection index when there are no results.
const NoSelection = -1

// State is a snapshot of the engine state.
type State struct {
	Sections   []Section
	Query      string
	Results    []MatchResult
	Selected   int
	Generation uint64
}

// HasSelection reports whether a result is selected.
func (s State) HasSelection() bool {
	return s.Selected != NoSelection
}

// Direction is a cursor movement direction.
type Direction int

const (
	// Up moves the cursor towards the first result.
	Up Direction = iota

	// Down moves the cursor towards the last result.
	Down
)

// String returns "up" or "down".
func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ExecuteEvent is emitted when a command is confirmed or activated.
type ExecuteEvent struct {
	ID   string
	Args any
}

// SelectionEvent is emitted whenever the results or the cursor change.
type SelectionEvent struct {
	Selected int
	Results  []MatchResult
}
