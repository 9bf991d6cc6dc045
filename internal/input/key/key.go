package key

import "fmt"

// Key identifies a key the palette reacts to. Characters use KeyRune with
// the character in Event.Rune; anything else arrives as KeyNone.
type Key uint8

// Keys the palette handles.
const (
	KeyNone Key = iota

	// Cursor movement within the result list. Up, Down and Enter belong to
	// the engine; the paging keys to the renderer.
	KeyUp
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyEnter

	// Query line editing.
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyBackspace
	KeyDelete

	// KeyEscape closes the palette.
	KeyEscape

	KeyRune
)

var keyNames = [...]string{
	KeyNone:      "None",
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyPageUp:    "PageUp",
	KeyPageDown:  "PageDown",
	KeyEnter:     "Enter",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeyHome:      "Home",
	KeyEnd:       "End",
	KeyBackspace: "Backspace",
	KeyDelete:    "Delete",
	KeyEscape:    "Escape",
	KeyRune:      "Rune",
}

func (k Key) String() string {
	if int(k) < len(keyNames) {
		return keyNames[k]
	}
	return fmt.Sprintf("Key(%d)", k)
}

// IsVertical reports whether k moves the palette cursor one row.
func (k Key) IsVertical() bool {
	return k == KeyUp || k == KeyDown
}
