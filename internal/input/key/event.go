package key

import "unicode"

// Event represents a single key press event.
type Event struct {
	// Key identifies the key pressed.
	Key Key

	// Rune is the character for KeyRune events.
	Rune rune

	// Modifiers contains the active modifier keys.
	Modifiers Modifier
}

// NewRuneEvent creates a key event for a character.
func NewRuneEvent(r rune, mods Modifier) Event {
	return Event{
		Key:       KeyRune,
		Rune:      r,
		Modifiers: mods,
	}
}

// NewSpecialEvent creates a key event for a special key.
func NewSpecialEvent(key Key, mods Modifier) Event {
	return Event{
		Key:       key,
		Modifiers: mods,
	}
}

// IsChar reports whether e types a printable character.
func (e Event) IsChar() bool {
	return e.Key == KeyRune && e.Rune != 0 && unicode.IsPrint(e.Rune)
}

// HasShortcutModifier reports whether Ctrl, Alt or Meta is held.
// Shift alone does not count since it only changes the character.
func (e Event) HasShortcutModifier() bool {
	return e.Modifiers&(ModCtrl|ModAlt|ModMeta) != 0
}

// String returns a representation such as "Ctrl+Up" or "a".
func (e Event) String() string {
	name := e.Key.String()
	if e.Key == KeyRune {
		name = string(e.Rune)
	}
	if e.Modifiers == ModNone {
		return name
	}
	return e.Modifiers.String() + "+" + name
}
