// Package key defines the key event model consumed by the palette input surface.
//
// Renderers translate their native key events (tcell, DOM, ...) into Event
// values before handing them to the palette engine:
//
//   - Key: identifies a special key, or KeyRune for characters
//   - Modifier: bitmask of Shift, Ctrl, Alt and Meta
//   - Event: a single key press with modifiers and timestamp
//
// Modifier combinations that include Ctrl, Alt or Meta are reserved for
// shortcuts outside the palette; see Event.HasShortcutModifier.
package key
