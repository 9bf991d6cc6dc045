package tui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/dshills/cmdpalette/internal/input/key"
)

// KeyEvent converts a tcell key event to a palette key event.
// Control characters such as Ctrl+U arrive from tcell as dedicated key
// codes and are reported as the letter with ModCtrl held.
func KeyEvent(ev *tcell.EventKey) key.Event {
	mods := convertMod(ev.Modifiers())

	k := ev.Key()
	if k == tcell.KeyRune {
		return key.NewRuneEvent(ev.Rune(), mods)
	}
	if special := convertKey(k); special != key.KeyNone {
		return key.NewSpecialEvent(special, mods)
	}
	if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return key.NewRuneEvent(rune('a'+(k-tcell.KeyCtrlA)), mods|key.ModCtrl)
	}
	return key.NewSpecialEvent(key.KeyNone, mods)
}

// convertKey maps tcell special keys. It must run before the control
// range check since Enter and Backspace share codes with Ctrl+M and Ctrl+H.
func convertKey(k tcell.Key) key.Key {
	switch k {
	case tcell.KeyEscape:
		return key.KeyEscape
	case tcell.KeyEnter:
		return key.KeyEnter
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return key.KeyBackspace
	case tcell.KeyDelete:
		return key.KeyDelete
	case tcell.KeyHome:
		return key.KeyHome
	case tcell.KeyEnd:
		return key.KeyEnd
	case tcell.KeyPgUp:
		return key.KeyPageUp
	case tcell.KeyPgDn:
		return key.KeyPageDown
	case tcell.KeyUp:
		return key.KeyUp
	case tcell.KeyDown:
		return key.KeyDown
	case tcell.KeyLeft:
		return key.KeyLeft
	case tcell.KeyRight:
		return key.KeyRight
	}
	return key.KeyNone
}

func convertMod(m tcell.ModMask) key.Modifier {
	var mod key.Modifier
	if m&tcell.ModShift != 0 {
		mod |= key.ModShift
	}
	if m&tcell.ModCtrl != 0 {
		mod |= key.ModCtrl
	}
	if m&tcell.ModAlt != 0 {
		mod |= key.ModAlt
	}
	if m&tcell.ModMeta != 0 {
		mod |= key.ModMeta
	}
	return mod
}
