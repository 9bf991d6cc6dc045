package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/go-logr/logr"

	"github.com/dshills/cmdpalette/internal/input/key"
	"github.com/dshills/cmdpalette/internal/palette"
)

// ExecuteFunc runs a confirmed command.
type ExecuteFunc func(ctx context.Context, ev palette.ExecuteEvent) error

// Palette is an interactive terminal front end for an Engine.
// It owns the query line; the engine owns results and the cursor.
type Palette struct {
	screen  tcell.Screen
	engine  *palette.Engine
	log     logr.Logger
	execute ExecuteFunc
	exitOn  bool

	query  []rune
	cursor int
	offset int
	rows   []string // item id per drawn result row, "" for headings

	mu        sync.Mutex
	status    string
	statusErr bool
	pending   []palette.ExecuteEvent
}

// Option configures a Palette.
type Option func(*Palette)

// WithExecute sets the function run for confirmed commands.
func WithExecute(fn ExecuteFunc) Option {
	return func(p *Palette) {
		p.execute = fn
	}
}

// WithExitOnExecute makes Run return after the first successful execution.
func WithExitOnExecute() Option {
	return func(p *Palette) {
		p.exitOn = true
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(p *Palette) {
		p.log = log
	}
}

// New creates a palette drawing on screen. The screen must already be
// initialized; the caller finalizes it.
func New(screen tcell.Screen, engine *palette.Engine, opts ...Option) *Palette {
	p := &Palette{
		screen: screen,
		engine: engine,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.query = []rune(engine.Query())
	p.cursor = len(p.query)
	return p
}

// Run processes terminal events until the user quits, ctx ends, or, with
// WithExitOnExecute, a command runs successfully. Quitting returns nil.
func (p *Palette) Run(ctx context.Context) error {
	offExec := p.engine.OnExecute(func(ev palette.ExecuteEvent) {
		p.mu.Lock()
		p.pending = append(p.pending, ev)
		p.mu.Unlock()
	})
	defer offExec()

	// Store changes refresh the engine from other goroutines.
	offSel := p.engine.OnSelectionChanged(func(palette.SelectionEvent) {
		p.wake()
	})
	defer offSel()

	p.screen.EnableMouse()
	defer p.screen.DisableMouse()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.wake()
		case <-done:
		}
	}()

	for {
		p.draw()
		ev := p.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		switch e := ev.(type) {
		case *tcell.EventResize:
			p.screen.Sync()
		case *tcell.EventKey:
			quit, err := p.HandleKey(ctx, KeyEvent(e))
			if err != nil || quit {
				return err
			}
		case *tcell.EventMouse:
			if p.HandleMouse(ctx, e) {
				return nil
			}
		}
	}
}

func (p *Palette) wake() {
	_ = p.screen.PostEvent(tcell.NewEventInterrupt(nil)) // queue full means a redraw is already due
}

// HandleKey applies one key press. It reports whether the palette should
// close.
func (p *Palette) HandleKey(ctx context.Context, ev key.Event) (bool, error) {
	if p.engine.HandleKey(ev) {
		return p.runPending(ctx), nil
	}

	if ev.Key == key.KeyRune && ev.Modifiers.Has(key.ModCtrl) {
		switch ev.Rune {
		case 'c', 'g', 'q':
			return true, nil
		case 'n':
			p.engine.MoveSelection(palette.Down)
		case 'p':
			p.engine.MoveSelection(palette.Up)
		case 'a':
			p.cursor = 0
		case 'e':
			p.cursor = len(p.query)
		case 'u':
			p.query = p.query[:0]
			p.cursor = 0
			return false, p.setQuery(ctx)
		case 'w':
			return false, p.deleteWord(ctx)
		}
		return false, nil
	}

	switch ev.Key {
	case key.KeyEscape:
		return true, nil
	case key.KeyBackspace:
		if p.cursor == 0 {
			return false, nil
		}
		p.query = slices.Delete(p.query, p.cursor-1, p.cursor)
		p.cursor--
		return false, p.setQuery(ctx)
	case key.KeyDelete:
		if p.cursor == len(p.query) {
			return false, nil
		}
		p.query = slices.Delete(p.query, p.cursor, p.cursor+1)
		return false, p.setQuery(ctx)
	case key.KeyLeft:
		if p.cursor > 0 {
			p.cursor--
		}
	case key.KeyRight:
		if p.cursor < len(p.query) {
			p.cursor++
		}
	case key.KeyHome:
		p.cursor = 0
	case key.KeyEnd:
		p.cursor = len(p.query)
	case key.KeyPageUp, key.KeyPageDown:
		p.page(ev.Key == key.KeyPageUp)
	case key.KeyRune:
		if !ev.IsChar() || ev.HasShortcutModifier() {
			return false, nil
		}
		p.query = slices.Insert(p.query, p.cursor, ev.Rune)
		p.cursor++
		return false, p.setQuery(ctx)
	}
	return false, nil
}

// HandleMouse applies one mouse event. A plain left click on a result runs
// it and the wheel moves the selection. It reports whether the palette
// should close.
func (p *Palette) HandleMouse(ctx context.Context, ev *tcell.EventMouse) bool {
	switch ev.Buttons() {
	case tcell.WheelUp:
		p.engine.MoveSelection(palette.Up)
	case tcell.WheelDown:
		p.engine.MoveSelection(palette.Down)
	case tcell.Button1:
		if ev.Modifiers() != tcell.ModNone {
			return false
		}
		_, y := ev.Position()
		row := y - headerRows
		if row < 0 || row >= len(p.rows) || p.rows[row] == "" {
			return false
		}
		// The row may name an item that has since left the store.
		if p.engine.ActivateByIdentity(p.rows[row]) {
			return p.runPending(ctx)
		}
	}
	return false
}

// page moves the selection by one screen of rows, stopping at the first
// or last result.
func (p *Palette) page(up bool) {
	st := p.engine.State()
	n, sel := len(st.Results), st.Selected
	if n == 0 || sel < 0 {
		return
	}
	_, h := p.screen.Size()
	step := max(h-headerRows, 1)

	target, dir := min(sel+step, n-1), palette.Down
	if up {
		target, dir = max(sel-step, 0), palette.Up
	}
	for i := sel; i != target; {
		p.engine.MoveSelection(dir)
		if up {
			i--
		} else {
			i++
		}
	}
}

// deleteWord removes the word before the cursor, like Ctrl+W in a shell.
func (p *Palette) deleteWord(ctx context.Context) error {
	start := p.cursor
	for start > 0 && p.query[start-1] == ' ' {
		start--
	}
	for start > 0 && p.query[start-1] != ' ' {
		start--
	}
	if start == p.cursor {
		return nil
	}
	p.query = slices.Delete(p.query, start, p.cursor)
	p.cursor = start
	return p.setQuery(ctx)
}

// setQuery pushes the edited query to the engine. Matcher failures are
// shown on the status line rather than returned, since the engine keeps
// its previous results.
func (p *Palette) setQuery(ctx context.Context) error {
	err := p.engine.SetQuery(ctx, string(p.query))
	var merr *palette.MatcherError
	switch {
	case err == nil, errors.Is(err, palette.ErrStaleQuery):
		p.setStatus("", false)
		return nil
	case errors.As(err, &merr):
		p.setStatus(merr.Error(), true)
		return nil
	}
	return err
}

// runPending executes commands confirmed since the last call. It reports
// whether Run should return.
func (p *Palette) runPending(ctx context.Context) bool {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	exit := false
	for _, ev := range pending {
		if p.execute == nil {
			continue
		}
		if err := p.execute(ctx, ev); err != nil {
			p.log.Error(err, "command failed", "id", ev.ID)
			p.setStatus(fmt.Sprintf("%s: %v", ev.ID, err), true)
			continue
		}
		p.log.V(1).Info("command executed", "id", ev.ID)
		p.setStatus("ran "+ev.ID, false)
		exit = exit || p.exitOn
	}
	return exit
}

func (p *Palette) setStatus(msg string, isErr bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.statusErr = msg, isErr
}

func (p *Palette) statusLine() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.statusErr
}

// Query returns the text on the query line.
func (p *Palette) Query() string {
	return string(p.query)
}
