package palette

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/dshills/cmdpalette/internal/input/key"
)

// Matcher scores a query against candidate items.
//
// Implementations must be deterministic for a fixed (query, candidates) pair
// and must only return items taken from candidates.
type Matcher interface {
	Match(ctx context.Context, query string, candidates []CommandItem, fields []Field) ([]MatchResult, error)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(ctx context.Context, query string, candidates []CommandItem, fields []Field) ([]MatchResult, error)

// Match implements Matcher.
func (f MatcherFunc) Match(ctx context.Context, query string, candidates []CommandItem, fields []Field) ([]MatchResult, error) {
	return f(ctx, query, candidates, fields)
}

// Registry resolves command ids. The engine only reads from it.
type Registry interface {
	Lookup(id string) (CommandItem, bool)
}

// Engine owns the palette state: query, filtered results and selection.
type Engine struct {
	mu       sync.Mutex
	store    *Store
	matcher  Matcher
	registry Registry
	fields   []Field
	log      logr.Logger

	query      string
	candidates []CommandItem
	results    []MatchResult
	selected   int
	generation uint64

	execute   Signal[ExecuteEvent]
	selection Signal[SelectionEvent]

	unsubscribe func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry makes the engine drop execute intents for ids the registry
// no longer knows.
func WithRegistry(r Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithFields sets the item fields passed to the matcher.
func WithFields(fields ...Field) Option {
	return func(e *Engine) {
		if len(fields) > 0 {
			e.fields = append([]Field(nil), fields...)
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates an engine over store. The initial query is empty, so
// the results hold every item of the store in order.
func NewEngine(store *Store, matcher Matcher, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		matcher:  matcher,
		fields:   DefaultFields,
		log:      logr.Discard(),
		selected: NoSelection,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.candidates = store.Flatten()
	e.results = neutralResults(e.candidates)
	e.selected = resetSelection(e.results)

	e.unsubscribe = store.OnChange(func(change StoreChange) {
		e.refresh(context.Background(), change)
	})
	return e
}

// Close detaches the engine from its store.
func (e *Engine) Close() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// SetQuery replaces the query and re-filters.
//
// An empty query restores every item in store order with a zero score
// without calling the matcher. Otherwise the matcher is called without the
// engine lock held; its result is applied only if no later SetQuery or
// store change happened meanwhile, else ErrStaleQuery is returned. On a
// matcher failure the previous results and selection are kept and a
// *MatcherError is returned. The selection resets to the first result.
func (e *Engine) SetQuery(ctx context.Context, text string) error {
	return e.run(ctx, text, e.begin(text), false)
}

// SetQueryAsync runs SetQuery on a new goroutine. The query and its
// generation are recorded before SetQueryAsync returns, so calls are ordered
// by call time. The returned channel receives the result and is then closed.
func (e *Engine) SetQueryAsync(ctx context.Context, text string) <-chan error {
	gen := e.begin(text)

	done := make(chan error, 1)
	go func() {
		done <- e.run(ctx, text, gen, false)
		close(done)
	}()
	return done
}

// begin records text as the query and starts a new generation for it.
func (e *Engine) begin(text string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = text
	e.generation++
	return e.generation
}

func (e *Engine) run(ctx context.Context, text string, gen uint64, keepSelection bool) error {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return ErrStaleQuery
	}
	candidates := e.candidates
	fields := e.fields

	if text == "" {
		e.applyLocked(neutralResults(candidates), keepSelection)
		ev := e.selectionEventLocked()
		e.mu.Unlock()
		e.selection.Emit(ev)
		return nil
	}
	e.mu.Unlock()

	results, err := e.matcher.Match(ctx, text, candidates, fields)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		e.log.V(1).Info("dropping stale match results", "query", text, "generation", gen)
		return ErrStaleQuery
	}
	if err != nil {
		e.mu.Unlock()
		e.log.Error(err, "matcher failed, keeping previous results", "query", text)
		return &MatcherError{Query: text, Err: err}
	}
	e.applyLocked(normalize(results, candidates), keepSelection)
	ev := e.selectionEventLocked()
	e.mu.Unlock()

	e.selection.Emit(ev)
	return nil
}

// refresh re-flattens the store and re-filters the current query.
// Results referring to items that left the store are pruned before the
// matcher runs so the result list never points at removed items.
func (e *Engine) refresh(ctx context.Context, change StoreChange) {
	e.mu.Lock()
	e.candidates = e.store.Flatten()
	e.applyLocked(prune(e.results, e.candidates), true)
	e.generation++
	gen := e.generation
	query := e.query
	ev := e.selectionEventLocked()
	e.mu.Unlock()

	e.log.V(1).Info("store changed", "change", change.Kind.String(), "section", change.SectionID)
	e.selection.Emit(ev)

	if err := e.run(ctx, query, gen, true); err != nil && !errors.Is(err, ErrStaleQuery) {
		e.log.Error(err, "re-filter after store change failed", "query", query)
	}
}

// applyLocked replaces the results and fixes up the selection.
// With keepSelection the cursor follows the previously selected item when it
// is still present, stays on its index when that is still valid, and falls
// back to the first result otherwise.
func (e *Engine) applyLocked(results []MatchResult, keepSelection bool) {
	prevIndex := e.selected
	prevID := ""
	if prevIndex >= 0 && prevIndex < len(e.results) {
		prevID = e.results[prevIndex].Item.ID
	}

	e.results = results
	if !keepSelection {
		e.selected = resetSelection(results)
		return
	}
	e.selected = reselect(results, prevID, prevIndex)
}

func (e *Engine) selectionEventLocked() SelectionEvent {
	return SelectionEvent{
		Selected: e.selected,
		Results:  cloneResults(e.results),
	}
}

// MoveSelection moves the cursor one step with wraparound.
// It is a no-op when there are no results.
func (e *Engine) MoveSelection(dir Direction) {
	e.mu.Lock()
	n := len(e.results)
	if n == 0 {
		e.mu.Unlock()
		return
	}
	switch dir {
	case Up:
		e.selected = (e.selected - 1 + n) % n
	case Down:
		e.selected = (e.selected + 1) % n
	}
	ev := e.selectionEventLocked()
	e.mu.Unlock()

	e.selection.Emit(ev)
}

// ConfirmSelection emits an execute intent for the selected result.
// Query and results are left unchanged. It reports whether an intent
// was emitted.
func (e *Engine) ConfirmSelection() bool {
	e.mu.Lock()
	if e.selected == NoSelection {
		e.mu.Unlock()
		return false
	}
	item := e.results[e.selected].Item
	e.mu.Unlock()

	return e.emitExecute(item)
}

// ActivateByIdentity emits an execute intent for the result with the given
// id, bypassing the cursor. Ids missing from the current results are
// ignored; they come from views that lag behind a store change.
func (e *Engine) ActivateByIdentity(id string) bool {
	e.mu.Lock()
	var (
		item  CommandItem
		found bool
	)
	for _, r := range e.results {
		if r.Item.ID == id {
			item, found = r.Item, true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		e.log.V(1).Info("ignoring activation of stale item", "id", id)
		return false
	}
	return e.emitExecute(item)
}

func (e *Engine) emitExecute(item CommandItem) bool {
	if e.registry != nil {
		if _, ok := e.registry.Lookup(item.ID); !ok {
			e.log.V(1).Info("ignoring execute of unregistered command", "id", item.ID)
			return false
		}
	}
	e.execute.Emit(ExecuteEvent{ID: item.ID, Args: item.Args})
	return true
}

// HandleKey routes a key press from the input surface.
//
// Up and Down move the cursor and Enter confirms. These keys are consumed
// (true is returned, so the caller should suppress any default behavior)
// even when there is nothing to move to. Presses with Ctrl, Alt or Meta held
// are left to the caller since those combinations belong to global shortcuts.
func (e *Engine) HandleKey(ev key.Event) bool {
	if ev.HasShortcutModifier() {
		return false
	}
	switch ev.Key {
	case key.KeyUp:
		e.MoveSelection(Up)
		return true
	case key.KeyDown:
		e.MoveSelection(Down)
		return true
	case key.KeyEnter:
		e.ConfirmSelection()
		return true
	}
	return false
}

// OnExecute registers fn for execute intents.
func (e *Engine) OnExecute(fn func(ExecuteEvent)) func() {
	return e.execute.Connect(fn)
}

// OnSelectionChanged registers fn for result and cursor changes.
func (e *Engine) OnSelectionChanged(fn func(SelectionEvent)) func() {
	return e.selection.Connect(fn)
}

// Query returns the current query.
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// Results returns a copy of the filtered results.
func (e *Engine) Results() []MatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneResults(e.results)
}

// SelectedIndex returns the cursor position or NoSelection.
func (e *Engine) SelectedIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Selected returns the selected result.
func (e *Engine) Selected() (MatchResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == NoSelection {
		return MatchResult{}, false
	}
	return e.results[e.selected], true
}

// Generation returns the current query generation.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// State returns a snapshot of the palette state.
func (e *Engine) State() State {
	sections := e.store.Sections()

	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Sections:   sections,
		Query:      e.query,
		Results:    cloneResults(e.results),
		Selected:   e.selected,
		Generation: e.generation,
	}
}

func neutralResults(items []CommandItem) []MatchResult {
	results := make([]MatchResult, len(items))
	for i, item := range items {
		results[i] = MatchResult{Item: item}
	}
	return results
}

func resetSelection(results []MatchResult) int {
	if len(results) == 0 {
		return NoSelection
	}
	return 0
}

func reselect(results []MatchResult, prevID string, prevIndex int) int {
	if len(results) == 0 {
		return NoSelection
	}
	if prevID != "" {
		for i, r := range results {
			if r.Item.ID == prevID {
				return i
			}
		}
	}
	if prevIndex >= 0 && prevIndex < len(results) {
		return prevIndex
	}
	return 0
}

// normalize drops results whose item is not a candidate and orders the rest
// by descending score, breaking ties by candidate order. Kept results carry
// the candidate item itself rather than the matcher's copy.
func normalize(results []MatchResult, candidates []CommandItem) []MatchResult {
	rank := make(map[string]int, len(candidates))
	for i, c := range candidates {
		if _, ok := rank[c.ID]; !ok {
			rank[c.ID] = i
		}
	}

	out := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if i, ok := rank[r.Item.ID]; ok {
			r.Item = candidates[i]
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return rank[out[i].Item.ID] < rank[out[j].Item.ID]
	})
	return out
}

// prune keeps only results whose item is still a candidate, rebound to the
// current item.
func prune(results []MatchResult, candidates []CommandItem) []MatchResult {
	present := make(map[string]int, len(candidates))
	for i, c := range candidates {
		if _, ok := present[c.ID]; !ok {
			present[c.ID] = i
		}
	}
	out := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if i, ok := present[r.Item.ID]; ok {
			r.Item = candidates[i]
			out = append(out, r)
		}
	}
	return out
}

func cloneResults(results []MatchResult) []MatchResult {
	out := make([]MatchResult, len(results))
	copy(out, results)
	return out
}
