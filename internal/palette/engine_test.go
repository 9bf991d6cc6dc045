package palette

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cmdpalette/internal/input/key"
)

// substringMatcher keeps items whose title contains the query and scores
// shorter titles higher.
var substringMatcher = MatcherFunc(func(_ context.Context, query string, candidates []CommandItem, _ []Field) ([]MatchResult, error) {
	var out []MatchResult
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Title), strings.ToLower(query)) {
			out = append(out, MatchResult{Item: c, Score: 100 - len(c.Title)})
		}
	}
	return out, nil
})

// gatedMatcher blocks each query until its gate is released.
type gatedMatcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls chan string
}

func newGatedMatcher(queries ...string) *gatedMatcher {
	m := &gatedMatcher{
		gates: make(map[string]chan struct{}),
		calls: make(chan string, 16),
	}
	for _, q := range queries {
		m.gates[q] = make(chan struct{})
	}
	return m
}

func (m *gatedMatcher) release(query string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.gates[query])
}

func (m *gatedMatcher) Match(ctx context.Context, query string, candidates []CommandItem, fields []Field) ([]MatchResult, error) {
	m.mu.Lock()
	gate := m.gates[query]
	m.mu.Unlock()

	m.calls <- query
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return substringMatcher(ctx, query, candidates, fields)
}

func resultIDs(results []MatchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Item.ID
	}
	return ids
}

func alphaBetaStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	_, err := s.Add(Section{ID: "a", Heading: "A", Items: []CommandItem{{ID: "a1", Title: "Alpha"}}})
	require.NoError(t, err)
	_, err = s.Add(Section{ID: "b", Heading: "B", Items: []CommandItem{{ID: "b1", Title: "Beta"}}})
	require.NoError(t, err)
	return s
}

func TestEngineEmptyQueryScenario(t *testing.T) {
	e := NewEngine(alphaBetaStore(t), substringMatcher)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), ""))
	assert.Equal(t, []string{"a1", "b1"}, resultIDs(e.Results()))
	assert.Equal(t, 0, e.SelectedIndex())

	e.MoveSelection(Down)
	assert.Equal(t, 1, e.SelectedIndex())

	var got []ExecuteEvent
	e.OnExecute(func(ev ExecuteEvent) { got = append(got, ev) })

	assert.True(t, e.ConfirmSelection())
	require.Len(t, got, 1)
	assert.Equal(t, ExecuteEvent{ID: "b1", Args: nil}, got[0])

	// Confirmation leaves the palette state alone.
	assert.Equal(t, "", e.Query())
	assert.Equal(t, []string{"a1", "b1"}, resultIDs(e.Results()))
	assert.Equal(t, 1, e.SelectedIndex())
}

func TestEngineEmptyQuerySkipsMatcher(t *testing.T) {
	calls := 0
	m := MatcherFunc(func(context.Context, string, []CommandItem, []Field) ([]MatchResult, error) {
		calls++
		return nil, nil
	})
	e := NewEngine(alphaBetaStore(t), m)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), ""))
	assert.Zero(t, calls)
	for _, r := range e.Results() {
		assert.Zero(t, r.Score)
	}
}

func TestEngineInitialState(t *testing.T) {
	e := NewEngine(NewStore(), substringMatcher)
	defer e.Close()

	st := e.State()
	assert.Empty(t, st.Results)
	assert.Equal(t, NoSelection, st.Selected)
	assert.False(t, st.HasSelection())
	_, ok := e.Selected()
	assert.False(t, ok)
}

func TestEngineQueryFilters(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("nes", "Show Sumer", "Show Babylon", "Show Neo-Babylonia"))
	_, _ = s.Add(section("foo", "Foo", "Bar", "Baz"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), "ba"))
	assert.Equal(t, []string{"Bar", "Baz", "Show Babylon", "Show Neo-Babylonia"}, resultIDs(e.Results()))
	assert.Equal(t, 0, e.SelectedIndex())

	require.NoError(t, e.SetQuery(context.Background(), "zzz"))
	assert.Empty(t, e.Results())
	assert.Equal(t, NoSelection, e.SelectedIndex())
}

func TestEngineTieBreakByStoreOrder(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("x", "x1", "x2"))
	_, _ = s.Add(section("y", "y1"))

	// Reversed output with equal scores must come back in store order.
	reversed := MatcherFunc(func(_ context.Context, _ string, c []CommandItem, _ []Field) ([]MatchResult, error) {
		out := make([]MatchResult, 0, len(c))
		for i := len(c) - 1; i >= 0; i-- {
			out = append(out, MatchResult{Item: c[i], Score: 5})
		}
		return out, nil
	})
	e := NewEngine(s, reversed)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), "q"))
	assert.Equal(t, []string{"x1", "x2", "y1"}, resultIDs(e.Results()))
}

func TestEngineDropsForeignResults(t *testing.T) {
	foreign := MatcherFunc(func(_ context.Context, _ string, c []CommandItem, _ []Field) ([]MatchResult, error) {
		return []MatchResult{{Item: CommandItem{ID: "ghost"}, Score: 99}, {Item: c[0], Score: 1}}, nil
	})
	e := NewEngine(alphaBetaStore(t), foreign)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), "q"))
	assert.Equal(t, []string{"a1"}, resultIDs(e.Results()))
}

func TestEngineWraparound(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("s", "one", "two", "three", "four"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	e.MoveSelection(Up)
	assert.Equal(t, 3, e.SelectedIndex())
	e.MoveSelection(Down)
	assert.Equal(t, 0, e.SelectedIndex())

	for start := 0; start < 4; start++ {
		for i := 0; i < 4; i++ {
			e.MoveSelection(Down)
		}
		assert.Equal(t, start, e.SelectedIndex())
		e.MoveSelection(Down)
	}
}

func TestEngineMoveOnEmptyIsNoop(t *testing.T) {
	e := NewEngine(NewStore(), substringMatcher)
	defer e.Close()

	events := 0
	e.OnSelectionChanged(func(SelectionEvent) { events++ })

	e.MoveSelection(Down)
	e.MoveSelection(Up)
	assert.Equal(t, NoSelection, e.SelectedIndex())
	assert.Zero(t, events)
	assert.False(t, e.ConfirmSelection())
}

func TestEngineActivateByIdentity(t *testing.T) {
	e := NewEngine(alphaBetaStore(t), substringMatcher)
	defer e.Close()

	var got []string
	e.OnExecute(func(ev ExecuteEvent) { got = append(got, ev.ID) })

	before := e.State()
	assert.False(t, e.ActivateByIdentity("zzz"))
	assert.Empty(t, got)
	assert.Equal(t, before, e.State())

	assert.True(t, e.ActivateByIdentity("b1"))
	assert.Equal(t, []string{"b1"}, got)
	assert.Equal(t, 0, e.SelectedIndex())

	// Filtered out items are not activatable.
	require.NoError(t, e.SetQuery(context.Background(), "alp"))
	assert.False(t, e.ActivateByIdentity("b1"))
	assert.Equal(t, []string{"b1"}, got)
}

type mapRegistry map[string]CommandItem

func (r mapRegistry) Lookup(id string) (CommandItem, bool) {
	item, ok := r[id]
	return item, ok
}

func TestEngineRegistryGuardsExecute(t *testing.T) {
	reg := mapRegistry{"a1": {ID: "a1"}}
	e := NewEngine(alphaBetaStore(t), substringMatcher, WithRegistry(reg))
	defer e.Close()

	var got []string
	e.OnExecute(func(ev ExecuteEvent) { got = append(got, ev.ID) })

	assert.True(t, e.ConfirmSelection())
	e.MoveSelection(Down)
	assert.False(t, e.ConfirmSelection())
	assert.False(t, e.ActivateByIdentity("b1"))
	assert.Equal(t, []string{"a1"}, got)
}

func TestEngineExecuteCarriesArgs(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(Section{ID: "foo", Items: []CommandItem{{ID: "demo:foobar:foo", Title: "Foo", Args: []string{"a", "b", "c"}}}})
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	var got ExecuteEvent
	e.OnExecute(func(ev ExecuteEvent) { got = ev })
	require.True(t, e.ConfirmSelection())
	assert.Equal(t, []string{"a", "b", "c"}, got.Args)
}

// memoMatcher answers each query with the items it saw the first time, like
// a result cache keyed on matched text only.
type memoMatcher struct {
	mu   sync.Mutex
	seen map[string][]MatchResult
}

func (m *memoMatcher) Match(ctx context.Context, query string, candidates []CommandItem, fields []Field) ([]MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.seen[query]; ok {
		return cloneResults(r), nil
	}
	r, err := substringMatcher(ctx, query, candidates, fields)
	if m.seen == nil {
		m.seen = make(map[string][]MatchResult)
	}
	m.seen[query] = cloneResults(r)
	return r, err
}

func TestEngineReloadServesCurrentItems(t *testing.T) {
	s := NewStore()
	h, _ := s.Add(Section{ID: "x", Items: []CommandItem{{ID: "x", Title: "Alpha", Args: "old", Shortcut: "F1"}}})
	e := NewEngine(s, &memoMatcher{})
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), "al"))
	h.Dispose()
	_, err := s.Add(Section{ID: "x", Items: []CommandItem{{ID: "x", Title: "Alpha", Args: "new", Shortcut: "F2"}}})
	require.NoError(t, err)
	require.NoError(t, e.SetQuery(context.Background(), "al"))

	assert.Equal(t, s.Flatten(), []CommandItem{mustSelected(t, e).Item})

	var got []ExecuteEvent
	e.OnExecute(func(ev ExecuteEvent) { got = append(got, ev) })
	require.True(t, e.ConfirmSelection())
	assert.Equal(t, []ExecuteEvent{{ID: "x", Args: "new"}}, got)
}

func TestEngineSectionRemovalClampsSelection(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("a", "a1", "a2"))
	hb, _ := s.Add(section("b", "b1", "b2"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	e.MoveSelection(Down)
	e.MoveSelection(Down)
	e.MoveSelection(Down)
	require.Equal(t, 3, e.SelectedIndex())

	hb.Dispose()
	assert.Equal(t, []string{"a1", "a2"}, resultIDs(e.Results()))
	assert.Equal(t, 0, e.SelectedIndex())
}

func TestEngineSectionRemovalToEmpty(t *testing.T) {
	s := NewStore()
	h, _ := s.Add(section("a", "a1"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	var last SelectionEvent
	e.OnSelectionChanged(func(ev SelectionEvent) { last = ev })

	h.Dispose()
	assert.Empty(t, e.Results())
	assert.Equal(t, NoSelection, e.SelectedIndex())
	assert.Equal(t, NoSelection, last.Selected)
}

func TestEngineSelectionFollowsItemAcrossStoreChanges(t *testing.T) {
	s := NewStore()
	ha, _ := s.Add(section("a", "a1"))
	_, _ = s.Add(section("b", "b1", "b2"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	e.MoveSelection(Down)
	e.MoveSelection(Down)
	require.Equal(t, "b2", mustSelected(t, e).Item.ID)

	ha.Dispose()
	assert.Equal(t, "b2", mustSelected(t, e).Item.ID)

	_, _ = s.Add(section("c", "c1"))
	assert.Equal(t, []string{"b1", "b2", "c1"}, resultIDs(e.Results()))
	assert.Equal(t, "b2", mustSelected(t, e).Item.ID)
}

func TestEngineStoreChangeRefiltersQuery(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("a", "apple", "banana"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), "an"))
	assert.Equal(t, []string{"banana"}, resultIDs(e.Results()))

	_, _ = s.Add(section("b", "mango", "kiwi"))
	assert.Equal(t, []string{"mango", "banana"}, resultIDs(e.Results()))
	assert.Equal(t, "an", e.Query())
}

func mustSelected(t *testing.T, e *Engine) MatchResult {
	t.Helper()
	r, ok := e.Selected()
	require.True(t, ok)
	return r
}

func TestEngineMatcherFailureKeepsState(t *testing.T) {
	fail := false
	m := MatcherFunc(func(ctx context.Context, q string, c []CommandItem, f []Field) ([]MatchResult, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return substringMatcher(ctx, q, c, f)
	})
	s := NewStore()
	_, _ = s.Add(section("a", "ab", "abc", "abcd"))
	e := NewEngine(s, m)
	defer e.Close()

	require.NoError(t, e.SetQuery(context.Background(), "ab"))
	e.MoveSelection(Down)
	before := e.Results()

	fail = true
	err := e.SetQuery(context.Background(), "abc")
	var merr *MatcherError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "abc", merr.Query)

	assert.Equal(t, before, e.Results())
	assert.Equal(t, 1, e.SelectedIndex())
}

func TestEngineLastQueryWins(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("s", "alpha", "alps", "beta"))
	m := newGatedMatcher("al", "alp")
	e := NewEngine(s, m)
	defer e.Close()

	first := e.SetQueryAsync(context.Background(), "al")
	<-m.calls
	second := e.SetQueryAsync(context.Background(), "alp")
	<-m.calls

	// The newer query resolves first, the older one afterwards.
	m.release("alp")
	require.NoError(t, <-second)
	m.release("al")
	assert.ErrorIs(t, <-first, ErrStaleQuery)

	assert.Equal(t, "alp", e.Query())
	assert.Equal(t, []string{"alps", "alpha"}, resultIDs(e.Results()))
}

func TestEngineStoreChangeSupersedesPendingQuery(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("s", "alpha"))
	m := newGatedMatcher()
	m.gates["al"] = make(chan struct{})
	e := NewEngine(s, m)
	defer e.Close()

	pending := e.SetQueryAsync(context.Background(), "al")
	<-m.calls

	// The store change re-runs "al" on the calling goroutine; let it through.
	done := make(chan struct{})
	go func() {
		_, _ = s.Add(section("t", "altitude"))
		close(done)
	}()
	<-m.calls
	m.release("al")
	<-done

	assert.ErrorIs(t, <-pending, ErrStaleQuery)
	assert.Equal(t, []string{"alpha", "altitude"}, resultIDs(e.Results()))
}

func TestEngineSelectionEvents(t *testing.T) {
	e := NewEngine(alphaBetaStore(t), substringMatcher)
	defer e.Close()

	var events []SelectionEvent
	cancel := e.OnSelectionChanged(func(ev SelectionEvent) { events = append(events, ev) })

	e.MoveSelection(Down)
	require.NoError(t, e.SetQuery(context.Background(), "beta"))
	cancel()
	e.MoveSelection(Down)

	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Selected)
	assert.Equal(t, []string{"a1", "b1"}, resultIDs(events[0].Results))
	assert.Equal(t, 0, events[1].Selected)
	assert.Equal(t, []string{"b1"}, resultIDs(events[1].Results))
}

func TestEngineHandleKey(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(section("s", "one", "two", "three"))
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	var executed []string
	e.OnExecute(func(ev ExecuteEvent) { executed = append(executed, ev.ID) })

	tests := []struct {
		name     string
		event    key.Event
		consumed bool
		selected int
	}{
		{"down", key.NewSpecialEvent(key.KeyDown, key.ModNone), true, 1},
		{"shift down", key.NewSpecialEvent(key.KeyDown, key.ModShift), true, 2},
		{"ctrl down", key.NewSpecialEvent(key.KeyDown, key.ModCtrl), false, 2},
		{"alt up", key.NewSpecialEvent(key.KeyUp, key.ModAlt), false, 2},
		{"meta up", key.NewSpecialEvent(key.KeyUp, key.ModMeta), false, 2},
		{"up", key.NewSpecialEvent(key.KeyUp, key.ModNone), true, 1},
		{"rune", key.NewRuneEvent('x', key.ModNone), false, 1},
		{"left", key.NewSpecialEvent(key.KeyLeft, key.ModNone), false, 1},
		{"ctrl enter", key.NewSpecialEvent(key.KeyEnter, key.ModCtrl), false, 1},
		{"enter", key.NewSpecialEvent(key.KeyEnter, key.ModNone), true, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.consumed, e.HandleKey(tt.event), tt.name)
		assert.Equal(t, tt.selected, e.SelectedIndex(), tt.name)
	}
	assert.Equal(t, []string{"two"}, executed)
}

func TestEngineHandleKeyOwnsArrowsWhenEmpty(t *testing.T) {
	e := NewEngine(NewStore(), substringMatcher)
	defer e.Close()

	assert.True(t, e.HandleKey(key.NewSpecialEvent(key.KeyDown, key.ModNone)))
	assert.True(t, e.HandleKey(key.NewSpecialEvent(key.KeyEnter, key.ModNone)))
	assert.Equal(t, NoSelection, e.SelectedIndex())
}

func TestEngineCloseDetachesFromStore(t *testing.T) {
	s := NewStore()
	e := NewEngine(s, substringMatcher)
	e.Close()
	e.Close()

	_, _ = s.Add(section("a", "a1"))
	assert.Empty(t, e.Results())
}

func TestEngineConcurrentUse(t *testing.T) {
	s := NewStore()
	e := NewEngine(s, substringMatcher)
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h, err := s.Add(section(string(rune('a'+i))+"-"+string(rune('a'+j%26))+string(rune('0'+j/26)), "x", "xy"))
				if err == nil && j%2 == 0 {
					h.Dispose()
				}
				_ = e.SetQuery(ctx, []string{"", "x", "xy"}[j%3])
				e.MoveSelection(Direction(j % 2))
				e.ConfirmSelection()
			}
		}(i)
	}
	wg.Wait()

	st := e.State()
	if len(st.Results) == 0 {
		assert.Equal(t, NoSelection, st.Selected)
	} else {
		assert.GreaterOrEqual(t, st.Selected, 0)
		assert.Less(t, st.Selected, len(st.Results))
	}
}
