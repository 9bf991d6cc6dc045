package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cmdpalette/internal/palette"
)

func TestArgValidation(t *testing.T) {
	tests := []struct {
		name    string
		arg     Arg
		value   any
		wantErr bool
	}{
		{"string valid", Arg{Name: "text", Type: ArgString}, "hello", false},
		{"string invalid", Arg{Name: "text", Type: ArgString}, 123, true},
		{"number int", Arg{Name: "count", Type: ArgNumber}, 42, false},
		{"number float", Arg{Name: "count", Type: ArgNumber}, 3.14, false},
		{"number invalid", Arg{Name: "count", Type: ArgNumber}, "42", true},
		{"boolean valid", Arg{Name: "on", Type: ArgBoolean}, true, false},
		{"boolean invalid", Arg{Name: "on", Type: ArgBoolean}, "true", true},
		{"enum valid", Arg{Name: "mode", Type: ArgEnum, Options: []string{"a", "b"}}, "b", false},
		{"enum invalid", Arg{Name: "mode", Type: ArgEnum, Options: []string{"a", "b"}}, "c", true},
		{"enum not string", Arg{Name: "mode", Type: ArgEnum, Options: []string{"a"}}, 1, true},
		{"list any", Arg{Name: "xs", Type: ArgList}, []any{"a", 1}, false},
		{"list strings", Arg{Name: "xs", Type: ArgList}, []string{"a"}, false},
		{"list invalid", Arg{Name: "xs", Type: ArgList}, "a", true},
		{"required missing", Arg{Name: "x", Required: true}, nil, true},
		{"optional missing", Arg{Name: "x"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.arg.Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseArgType(t *testing.T) {
	for _, typ := range []ArgType{ArgString, ArgNumber, ArgBoolean, ArgEnum, ArgList} {
		got, err := ParseArgType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseArgType("matrix")
	assert.Error(t, err)
	assert.Equal(t, "unknown", ArgType(99).String())
}

func TestCommandExecuteOpaqueArgs(t *testing.T) {
	var got any
	cmd := &Command{
		ID:    "demo:foobar:foo",
		Title: "Foo",
		Handler: func(_ context.Context, args any) error {
			got = args
			return nil
		},
	}

	args := []string{"a", "b", "c"}
	require.NoError(t, cmd.Execute(context.Background(), args))
	assert.Equal(t, args, got)
}

func TestCommandExecuteParams(t *testing.T) {
	var got map[string]any
	cmd := &Command{
		ID:    "goto",
		Title: "Go to Line",
		Params: []Arg{
			{Name: "line", Type: ArgNumber, Required: true},
			{Name: "select", Type: ArgBoolean, Default: false},
		},
		Handler: func(_ context.Context, args any) error {
			got = args.(map[string]any)
			return nil
		},
	}

	in := map[string]any{"line": 12}
	require.NoError(t, cmd.Execute(context.Background(), in))
	assert.Equal(t, map[string]any{"line": 12, "select": false}, got)
	assert.Equal(t, map[string]any{"line": 12}, in, "caller map must not change")

	err := cmd.Execute(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, `argument "line" is required`)

	err = cmd.Execute(context.Background(), []any{12})
	assert.ErrorContains(t, err, "must be a map")
}

func TestCommandExecuteNoHandler(t *testing.T) {
	cmd := &Command{ID: "x", Title: "X"}
	err := cmd.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestCommandItem(t *testing.T) {
	cmd := &Command{
		ID:       "demo:nes:sumer",
		Title:    "Show Sumer",
		Caption:  "The city-state of Sumer",
		Shortcut: "⌘⎋",
		Args:     "x",
	}
	assert.Equal(t, palette.CommandItem{
		ID:       "demo:nes:sumer",
		Title:    "Show Sumer",
		Caption:  "The city-state of Sumer",
		Shortcut: "⌘⎋",
		Args:     "x",
	}, cmd.Item())
}

func noop(context.Context, any) error { return nil }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register(nil), ErrInvalidCommand)
	assert.ErrorIs(t, r.Register(&Command{Title: "No ID"}), ErrInvalidCommand)
	assert.ErrorIs(t, r.Register(&Command{ID: "x"}), ErrInvalidCommand)

	require.NoError(t, r.Register(&Command{ID: "b", Title: "Bravo", Handler: noop}))
	require.NoError(t, r.Register(&Command{ID: "a", Title: "Alpha", Handler: noop}))
	require.NoError(t, r.Register(&Command{ID: "a2", Title: "Alpha", Handler: noop}))
	assert.Equal(t, 3, r.Len())

	// Same ID replaces.
	require.NoError(t, r.Register(&Command{ID: "b", Title: "Beta", Handler: noop}))
	assert.Equal(t, 3, r.Len())

	item, ok := r.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "Beta", item.Title)

	_, ok = r.Lookup("zzz")
	assert.False(t, ok)

	var titles []string
	for _, it := range r.ListAll() {
		titles = append(titles, it.ID)
	}
	assert.Equal(t, []string{"a", "a2", "b"}, titles)
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry(WithHistorySize(2))
	boom := errors.New("boom")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(&Command{ID: id, Title: id, Handler: noop}))
	}
	require.NoError(t, r.Register(&Command{ID: "fail", Title: "Fail", Handler: func(context.Context, any) error {
		return boom
	}}))

	err := r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	assert.ErrorIs(t, r.Execute(context.Background(), "fail", nil), boom)
	assert.Zero(t, r.History().Len())

	require.NoError(t, r.Execute(context.Background(), "a", nil))
	require.NoError(t, r.Execute(context.Background(), "b", nil))
	require.NoError(t, r.Execute(context.Background(), "c", nil))
	assert.Equal(t, []string{"c", "b"}, r.History().Recent(0))
}

func TestRegistryExecutePassesContext(t *testing.T) {
	type key struct{}
	r := NewRegistry()
	var got any
	require.NoError(t, r.Register(&Command{ID: "ctx", Title: "Ctx", Handler: func(ctx context.Context, _ any) error {
		got = ctx.Value(key{})
		return nil
	}}))

	ctx := context.WithValue(context.Background(), key{}, "v")
	require.NoError(t, r.Execute(ctx, "ctx", nil))
	assert.Equal(t, "v", got)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Command{ID: "a", Title: "A", Handler: noop, Source: "f.yaml"}))
	require.NoError(t, r.Register(&Command{ID: "b", Title: "B", Handler: noop, Source: "f.yaml"}))
	require.NoError(t, r.Register(&Command{ID: "c", Title: "C", Handler: noop}))
	require.NoError(t, r.Execute(context.Background(), "a", nil))

	var changed []string
	r.OnChange(func(id string) { changed = append(changed, id) })

	assert.Equal(t, 2, r.UnregisterBySource("f.yaml"))
	assert.Equal(t, []string{"a", "b"}, changed)
	assert.Zero(t, r.History().Len())

	assert.True(t, r.Unregister("c"))
	assert.False(t, r.Unregister("c"))
	assert.Zero(t, r.Len())
}

func TestBoostRecent(t *testing.T) {
	r := NewRegistry()
	store := palette.NewStore()
	var items []palette.CommandItem
	for _, id := range []string{"apple", "apricot", "grape"} {
		require.NoError(t, r.Register(&Command{ID: id, Title: id, Handler: noop}))
		item, _ := r.Lookup(id)
		items = append(items, item)
	}
	_, err := store.Add(palette.Section{ID: "fruit", Heading: "Fruit", Items: items})
	require.NoError(t, err)

	// Every match scores the same, so candidate order decides.
	flat := palette.MatcherFunc(func(_ context.Context, query string, candidates []palette.CommandItem, _ []palette.Field) ([]palette.MatchResult, error) {
		var out []palette.MatchResult
		for _, c := range candidates {
			if strings.Contains(c.Title, query) {
				out = append(out, palette.MatchResult{Item: c, Score: 10})
			}
		}
		return out, nil
	})
	e := palette.NewEngine(store, r.BoostRecent(flat), palette.WithRegistry(r))
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.SetQuery(ctx, "ap"))
	assert.Equal(t, []string{"apple", "apricot", "grape"}, resultIDs(e.Results()))

	require.NoError(t, r.Execute(ctx, "apricot", nil))
	require.NoError(t, e.SetQuery(ctx, "ap"))
	assert.Equal(t, []string{"apricot", "apple", "grape"}, resultIDs(e.Results()))
	assert.Equal(t, 110, e.Results()[0].Score)

	require.NoError(t, r.Execute(ctx, "grape", nil))
	require.NoError(t, e.SetQuery(ctx, "ap"))
	assert.Equal(t, []string{"grape", "apricot", "apple"}, resultIDs(e.Results()))

	// The empty query keeps section order.
	require.NoError(t, e.SetQuery(ctx, ""))
	assert.Equal(t, []string{"apple", "apricot", "grape"}, resultIDs(e.Results()))
}

func resultIDs(results []palette.MatchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Item.ID
	}
	return ids
}

func TestRegistryGuardsEngine(t *testing.T) {
	var _ palette.Registry = NewRegistry()
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("c%d-%d", n, j)
				_ = r.Register(&Command{ID: id, Title: id, Handler: noop})
				_ = r.Execute(context.Background(), id, nil)
				_ = r.ListAll()
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	h.Add("a")
	h.Add("b")
	h.Add("a")
	assert.Equal(t, []string{"a", "b"}, h.Recent(0))
	assert.Equal(t, 1, h.Position("b"))
	assert.Equal(t, -1, h.Position("z"))

	h.Add("c")
	h.Add("d")
	assert.Equal(t, []string{"d", "c", "a"}, h.Recent(10))
	assert.Equal(t, []string{"d"}, h.Recent(1))

	assert.True(t, h.Remove("c"))
	assert.False(t, h.Remove("c"))
	h.Clear()
	assert.Zero(t, h.Len())
}
