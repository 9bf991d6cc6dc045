package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt := New(opts...)
	t.Cleanup(rt.Close)
	return rt
}

func TestEvalValues(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	tests := []struct {
		name string
		src  string
		args any
		want any
	}{
		{"number", "return 1 + 2", nil, int64(3)},
		{"float", "return 1 / 4", nil, 0.25},
		{"string", `return "a" .. "b"`, nil, "ab"},
		{"bool", "return 1 < 2", nil, true},
		{"nothing", "local x = 1", nil, nil},
		{"args list", "return #args", []string{"a", "b", "c"}, int64(3)},
		{"args any list", "return args[2]", []any{"a", int64(7)}, int64(7)},
		{"args map", "return args.name .. id", map[string]any{"name": "bob"}, "bobargs map"},
		{"args nil", "return args == nil", nil, true},
		{"args int slice", "return #args", []int{1, 2}, int64(2)},
		{"table list", `return {1, "two"}`, nil, []any{int64(1), "two"}},
		{"table map", `return {a = 1, b = {true}}`, nil, map[string]any{"a": int64(1), "b": []any{true}}},
		{"cycle", "local t = {} t.self = t return t", nil, map[string]any{"self": nil}},
		{"string lib", `return string.upper("a")`, nil, "A"},
		{"math lib", "return math.max(3, 9)", nil, int64(9)},
		{"table lib", `local t = {"b", "a"} table.sort(t) return t[1]`, nil, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.EvalString(ctx, tt.name, tt.src, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSandbox(t *testing.T) {
	rt := newRuntime(t)

	for _, name := range []string{"io", "os", "debug", "package", "dofile", "loadfile", "load", "loadstring", "require"} {
		got, err := rt.EvalString(context.Background(), "sandbox", fmt.Sprintf("return %s == nil", name), nil)
		require.NoError(t, err)
		assert.Equal(t, true, got, name)
	}
}

func TestGlobalsClearedBetweenCalls(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	_, err := rt.EvalString(ctx, "first", "return id", []string{"x"})
	require.NoError(t, err)

	got, err := rt.EvalString(ctx, "second", "return args", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRuntimeError(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.EvalString(context.Background(), "demo:boom", `error("boom")`, nil)
	require.Error(t, err)

	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "demo:boom", lerr.Name)
	assert.Contains(t, err.Error(), "boom")

	// The state survives a failing chunk.
	got, err := rt.EvalString(context.Background(), "ok", "return 1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestCompileError(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Handler("bad", "return +")
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "bad", lerr.Name)
}

func TestTimeout(t *testing.T) {
	rt := newRuntime(t, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := rt.EvalString(context.Background(), "spin", "while true do end", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The executor is still usable.
	_, err = rt.EvalString(context.Background(), "after", "return 1", nil)
	assert.NoError(t, err)
}

func TestPrintGoesToLogger(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	log := funcr.New(func(prefix, args string) {
		mu.Lock()
		lines = append(lines, args)
		mu.Unlock()
	}, funcr.Options{})

	rt := newRuntime(t, WithLogger(log))
	_, err := rt.EvalString(context.Background(), "p", `print("hello", 1)`, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg"="lua print"`)
	assert.Contains(t, lines[0], "hello")
}

func TestHandler(t *testing.T) {
	rt := newRuntime(t)

	h, err := rt.Handler("demo:foobar:foo", `
		if #args ~= 3 then error("want 3 args") end
		result = id
	`)
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), []any{"a", "b", "c"}))
	assert.Error(t, h(context.Background(), []any{"a"}))

	got, err := rt.EvalString(context.Background(), "check", "return result", nil)
	require.NoError(t, err)
	assert.Equal(t, "demo:foobar:foo", got)
}

func TestClosed(t *testing.T) {
	rt := New()
	rt.Close()
	rt.Close()

	_, err := rt.EvalString(context.Background(), "x", "return 1", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelledContext(t *testing.T) {
	rt := newRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.EvalString(ctx, "x", "return 1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentEval(t *testing.T) {
	rt := newRuntime(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8*20)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := rt.EvalString(context.Background(), "c", "return args[1] * 2", []int{n})
				if err != nil {
					errs <- err
					continue
				}
				if got != int64(n*2) {
					errs <- fmt.Errorf("got %v, want %d", got, n*2)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
