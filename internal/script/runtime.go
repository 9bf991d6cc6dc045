package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/cmdpalette/internal/command"
)

// DefaultTimeout bounds a single chunk execution.
const DefaultTimeout = 5 * time.Second

var (
	// ErrClosed is returned when using a closed Runtime.
	ErrClosed = errors.New("lua runtime is closed")
)

// Error reports a failure compiling or running a Lua action.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lua %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Runtime runs Lua command actions in a single sandboxed state.
// It is safe for concurrent use; calls are serialized.
type Runtime struct {
	exec    *executor
	log     logr.Logger
	timeout time.Duration

	closeOnce sync.Once
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger that receives Lua print output.
func WithLogger(log logr.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// WithTimeout bounds each chunk execution. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.timeout = d }
}

// New creates a Runtime and starts its executor goroutine.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		log:     logr.Discard(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		r.log.Info("lua print", "text", strings.Join(printArgs(L), "\t"))
		return 0
	}))

	r.exec = newExecutor(L, 0)
	go r.exec.run()
	return r
}

// openSafeLibraries opens base, table, string and math, then removes the
// base functions that load code from disk or strings.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Compile parses src without running it.
func Compile(name, src string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	return proto, nil
}

// Eval runs proto with the globals id and args set, and returns the chunk's
// first return value converted to Go.
func (r *Runtime) Eval(ctx context.Context, id string, proto *lua.FunctionProto, args any) (any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var result any
	err := r.exec.execute(ctx, func(L *lua.LState) error {
		L.SetContext(ctx)
		defer L.RemoveContext()

		L.SetGlobal("id", lua.LString(id))
		L.SetGlobal("args", toLua(L, args))
		defer func() {
			L.SetGlobal("id", lua.LNil)
			L.SetGlobal("args", lua.LNil)
		}()

		top := L.GetTop()
		L.Push(L.NewFunctionFromProto(proto))
		if err := L.PCall(0, 1, nil); err != nil {
			L.SetTop(top)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		result = fromLua(L.Get(-1))
		L.SetTop(top)
		return nil
	})
	if err != nil {
		return nil, &Error{Name: id, Err: err}
	}
	return result, nil
}

// EvalString compiles and runs src. See Eval.
func (r *Runtime) EvalString(ctx context.Context, id, src string, args any) (any, error) {
	proto, err := Compile(id, src)
	if err != nil {
		return nil, err
	}
	return r.Eval(ctx, id, proto, args)
}

// Handler compiles src once and returns a command handler that runs it.
// Compile errors are reported here rather than at execution.
func (r *Runtime) Handler(id, src string) (command.Handler, error) {
	proto, err := Compile(id, src)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args any) error {
		_, err := r.Eval(ctx, id, proto, args)
		if err != nil {
			r.log.Error(err, "lua action failed", "id", id)
		}
		return err
	}, nil
}

// Close stops the executor and releases the Lua state. Calls made after
// Close return ErrClosed.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.exec.close()
		r.exec.L.Close()
	})
}
