package script

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// call is one unit of work for the executor goroutine.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// executor owns an LState and runs every operation on it from a single
// goroutine. gopher-lua states are not safe for concurrent use.
type executor struct {
	L      *lua.LState
	queue  chan *call
	closed atomic.Bool
	done   chan struct{}
	exited chan struct{}

	closeOnce sync.Once
}

func newExecutor(L *lua.LState, queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &executor{
		L:      L,
		queue:  make(chan *call, queueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// run processes queued calls until close is called.
func (e *executor) run() {
	defer close(e.exited)
	for {
		select {
		case <-e.done:
			e.drain()
			return
		case c := <-e.queue:
			c.result <- e.invoke(c)
		}
	}
}

// invoke runs c with panic recovery so one bad chunk cannot kill the
// goroutine that owns the state.
func (e *executor) invoke(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return c.fn(e.L)
}

// drain fails every call still queued after close.
func (e *executor) drain() {
	for {
		select {
		case c := <-e.queue:
			c.result <- ErrClosed
		default:
			return
		}
	}
}

// execute queues fn and waits for it to finish or for ctx to end.
// A call abandoned by ctx still runs; its result is discarded.
func (e *executor) execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.result:
		return err
	case <-e.exited:
		select {
		case err := <-c.result:
			return err
		default:
			return ErrClosed
		}
	}
}

// close stops the goroutine and waits for it to exit.
func (e *executor) close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
	<-e.exited
}
