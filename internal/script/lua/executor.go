package lua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// luaCall is one unit of work for the executor goroutine.
type luaCall struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Executor serializes all Lua operations through a single goroutine.
//
// Interactive surfaces evaluate input from their UI goroutine while the
// state must only ever be touched from one goroutine. The Executor owns
// that goroutine: Start launches it, Execute marshals work onto it, and
// Close stops it and waits until it has exited, after which the caller may
// close the state.
//
//	exec := NewExecutor(L, 0)
//	exec.Start()
//	defer exec.Close()
//
//	err := exec.Execute(ctx, func(L *lua.LState) error {
//	    return L.DoString("x = 1")
//	})
type Executor struct {
	L     *lua.LState
	queue chan *luaCall

	closed    atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewExecutor creates a new Executor for the given Lua state.
// The queue size determines how many operations can be buffered.
func NewExecutor(L *lua.LState, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Executor{
		L:       L,
		queue:   make(chan *luaCall, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it again has no effect.
func (e *Executor) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

func (e *Executor) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.done:
			e.drainQueue(ErrExecutorClosed)
			return
		case call := <-e.queue:
			call.result <- e.executeCall(call)
			close(call.result)
		}
	}
}

// executeCall runs a single Lua operation with panic recovery.
func (e *Executor) executeCall(call *luaCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if v, ok := r.(error); ok {
				err = v
				return
			}
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return call.fn(e.L)
}

// drainQueue fails every call still queued.
func (e *Executor) drainQueue(err error) {
	for {
		select {
		case call := <-e.queue:
			call.result <- err
			close(call.result)
		default:
			return
		}
	}
}

// Execute runs fn on the executor goroutine and waits for it.
//
// If ctx is cancelled while fn is running, Execute returns ctx.Err()
// without waiting; fn should observe the same ctx (for example through
// LState.SetContext) so it stops soon after.
func (e *Executor) Execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &luaCall{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-call.result:
		if !ok {
			return ErrExecutorClosed
		}
		return err
	case <-e.stopped:
		// The worker sends every result before it stops, so a result
		// that is not buffered now will never arrive.
		select {
		case err, ok := <-call.result:
			if ok {
				return err
			}
		default:
		}
		return ErrExecutorClosed
	}
}

// Close stops the executor. Queued calls fail with ErrExecutorClosed. If
// the worker was started, Close waits for the call in progress to finish.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})

	started := true
	e.startOnce.Do(func() {
		started = false
		e.drainQueue(ErrExecutorClosed)
		close(e.stopped)
	})
	if started {
		<-e.stopped
	}
}
