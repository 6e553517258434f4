package lua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/script"
)

// State wraps gopher-lua with the sandbox and error handling scripts run
// under.
//
// gopher-lua's LState is not goroutine-safe. The mutex serialises calls
// made through State; code that needs the raw LState from several
// goroutines must go through an Executor.
type State struct {
	L *lua.LState

	mu sync.Mutex

	executionTimeout time.Duration
	capabilities     []Capability
	out              io.Writer

	sandbox *Sandbox
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds each DoCode and Call. Zero means no bound.
// The VM checks the deadline between instructions, so a script blocked
// inside a host callable overruns until the callable returns.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithCapabilities grants capabilities to the new state.
func WithCapabilities(caps ...Capability) StateOption {
	return func(s *State) {
		s.capabilities = append(s.capabilities, caps...)
	}
}

// WithOutput sets where print writes.
func WithOutput(w io.Writer) StateOption {
	return func(s *State) {
		s.out = w
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // We'll open selectively
	})
	state.L = L

	openSafeLibraries(L)
	registerErrorType(L)

	state.sandbox = NewSandbox(L, state.out)
	state.sandbox.Install()
	for _, c := range state.capabilities {
		state.sandbox.Grant(c)
	}

	return state, nil
}

// openSafeLibraries opens the libraries every script gets. io, os and
// debug are opened by the sandbox and exposed according to capabilities.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoCode compiles and runs cs, returning every value the chunk returned.
func (s *State) DoCode(ctx context.Context, cs *script.CodeSource) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	fn, err := Compile(s.L, cs)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, cs.Name, fn)
}

// call runs fn with the state's context set. The caller holds s.mu, or
// owns the state exclusively through an Executor.
func (s *State) call(ctx context.Context, name string, fn lua.LValue, args ...lua.LValue) (results []lua.LValue, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.executionTimeout)
		defer cancel()
	}
	// os.exit cancels this context so the VM stops even inside pcall.
	ctx, halt := context.WithCancel(ctx)
	defer halt()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	s.sandbox.beginCall(halt)
	defer func() {
		if exit := s.sandbox.endCall(); exit != nil {
			results, err = nil, exit
		}
	}()

	stackTop := s.L.GetTop()
	defer func() {
		if r := recover(); r != nil {
			s.L.SetTop(stackTop)
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}

	if callErr := s.L.PCall(len(args), lua.MultRet, nil); callErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) && s.executionTimeout > 0 {
				return nil, ErrExecutionTimeout
			}
			return nil, ctxErr
		}
		return nil, translateError(name, callErr)
	}

	nRet := s.L.GetTop() - stackTop
	results = make([]lua.LValue, 0, max(nRet, 0))
	for i := 1; i <= nRet; i++ {
		results = append(results, s.L.Get(stackTop+i))
	}
	if nRet > 0 {
		s.L.Pop(nRet)
	}
	return results, nil
}

// SetGlobal sets a global variable. It does nothing once the state is
// closed.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// Sandbox returns the sandbox for capability management.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// Close releases all resources associated with the Lua state.
// After Close is called, all other methods will return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
