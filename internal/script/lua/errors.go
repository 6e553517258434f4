package lua

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when the configured execution timeout
	// expires.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrExecutorClosed is returned when attempting to use a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")
)

// ScriptError is a failure raised while a script ran. When the script
// failed because a host callable failed, Err is that callable's error and
// errors.As reaches it through ScriptError.
type ScriptError struct {
	// Err is the underlying failure.
	Err error
	// Trace is the Lua stack trace, if one was captured.
	Trace string
}

func (e *ScriptError) Error() string {
	return e.Err.Error()
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// CompileError reports a chunk that failed to parse or compile.
type CompileError struct {
	// Name is the chunk name.
	Name string
	// Err is a *parse.Error for syntax errors.
	Err error
}

func (e *CompileError) Error() string {
	return strings.TrimSpace(e.Err.Error())
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Incomplete reports whether the chunk failed only because input ended
// early, e.g. an unclosed block or string.
func (e *CompileError) Incomplete() bool {
	var pe *parse.Error
	return errors.As(e.Err, &pe) && pe.Pos.Line == parse.EOF
}

// RuntimeError wraps a failure returned by a bridged host callable.
type RuntimeError struct {
	// Closure describes the callable that failed.
	Closure string
	// Err is the callable's error.
	Err error
}

func (e *RuntimeError) Error() string {
	return e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// LoadError is the runtime's error for a module reference the resource
// loader could not express as a location.
type LoadError struct {
	// Name is the module name passed to require.
	Name string
	// Err is the loader's error.
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load module %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// CapabilityError is returned when a capability is not granted.
type CapabilityError struct {
	Capability Capability
}

func (e *CapabilityError) Error() string {
	return "capability not granted: " + string(e.Capability)
}

// errorTypeName names the metatable of Go errors raised inside Lua.
const errorTypeName = "luabuild.error"

// registerErrorType installs the metatable used for error values so that
// tostring on a caught error shows its message.
func registerErrorType(L *lua.LState) {
	mt := L.NewTypeMetatable(errorTypeName)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		L.Push(lua.LString("error"))
		return 1
	}))
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"message": func(L *lua.LState) int {
			ud := L.CheckUserData(1)
			if err, ok := ud.Value.(error); ok {
				L.Push(lua.LString(err.Error()))
				return 1
			}
			L.Push(lua.LNil)
			return 1
		},
	}))
}

// newErrorValue wraps err as a Lua userdata carrying the Go error.
func newErrorValue(L *lua.LState, err error) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = err
	L.SetMetatable(ud, L.GetTypeMetatable(errorTypeName))
	return ud
}

// raiseError raises err inside Lua so that it survives the round trip back
// to Go with its identity intact. It does not return.
func raiseError(L *lua.LState, err error) {
	L.Error(newErrorValue(L, err), 1)
}

// errorFromValue returns the Go error carried by lv, if any.
func errorFromValue(lv lua.LValue) (error, bool) {
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	err, ok := ud.Value.(error)
	return err, ok
}

// translateError converts gopher-lua failures into this package's error
// types. Errors that did not come from the VM pass through unchanged.
func translateError(name string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Type == lua.ApiErrorSyntax && apiErr.Cause != nil {
		return &CompileError{Name: name, Err: apiErr.Cause}
	}
	if goErr, ok := errorFromValue(apiErr.Object); ok {
		return &ScriptError{Err: goErr, Trace: apiErr.StackTrace}
	}
	if apiErr.Cause != nil {
		return &ScriptError{Err: apiErr.Cause, Trace: apiErr.StackTrace}
	}

	msg := "<nil>"
	if apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	return &ScriptError{Err: errors.New(msg), Trace: apiErr.StackTrace}
}
