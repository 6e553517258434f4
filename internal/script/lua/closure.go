package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/script"
)

// Closure is a host callable made callable from scripts. It is anchored to
// the namespace it was created for.
type Closure struct {
	owner  *script.Namespace
	target script.ClosureTarget
}

// NewClosure binds target to owner.
func NewClosure(owner *script.Namespace, target script.ClosureTarget) (*Closure, error) {
	if owner == nil {
		return nil, &script.ConfigError{Op: "closure", Msg: "closure owner is nil", Err: script.ErrNilArgument}
	}
	if target == nil {
		return nil, &script.ConfigError{Op: "closure", Msg: "closure target is nil", Err: script.ErrNilArgument}
	}
	return &Closure{owner: owner, target: target}, nil
}

// Owner returns the namespace the closure is anchored to.
func (c *Closure) Owner() *script.Namespace {
	return c.owner
}

// Target returns the wrapped callable.
func (c *Closure) Target() script.ClosureTarget {
	return c.target
}

// Call invokes the target with args unchanged. A target failure is
// returned as a *RuntimeError wrapping it.
func (c *Closure) Call(args []any) (result any, err error) {
	defer func() {
		// guard.Exit unwinds with a panic; the VM would flatten it into a
		// string, so turn it back into an error here.
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !guard.IsExitRequest(e) {
				panic(r)
			}
			result, err = nil, &RuntimeError{Closure: c.String(), Err: e}
		}
	}()

	result, err = c.target.Call(args)
	if err != nil {
		return nil, &RuntimeError{Closure: c.String(), Err: err}
	}
	return result, nil
}

// Function returns a Lua function that converts its arguments with b,
// calls the closure and converts the result back. Failures are raised as
// error values: pcall in the script sees them, and the host gets the
// original error back when the script does not catch it.
func (c *Closure) Function(b *Bridge) *lua.LFunction {
	return b.L.NewFunction(func(L *lua.LState) int {
		nArgs := L.GetTop()
		args := make([]any, nArgs)
		for i := 1; i <= nArgs; i++ {
			args[i-1] = b.ToGoValue(L.Get(i))
		}

		result, err := c.Call(args)
		if err != nil {
			raiseError(L, err)
			return 0
		}
		if result == nil {
			return 0
		}
		L.Push(b.ToLuaValue(result))
		return 1
	})
}

func (c *Closure) String() string {
	return fmt.Sprintf("Closure{owner=%s, target=%v}", c.owner, c.target)
}
