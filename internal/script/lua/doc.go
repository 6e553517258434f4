// Package lua runs luabuild scripts on gopher-lua.
//
// This package provides:
//   - Sandboxed Lua state management
//   - Go-Lua value conversion, including host callables and errors
//   - Module lookup through the host's resource loader
//   - One-shot script execution and persistent interactive sessions
//
// # State
//
// A State is a sandboxed LState:
//
//	state, err := lua.NewState(
//	    lua.WithExecutionTimeout(30 * time.Second),
//	    lua.WithCapabilities(lua.CapabilityFileRead),
//	)
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	results, err := state.DoCode(ctx, cs)
//
// # Sandbox
//
// The Sandbox restricts scripts by:
//   - Removing dofile, loadfile, load and loadstring
//   - Exposing io, os and debug only as far as capabilities allow
//   - Routing os.exit through the process-exit guard
//   - Writing print output to a configurable writer
//
// # Errors
//
// A host callable that fails inside a script raises its Go error as a Lua
// value. If the script does not catch it, the host receives a *ScriptError
// that unwraps to the original error:
//
//	_, err := exec.Execute(ctx, src, ns, loader, bindings)
//	var be *goal.BuildError
//	if errors.As(err, &be) {
//	    // the script called fail(...)
//	}
//
// # Runtime
//
// Runtime ties the pieces together and implements script.Runtime and
// script.SessionOpener.
package lua
