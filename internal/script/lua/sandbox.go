package lua

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/guard"
)

// Sandbox restricts Lua execution to safe operations.
//
// The full io, os and debug libraries are opened once and kept out of
// reach; the globals scripts see are views over them sized to the granted
// capabilities. os.exit never terminates the host directly: it goes
// through the process-exit guard and halts the running chunk, so pcall
// cannot swallow it.
type Sandbox struct {
	L *lua.LState

	capabilities map[Capability]bool
	out          io.Writer

	// exit is the first exit request made during the current call; halt
	// cancels that call's context.
	exit *guard.ExitError
	halt context.CancelFunc

	osLib    *lua.LTable
	ioLib    *lua.LTable
	debugLib *lua.LTable
}

// Capability represents a permission that can be granted to scripts.
type Capability string

// Available capabilities.
const (
	CapabilityFileRead  Capability = "filesystem.read"
	CapabilityFileWrite Capability = "filesystem.write"
	CapabilityEnv       Capability = "env"
	CapabilityProcess   Capability = "process.spawn"
	CapabilityUnsafe    Capability = "unsafe" // Full Lua stdlib access
)

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityFileRead,
		CapabilityFileWrite,
		CapabilityEnv,
		CapabilityProcess,
		CapabilityUnsafe,
	}
}

// ParseCapability looks up a capability by name.
func ParseCapability(name string) (Capability, error) {
	for _, c := range AllCapabilities() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", name)
}

// NewSandbox creates a sandbox for L. Script output goes to out; nil means
// the process's standard output at the time of each print.
func NewSandbox(L *lua.LState, out io.Writer) *Sandbox {
	return &Sandbox{
		L:            L,
		capabilities: make(map[Capability]bool),
		out:          out,
		osLib:        openLib(L, lua.OpenOs, lua.OsLibName),
		ioLib:        openLib(L, lua.OpenIo, lua.IoLibName),
		debugLib:     openLib(L, lua.OpenDebug, lua.DebugLibName),
	}
}

// openLib opens a standard library the way lua.OpenLibs does and returns
// its module table.
func openLib(L *lua.LState, open lua.LGFunction, name string) *lua.LTable {
	L.Push(L.NewFunction(open))
	L.Push(lua.LString(name))
	L.Call(1, 1)
	mod, _ := L.Get(-1).(*lua.LTable)
	L.Pop(1)
	return mod
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.L.SetGlobal("print", s.L.NewFunction(s.print))
	s.installRequire()
	s.refresh()
}

func (s *Sandbox) print(L *lua.LState) int {
	out := s.out
	if out == nil {
		out = os.Stdout
	}

	top := L.GetTop()
	parts := make([]string, top)
	for i := 1; i <= top; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(out, strings.Join(parts, "\t"))
	return 0
}

// installRequire clears the file-system searcher and gates the
// capability-bound standard modules. Other names fall through to the
// preload searcher and any searchers installed later.
func (s *Sandbox) installRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))

		if loaders, ok := s.L.GetField(pkg, "loaders").(*lua.LTable); ok {
			// Keep only the preload searcher
			for i := loaders.Len(); i > 1; i-- {
				loaders.RawSetInt(i, lua.LNil)
			}
		}
	}

	originalRequire := s.L.GetGlobal("require")

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)

		switch modName {
		case "io":
			if err := s.CheckCapability(CapabilityFileRead); err != nil && !s.HasCapability(CapabilityFileWrite) {
				raiseError(L, err)
			}
		case "debug":
			if err := s.CheckCapability(CapabilityUnsafe); err != nil {
				raiseError(L, err)
			}
		}

		L.Push(originalRequire)
		L.Push(lua.LString(modName))
		L.Call(1, 1)
		return 1
	}))
}

// refresh rebuilds the io, os and debug globals for the current
// capabilities.
func (s *Sandbox) refresh() {
	s.expose(lua.OsLibName, s.osView())
	s.expose(lua.IoLibName, s.ioView())
	if s.HasCapability(CapabilityUnsafe) {
		s.expose(lua.DebugLibName, s.debugLib)
	} else {
		s.expose(lua.DebugLibName, nil)
	}
}

func (s *Sandbox) expose(name string, mod *lua.LTable) {
	var lv lua.LValue = lua.LNil
	if mod != nil {
		lv = mod
	}
	s.L.SetGlobal(name, lv)
	if loaded, ok := s.L.GetField(s.L.Get(lua.RegistryIndex), "_LOADED").(*lua.LTable); ok {
		loaded.RawSetString(name, lv)
	}
}

func (s *Sandbox) osView() *lua.LTable {
	names := []string{"clock", "date", "difftime", "time"}
	if s.HasCapability(CapabilityEnv) {
		names = append(names, "getenv")
	}
	if s.HasCapability(CapabilityFileWrite) {
		names = append(names, "remove", "rename", "tmpname")
	}
	if s.HasCapability(CapabilityProcess) {
		names = append(names, "execute")
	}
	if s.HasCapability(CapabilityUnsafe) {
		names = append(names, "getenv", "setenv", "setlocale", "remove", "rename", "tmpname", "execute")
	}

	view := s.copyFields(s.osLib, names)
	view.RawSetString("exit", s.L.NewFunction(s.osExit))
	return view
}

func (s *Sandbox) ioView() *lua.LTable {
	switch {
	case s.HasCapability(CapabilityUnsafe):
		return s.ioLib
	case s.HasCapability(CapabilityFileWrite):
		names := []string{"close", "flush", "input", "lines", "open", "output", "read", "tmpfile", "type", "write"}
		if s.HasCapability(CapabilityProcess) {
			names = append(names, "popen")
		}
		return s.copyFields(s.ioLib, names)
	case s.HasCapability(CapabilityFileRead):
		view := s.copyFields(s.ioLib, []string{"close", "lines", "read", "type"})
		realOpen := s.ioLib.RawGetString("open")
		view.RawSetString("open", s.L.NewFunction(func(L *lua.LState) int {
			filename := L.CheckString(1)
			mode := L.OptString(2, "r")
			if mode != "r" && mode != "rb" {
				L.ArgError(2, "only read modes (r, rb) are allowed")
				return 0
			}
			top := L.GetTop()
			L.Push(realOpen)
			L.Push(lua.LString(filename))
			L.Push(lua.LString(mode))
			L.Call(2, lua.MultRet)
			return L.GetTop() - top
		}))
		return view
	default:
		return nil
	}
}

func (s *Sandbox) copyFields(src *lua.LTable, names []string) *lua.LTable {
	dst := s.L.NewTable()
	if src == nil {
		return dst
	}
	for _, name := range names {
		dst.RawSetString(name, src.RawGetString(name))
	}
	return dst
}

// osExit replaces os.exit. Under a guard the exit request is recorded, the
// running call is halted and the request is raised as an error the host
// recognises; otherwise the process exits.
func (s *Sandbox) osExit(L *lua.LState) int {
	code := 0
	switch v := L.Get(1).(type) {
	case lua.LNumber:
		code = int(v)
	case lua.LBool:
		if !bool(v) {
			code = 1
		}
	}
	err := guard.Intercept(code)
	if err == nil {
		return 0
	}
	if ee, ok := err.(*guard.ExitError); ok && s.exit == nil {
		s.exit = ee
	}
	if s.halt != nil {
		s.halt()
	}
	raiseError(L, err)
	return 0
}

// beginCall arms exit tracking for one call.
func (s *Sandbox) beginCall(halt context.CancelFunc) {
	s.exit = nil
	s.halt = halt
}

// endCall disarms exit tracking and returns the exit request made during
// the call, if any.
func (s *Sandbox) endCall() *guard.ExitError {
	exit := s.exit
	s.exit = nil
	s.halt = nil
	return exit
}

// Grant enables a capability.
func (s *Sandbox) Grant(cap Capability) {
	s.capabilities[cap] = true
	s.refresh()
}

// HasCapability returns true if the capability is granted.
func (s *Sandbox) HasCapability(cap Capability) bool {
	return s.capabilities[cap]
}

// Capabilities returns all granted capabilities, sorted.
func (s *Sandbox) Capabilities() []Capability {
	caps := make([]Capability, 0, len(s.capabilities))
	for cap, granted := range s.capabilities {
		if granted {
			caps = append(caps, cap)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// CheckCapability returns an error if the capability is not granted.
func (s *Sandbox) CheckCapability(cap Capability) error {
	if !s.capabilities[cap] {
		return &CapabilityError{Capability: cap}
	}
	return nil
}

// SetOutput changes where print writes.
func (s *Sandbox) SetOutput(w io.Writer) {
	s.out = w
}
