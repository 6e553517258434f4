package script

import (
	"context"
	"io"
)

// WindowHandle is one open interactive console window.
type WindowHandle interface {
	// Close tears the window down. It is idempotent.
	Close()

	// Await blocks until the window is closed. It returns ctx.Err() if ctx
	// is cancelled first.
	Await(ctx context.Context) error
}

// ConsoleWindow opens windowed consoles.
type ConsoleWindow interface {
	Open(ns *Namespace, loader ResourceLoader, bindings *Context) (WindowHandle, error)
}

// ShellRunner runs a line-oriented shell until the user leaves it.
type ShellRunner interface {
	Run(ctx context.Context, ns *Namespace, loader ResourceLoader, bindings *Context) error
}

// ScriptExecutor runs a single script to completion.
type ScriptExecutor interface {
	Execute(ctx context.Context, src Source, ns *Namespace, loader ResourceLoader, bindings *Context) (any, error)
}

// Session is a persistent evaluation scope backing an interactive surface.
type Session interface {
	// Eval evaluates a chunk and returns its printed result.
	Eval(ctx context.Context, code string) (string, error)

	// Complete reports whether code parses as a whole chunk, i.e. the
	// surface need not wait for more input lines.
	Complete(code string) bool

	// Close releases the session's runtime resources.
	Close() error
}

// SessionOpener creates sessions bound to a namespace.
// Script output is written to out.
type SessionOpener interface {
	OpenSession(ns *Namespace, loader ResourceLoader, bindings *Context, out io.Writer) (Session, error)
}

// Runtime is a concrete scripting runtime.
type Runtime interface {
	ScriptExecutor() ScriptExecutor
	ConsoleWindow() ConsoleWindow
	ShellRunner() ShellRunner
	// Version identifies the runtime, e.g. "Lua 5.1 (GopherLua 0.1)".
	Version() string
}

// MagicFactory builds the pre-built objects named by MagicContext.
type MagicFactory interface {
	CreateMagic(kind MagicContext) (any, error)
}
