// Package script defines the runtime-agnostic half of the script execution
// adapter: where scripts come from, how they find auxiliary scripts, how
// host callables and pre-built objects reach them, and the surfaces that
// run them interactively.
//
// A concrete runtime (see package lua) implements Runtime and
// SessionOpener on top of these types. Host command handlers only talk to
// the interfaces declared here.
//
// # Sources
//
// A Source names exactly one origin:
//
//	script.FromURL(u)
//	script.FromFile("build/release.lua")
//	script.FromInline(`print("hi")`, "hi.lua", "/luabuild/inline")
//
// Resolver turns a Source into a CodeSource whose Name and CodeBase are the
// identity used in error messages.
//
// # Bindings
//
// Context is an ordered set of named values injected into a script before
// it runs. Values implementing ClosureTarget become callables; values
// implementing Exported become objects whose methods are callables.
//
// # Errors
//
// ConfigError marks a defect in caller wiring and is never retried.
// ResourceError marks a recoverable failure to read a script.
package script
