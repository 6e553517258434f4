package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/luabuild/internal/script"
)

// Compile parses and compiles cs into a function whose chunk name is the
// code source's Name. The function inherits the state's global environment.
func Compile(L *lua.LState, cs *script.CodeSource) (*lua.LFunction, error) {
	return compileChunk(L, cs.Text, cs.Name)
}

func compileChunk(L *lua.LState, text, name string) (*lua.LFunction, error) {
	chunk, err := parse.Parse(strings.NewReader(text), name)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	return L.NewFunctionFromProto(proto), nil
}

// ChunkComplete reports whether text is syntactically complete Lua. A chunk with
// a syntax error that is not caused by early end of input counts as
// complete: evaluating it reports the error.
func ChunkComplete(text string) bool {
	return parseState(text) != parseIncomplete
}

// InputComplete reports whether interactive input can be evaluated as it
// stands. Input is read both as an expression and as a statement list; it
// is complete when either form parses, and it waits for more lines only
// when neither parses and one of them ran out of input.
func InputComplete(code string) bool {
	expr, stmt := parseState("return "+code), parseState(code)
	switch {
	case expr == parseOK || stmt == parseOK:
		return true
	case expr == parseIncomplete || stmt == parseIncomplete:
		return false
	default:
		return true
	}
}

type parseResult int

const (
	parseOK parseResult = iota
	parseFailed
	parseIncomplete
)

func parseState(text string) parseResult {
	_, err := parse.Parse(strings.NewReader(text), "=input")
	if err == nil {
		return parseOK
	}
	if (&CompileError{Err: err}).Incomplete() {
		return parseIncomplete
	}
	return parseFailed
}
