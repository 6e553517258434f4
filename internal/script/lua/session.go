package lua

import (
	"context"
	"io"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/script"
)

// sessionChunkName is the chunk name interactive input is compiled under.
const sessionChunkName = "stdin"

// OpenSession creates a persistent evaluation scope for an interactive
// surface. Globals defined by one Eval are visible to the next.
func (r *Runtime) OpenSession(ns *script.Namespace, loader script.ResourceLoader, bindings *script.Context, out io.Writer) (script.Session, error) {
	state, _, err := r.newState(ns, loader, bindings, out)
	if err != nil {
		return nil, err
	}

	exec := NewExecutor(state.L, 0)
	exec.Start()

	r.logger.Debug("opened session in %s", ns)
	return &session{state: state, exec: exec}, nil
}

type session struct {
	state *State
	exec  *Executor

	closeOnce sync.Once
}

// Eval evaluates code. Input that is a valid expression list is evaluated
// as one and its values are returned tab-separated.
func (s *session) Eval(ctx context.Context, code string) (string, error) {
	var out string
	err := s.exec.Execute(ctx, func(L *lua.LState) error {
		fn, err := compileChunk(L, "return "+code, sessionChunkName)
		if err != nil {
			fn, err = compileChunk(L, code, sessionChunkName)
			if err != nil {
				return err
			}
		}

		results, err := s.state.call(ctx, sessionChunkName, fn)
		if err != nil {
			return err
		}

		parts := make([]string, len(results))
		for i, v := range results {
			parts[i] = L.ToStringMeta(v).String()
		}
		out = strings.Join(parts, "\t")
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Complete reports whether code can be evaluated as it stands.
func (s *session) Complete(code string) bool {
	return InputComplete(code)
}

// Close stops the executor and closes the state.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.exec.Close()
		err = s.state.Close()
	})
	return err
}
