package lua

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/script"
)

// SourceLoader is the runtime's view of module lookup: it turns the name
// given to require into a location, or nil when it knows no such module.
type SourceLoader interface {
	LoadLuaSource(name string) (*url.URL, error)
}

type resourceSourceLoader struct {
	loader script.ResourceLoader
}

// BridgeResourceLoader adapts a host ResourceLoader to a SourceLoader.
// Every lookup is delegated; nothing is cached here.
func BridgeResourceLoader(loader script.ResourceLoader) (SourceLoader, error) {
	if loader == nil {
		return nil, &script.ConfigError{Op: "source loader", Msg: "resource loader is nil", Err: script.ErrNilArgument}
	}
	return &resourceSourceLoader{loader: loader}, nil
}

// LoadLuaSource delegates to the resource loader. A name the loader
// cannot express as a location is reported as a *LoadError.
func (r *resourceSourceLoader) LoadLuaSource(name string) (*url.URL, error) {
	u, err := r.loader.LoadResource(name)
	if err != nil {
		if errors.Is(err, script.ErrMalformedResource) {
			return nil, &LoadError{Name: name, Err: err}
		}
		return nil, err
	}
	return u, nil
}

func (r *resourceSourceLoader) String() string {
	return fmt.Sprintf("SourceLoader{%v}", r.loader)
}

// InstallSourceLoader appends a searcher for sl to package.loaders. The
// searcher resolves the location through resolver and returns the
// compiled chunk to require, or a "not found" message when sl has no
// location for the name.
func InstallSourceLoader(L *lua.LState, sl SourceLoader, resolver *script.Resolver) error {
	if sl == nil || resolver == nil {
		return &script.ConfigError{Op: "source loader", Msg: "source loader or resolver is nil", Err: script.ErrNilArgument}
	}

	loaders, ok := L.GetField(L.Get(lua.RegistryIndex), "_LOADERS").(*lua.LTable)
	if !ok {
		return &script.ConfigError{Op: "source loader", Msg: "package library is not open", Err: script.ErrUnsupportedSource}
	}

	loaders.Append(L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		u, err := sl.LoadLuaSource(name)
		if err != nil {
			raiseError(L, err)
			return 0
		}
		if u == nil {
			L.Push(lua.LString(fmt.Sprintf("no resource for '%s' in script path", name)))
			return 1
		}

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cs, err := resolver.Resolve(ctx, script.FromURL(u))
		if err != nil {
			raiseError(L, &LoadError{Name: name, Err: err})
			return 0
		}
		fn, err := Compile(L, cs)
		if err != nil {
			raiseError(L, err)
			return 0
		}
		L.Push(fn)
		return 1
	}))
	return nil
}
