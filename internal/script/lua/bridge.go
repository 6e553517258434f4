package lua

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/script"
)

// Bridge converts values between Go and Lua for one state. Host callables
// converted through it are anchored to its owner namespace.
type Bridge struct {
	L     *lua.LState
	owner *script.Namespace
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState, owner *script.Namespace) *Bridge {
	return &Bridge{L: L, owner: owner}
}

// Owner returns the namespace closures are anchored to.
func (b *Bridge) Owner() *script.Namespace {
	return b.owner
}

// Bind converts a binding value for installation as a global. Unlike
// ToLuaValue it reports wiring defects instead of deferring them to the
// first call.
func (b *Bridge) Bind(v any) (lua.LValue, error) {
	switch v.(type) {
	case script.Exported, script.ClosureTarget:
		if b.owner == nil {
			return nil, &script.ConfigError{Op: "bind", Msg: "closure owner is nil", Err: script.ErrNilArgument}
		}
	}
	return b.ToLuaValue(v), nil
}

// ToGoValue converts a Lua value to a Go value. Error values raised from
// host callables convert back to the Go error.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGoValueWithVisited(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGoValueWithVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil // Break circular reference
		}
		visited[v] = true
		return b.tableToGo(v, visited)
	case *lua.LNilType:
		return nil
	case *lua.LFunction:
		return nil
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGo converts a sequence to a slice and anything else to a map.
func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	maxN := 0
	count := 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				maxN = max(maxN, n)
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGoValueWithVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprintf("%v", float64(kv))
		default:
			key = k.String()
		}
		m[key] = b.toGoValueWithVisited(v, visited)
	})
	return m
}

// ToLuaValue converts a Go value to a Lua value.
//
// Exported values become tables of functions and ClosureTargets become
// functions, both anchored to the bridge's owner. Errors become error
// values scripts can pass to error() or inspect with tostring.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}

	switch val := v.(type) {
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := b.L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, b.ToLuaValue(item))
		}
		return t
	case []string:
		t := b.L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case map[string]any:
		t := b.L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, b.ToLuaValue(item))
		}
		return t
	case map[string]string:
		t := b.L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, lua.LString(item))
		}
		return t
	case *Closure:
		return val.Function(b)
	case script.Exported:
		return b.exportedToTable(val)
	case script.ClosureTarget:
		return b.closureValue(val)
	case error:
		return newErrorValue(b.L, val)
	default:
		return b.reflectToLua(v)
	}
}

// closureValue anchors target to the owner. A wiring defect surfaces when
// the script calls the function.
func (b *Bridge) closureValue(target script.ClosureTarget) lua.LValue {
	c, err := NewClosure(b.owner, target)
	if err != nil {
		return b.L.NewFunction(func(L *lua.LState) int {
			raiseError(L, err)
			return 0
		})
	}
	return c.Function(b)
}

func (b *Bridge) exportedToTable(obj script.Exported) *lua.LTable {
	exports := obj.Exports()
	t := b.L.CreateTable(0, len(exports))
	for name, target := range exports {
		t.RawSetString(name, b.closureValue(target))
	}

	mt := b.L.NewTable()
	label := fmt.Sprintf("%T", obj)
	if s, ok := obj.(fmt.Stringer); ok {
		label = s.String()
	}
	b.L.SetField(mt, "__tostring", b.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(label))
		return 1
	}))
	b.L.SetMetatable(t, mt)
	return t
}

// reflectToLua uses reflection to convert arbitrary Go values.
func (b *Bridge) reflectToLua(v any) lua.LValue {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return lua.LNil
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return lua.LNil
		}
		if rv.Elem().Kind() == reflect.Struct {
			// Pointers to structs keep their identity.
			ud := b.L.NewUserData()
			ud.Value = v
			return ud
		}
		return b.ToLuaValue(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		t := b.L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, b.ToLuaValue(rv.Index(i).Interface()))
		}
		return t

	case reflect.Map:
		t := b.L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(b.ToLuaValue(iter.Key().Interface()), b.ToLuaValue(iter.Value().Interface()))
		}
		return t

	case reflect.Int, reflect.Int8, reflect.Int16:
		return lua.LNumber(rv.Int())

	case reflect.Uint8, reflect.Uint16:
		return lua.LNumber(rv.Uint())

	case reflect.String:
		return lua.LString(rv.String())

	default:
		ud := b.L.NewUserData()
		ud.Value = v
		return ud
	}
}
