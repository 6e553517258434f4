package lua

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/script"
)

type counter struct {
	n int
}

func (c *counter) Exports() map[string]script.ClosureTarget {
	return map[string]script.ClosureTarget{
		"inc": script.Func("inc", func(args []any) (any, error) {
			c.n++
			return c.n, nil
		}),
		"fail": script.Func("fail", func([]any) (any, error) {
			return nil, errNoGood
		}),
	}
}

func (c *counter) String() string { return "counter" }

var errNoGood = errors.New("no good")

func newTestBridge(t *testing.T) (*State, *Bridge) {
	t.Helper()
	s := newTestState(t)
	return s, NewBridge(s.L, script.NewNamespace("test", nil))
}

func TestBridgeToGoValue(t *testing.T) {
	s, b := newTestBridge(t)

	results, err := s.DoCode(context.Background(), code(`
		local cyclic = {}
		cyclic.self = cyclic
		return 3, 2.5, "s", true, nil, {1, 2, 3}, {a = 1}, cyclic
	`))
	if err != nil {
		t.Fatalf("DoCode() error: %v", err)
	}

	want := []any{
		int64(3),
		2.5,
		"s",
		true,
		nil,
		[]any{int64(1), int64(2), int64(3)},
		map[string]any{"a": int64(1)},
		map[string]any{"self": nil},
	}
	for i, w := range want {
		if got := b.ToGoValue(results[i]); !reflect.DeepEqual(got, w) {
			t.Errorf("result %d = %#v, want %#v", i, got, w)
		}
	}
}

func TestBridgeToLuaValue(t *testing.T) {
	_, b := newTestBridge(t)

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "nil"},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"string", "hi", "hi"},
		{"bool", true, "true"},
		{"bytes", []byte("raw"), "raw"},
	}
	for _, tt := range tests {
		if got := b.ToLuaValue(tt.in).String(); got != tt.want {
			t.Errorf("%s: ToLuaValue() = %q, want %q", tt.name, got, tt.want)
		}
	}

	tbl, ok := b.ToLuaValue([]string{"a", "b"}).(*lua.LTable)
	if !ok || tbl.Len() != 2 || tbl.RawGetInt(2) != lua.LString("b") {
		t.Errorf("[]string conversion = %v", tbl)
	}

	type point struct{ X int }
	p := &point{X: 1}
	ud, ok := b.ToLuaValue(p).(*lua.LUserData)
	if !ok || ud.Value != p {
		t.Errorf("struct pointer conversion = %v", ud)
	}
}

func TestBridgeExported(t *testing.T) {
	s, b := newTestBridge(t)
	c := &counter{}

	lv, err := b.Bind(c)
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	s.SetGlobal("counter", lv)

	results, err := s.DoCode(context.Background(), code(`
		counter.inc()
		return counter.inc(), tostring(counter)
	`))
	if err != nil {
		t.Fatalf("DoCode() error: %v", err)
	}
	if results[0] != lua.LNumber(2) {
		t.Errorf("inc() = %v, want 2", results[0])
	}
	if results[1] != lua.LString("counter") {
		t.Errorf("tostring = %v, want counter", results[1])
	}
}

func TestBridgeErrorRoundTrip(t *testing.T) {
	s, b := newTestBridge(t)
	lv, err := b.Bind(&counter{})
	if err != nil {
		t.Fatal(err)
	}
	s.SetGlobal("counter", lv)

	// Uncaught: the host gets the callable's error back.
	_, err = s.DoCode(context.Background(), code("counter.fail()"))
	if !errors.Is(err, errNoGood) {
		t.Fatalf("error = %v, want errNoGood in chain", err)
	}
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Errorf("error = %v, want *RuntimeError in chain", err)
	}

	// Caught and rethrown: identity survives.
	_, err = s.DoCode(context.Background(), code(`
		local ok, e = pcall(counter.fail)
		assert(not ok)
		error(e)
	`))
	if !errors.Is(err, errNoGood) {
		t.Errorf("rethrown error = %v, want errNoGood in chain", err)
	}

	// Caught and inspected.
	results, err := s.DoCode(context.Background(), code(`
		local ok, e = pcall(counter.fail)
		return tostring(e), e:message()
	`))
	if err != nil {
		t.Fatalf("DoCode() error: %v", err)
	}
	if results[0] != lua.LString("no good") || results[1] != lua.LString("no good") {
		t.Errorf("message = %v / %v", results[0], results[1])
	}
}

func TestBridgeBindNilOwner(t *testing.T) {
	s := newTestState(t)
	b := NewBridge(s.L, nil)

	if _, err := b.Bind(&counter{}); !script.IsConfigError(err) {
		t.Errorf("Bind(Exported) error = %v, want ConfigError", err)
	}
	if _, err := b.Bind("plain"); err != nil {
		t.Errorf("Bind(string) error = %v", err)
	}

	// Through ToLuaValue the defect surfaces when called.
	s.SetGlobal("f", b.ToLuaValue(script.Func("f", func([]any) (any, error) { return nil, nil })))
	_, err := s.DoCode(context.Background(), code("f()"))
	if !errors.Is(err, script.ErrNilArgument) {
		t.Errorf("calling unanchored closure: error = %v, want ErrNilArgument", err)
	}
}

func TestNewClosure(t *testing.T) {
	ns := script.NewNamespace("owner", nil)
	target := script.Func("t", func(args []any) (any, error) { return len(args), nil })

	if _, err := NewClosure(nil, target); !script.IsConfigError(err) {
		t.Errorf("nil owner: error = %v", err)
	}
	if _, err := NewClosure(ns, nil); !script.IsConfigError(err) {
		t.Errorf("nil target: error = %v", err)
	}

	c, err := NewClosure(ns, target)
	if err != nil {
		t.Fatalf("NewClosure() error: %v", err)
	}
	if c.Owner() != ns || c.Target() != target {
		t.Error("accessors do not return construction arguments")
	}
	got, err := c.Call([]any{1, 2})
	if err != nil || got != 2 {
		t.Errorf("Call() = %v, %v", got, err)
	}
	if !strings.HasPrefix(c.String(), "Closure{owner=") {
		t.Errorf("String() = %q", c.String())
	}
}
