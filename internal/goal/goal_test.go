package goal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/luabuild/internal/automation"
	"github.com/dshills/luabuild/internal/config"
	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/script"
	"github.com/dshills/luabuild/internal/script/lua"
	"github.com/dshills/luabuild/internal/shell"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Project.Name = "demo"
	cfg.Project.Version = "1.0"
	cfg.Project.BaseDir = base
	cfg.Project.BuildDir = filepath.Join(base, "build")
	cfg.Scripts.Path = []string{filepath.Join(base, "scripts")}
	cfg.Properties = map[string]string{"greeting": "hello"}
	if err := os.MkdirAll(cfg.Scripts.Path[0], 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, opts ...lua.Option) *Runner {
	t.Helper()
	var quiet bytes.Buffer
	opts = append([]lua.Option{
		lua.WithBuilderOptions(automation.WithOutput(&quiet)),
	}, opts...)
	r, err := New(lua.NewRuntime(opts...), cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return r
}

func inline(text string) script.Source {
	return script.FromInline(text, "test.lua", "/")
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	rt := lua.NewRuntime()

	if _, err := New(nil, cfg); !errors.Is(err, ErrNoRuntime) {
		t.Errorf("nil runtime: error = %v", err)
	}
	if _, err := New(rt, nil); !errors.Is(err, script.ErrNilArgument) {
		t.Errorf("nil config: error = %v", err)
	}

	bad := testConfig(t)
	bad.Project.BaseDir = filepath.Join(bad.Project.BaseDir, "missing")
	if _, err := New(rt, bad); !errors.Is(err, ErrInvalidBaseDir) || !script.IsConfigError(err) {
		t.Errorf("missing basedir: error = %v", err)
	}

	r, err := New(rt, cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if paths := r.Root().Paths(); len(paths) != 1 {
		t.Errorf("root paths = %v", paths)
	}
}

func TestCreateContext(t *testing.T) {
	r := newRunner(t, testConfig(t))

	bindings, err := r.CreateContext()
	if err != nil {
		t.Fatalf("CreateContext() error: %v", err)
	}

	want := []string{"project", "properties", "basedir", "log", "ant", "fail"}
	got := bindings.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	ant, _ := bindings.Get("ant")
	b, ok := ant.(*automation.Builder)
	if !ok {
		t.Fatalf("ant = %T, want *automation.Builder", ant)
	}
	if v, ok := b.Project().Property("greeting"); !ok || v != "hello" {
		t.Errorf("project property greeting = %q, %v", v, ok)
	}
}

func TestCreateContextPropertiesCopied(t *testing.T) {
	cfg := testConfig(t)
	r := newRunner(t, cfg)

	bindings, err := r.CreateContext()
	if err != nil {
		t.Fatal(err)
	}
	props, _ := bindings.Get("properties")
	props.(map[string]string)["greeting"] = "changed"
	if cfg.Properties["greeting"] != "hello" {
		t.Error("bindings share the configuration's property map")
	}
}

func TestExecute(t *testing.T) {
	r := newRunner(t, testConfig(t))
	ctx := context.Background()

	tests := []struct {
		name string
		code string
		want any
	}{
		{"project name", `return project.name`, "demo"},
		{"property", `return properties.greeting`, "hello"},
		{"ant property", `return ant.property("greeting")`, "hello"},
		{"no result", `local x = 1`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(ctx, inline(tt.code))
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExecuteRequiresFromScriptPath(t *testing.T) {
	cfg := testConfig(t)
	err := os.WriteFile(filepath.Join(cfg.Scripts.Path[0], "helpers.lua"), []byte(`return { answer = 42 }`), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	r := newRunner(t, cfg)

	got, err := r.Execute(context.Background(), inline(`return require("helpers").answer`))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != int64(42) {
		t.Errorf("result = %#v, want 42", got)
	}
}

func TestExecuteFail(t *testing.T) {
	r := newRunner(t, testConfig(t))

	_, err := r.Execute(context.Background(), inline(`fail("release blocked")`))
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("error = %v, want *BuildError", err)
	}
	if be.Message != "release blocked" {
		t.Errorf("Message = %q", be.Message)
	}
}

func TestExecuteExitRequest(t *testing.T) {
	r := newRunner(t, testConfig(t))

	_, err := r.Execute(context.Background(), inline(`os.exit(5)`))
	var ee *guard.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *guard.ExitError", err)
	}
	if ee.Code != 5 {
		t.Errorf("Code = %d, want 5", ee.Code)
	}
	if guard.Active() {
		t.Error("guard still active after Execute returned")
	}
}

func TestShell(t *testing.T) {
	var out bytes.Buffer
	r := newRunner(t, testConfig(t), lua.WithShellOptions(
		shell.WithInput(strings.NewReader("project.name\n:quit\n")),
		shell.WithOutput(&out),
	))

	if err := r.Shell(context.Background()); err != nil {
		t.Fatalf("Shell() error: %v", err)
	}
	if !strings.Contains(out.String(), "demo") {
		t.Errorf("output = %q, want it to contain demo", out.String())
	}
}

func TestShellExitRequest(t *testing.T) {
	var out bytes.Buffer
	r := newRunner(t, testConfig(t), lua.WithShellOptions(
		shell.WithInput(strings.NewReader("os.exit(2)\n")),
		shell.WithOutput(&out),
	))

	if err := r.Shell(context.Background()); !guard.IsExitRequest(err) {
		t.Errorf("Shell() error = %v, want exit request", err)
	}
}

type fakeHandle struct {
	closed bool
	err    error
}

func (h *fakeHandle) Close() { h.closed = true }
func (h *fakeHandle) Await(ctx context.Context) error { return h.err }

type fakeWindow struct {
	handle   *fakeHandle
	bindings *script.Context
	err      error
}

func (w *fakeWindow) Open(ns *script.Namespace, loader script.ResourceLoader, bindings *script.Context) (script.WindowHandle, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.bindings = bindings
	return w.handle, nil
}

type fakeRuntime struct {
	window  *fakeWindow
	version string
}

func (f *fakeRuntime) ScriptExecutor() script.ScriptExecutor { return nil }
func (f *fakeRuntime) ConsoleWindow() script.ConsoleWindow { return f.window }
func (f *fakeRuntime) ShellRunner() script.ShellRunner { return nil }
func (f *fakeRuntime) Version() string {
	if f.version == "" {
		return "Lua 5.1 (fake 1.0)"
	}
	return f.version
}

func TestConsole(t *testing.T) {
	awaitErr := errors.New("window lost")
	openErr := errors.New("no display")

	tests := []struct {
		name    string
		window  *fakeWindow
		wantErr error
	}{
		{"closed normally", &fakeWindow{handle: &fakeHandle{}}, nil},
		{"await error", &fakeWindow{handle: &fakeHandle{err: awaitErr}}, awaitErr},
		{"open error", &fakeWindow{err: openErr}, openErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(&fakeRuntime{window: tt.window}, testConfig(t))
			if err != nil {
				t.Fatal(err)
			}
			err = r.Console(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Console() error = %v, want %v", err, tt.wantErr)
			}
			if tt.window.err != nil {
				return
			}
			if !tt.window.handle.closed {
				t.Error("handle not closed")
			}
			// Without a magic factory no ant binding is installed.
			if _, ok := tt.window.bindings.Get("ant"); ok {
				t.Error("unexpected ant binding")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	r, err := New(&fakeRuntime{}, cfg, WithOutput(&out), WithVersion("0.3.0"))
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Version(context.Background()); err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"luabuild 0.3.0\n",
		"runtime: Lua 5.1 (fake 1.0)\n",
		"script path:\n",
		cfg.Scripts.Path[0],
		cfg.Project.BaseDir,
		"compatibility:\n  5.1: true\n  5.2: false\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Version(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Version() error = %v", err)
	}
}

func TestVersionUnknownLanguageLevel(t *testing.T) {
	var out bytes.Buffer
	r, err := New(&fakeRuntime{version: "mystery"}, testConfig(t), WithOutput(&out))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Version(context.Background()); err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if !strings.Contains(out.String(), "compatibility: unknown\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLanguageLevel(t *testing.T) {
	tests := []struct {
		version string
		want    string
		ok      bool
	}{
		{"Lua 5.1 (GopherLua 0.1)", "5.1", true},
		{"Lua 5.4", "5.4", true},
		{"GopherLua 0.1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := LanguageLevel(tt.version)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LanguageLevel(%q) = %q, %v; want %q, %v", tt.version, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExecuteExitRequestInsidePcall(t *testing.T) {
	r := newRunner(t, testConfig(t))

	_, err := r.Execute(context.Background(), inline(`local ok = pcall(os.exit, 5); return "kept going"`))
	var ee *guard.ExitError
	if !errors.As(err, &ee) || ee.Code != 5 {
		t.Fatalf("Execute() error = %v, want exit request with code 5", err)
	}
}

func TestShellBareExpression(t *testing.T) {
	var out bytes.Buffer
	r := newRunner(t, testConfig(t), lua.WithShellOptions(
		shell.WithInput(strings.NewReader("basedir ~= nil\nproperties.greeting\n")),
		shell.WithOutput(&out),
	))

	if err := r.Shell(context.Background()); err != nil {
		t.Fatalf("Shell() error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "true") || !strings.Contains(got, "hello") {
		t.Errorf("output = %q, want both expressions evaluated", got)
	}
}
