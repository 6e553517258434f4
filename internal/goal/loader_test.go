package goal

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/luabuild/internal/script"
)

func TestModulePath(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"util", "util.lua", false},
		{"build.tasks", "build/tasks.lua", false},
		{"build/tasks.lua", "build/tasks.lua", false},
		{"./local.lua", "local.lua", false},
		{"", "", true},
		{"../secret", "", true},
		{"a..b", "", true},
		{"nul\x00name", "", true},
		{"/etc/passwd.lua", "", true},
	}
	for _, tt := range tests {
		got, err := ModulePath(tt.name)
		if tt.wantErr {
			if !errors.Is(err, script.ErrMalformedResource) {
				t.Errorf("ModulePath(%q) error = %v, want ErrMalformedResource", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ModulePath(%q) = %q, %v; want %q", tt.name, got, err, tt.want)
		}
	}
}

func mkfile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("return {}"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScriptPathLoader(t *testing.T) {
	scripts := t.TempDir()
	nsDir := t.TempDir()
	mkfile(t, filepath.Join(scripts, "build", "tasks.lua"))
	mkfile(t, filepath.Join(scripts, "shared.lua"))
	mkfile(t, filepath.Join(nsDir, "shared.lua"))
	mkfile(t, filepath.Join(nsDir, "only_ns.lua"))

	ns := script.NewNamespace("test", nil)
	if err := ns.AddPath(nsDir); err != nil {
		t.Fatal(err)
	}
	l := NewScriptPathLoader(ns, scripts)

	tests := []struct {
		name string
		want string
	}{
		{"build.tasks", filepath.Join(scripts, "build", "tasks.lua")},
		{"shared", filepath.Join(scripts, "shared.lua")},
		{"only_ns", filepath.Join(nsDir, "only_ns.lua")},
		{"missing", ""},
	}
	for _, tt := range tests {
		u, err := l.LoadResource(tt.name)
		if err != nil {
			t.Errorf("LoadResource(%q) error: %v", tt.name, err)
			continue
		}
		if tt.want == "" {
			if u != nil {
				t.Errorf("LoadResource(%q) = %v, want nil", tt.name, u)
			}
			continue
		}
		if u == nil || u.Scheme != "file" || filepath.FromSlash(u.Path) != tt.want {
			t.Errorf("LoadResource(%q) = %v, want file %s", tt.name, u, tt.want)
		}
	}

	if _, err := l.LoadResource("../x"); !errors.Is(err, script.ErrMalformedResource) {
		t.Errorf("LoadResource(../x) error = %v", err)
	}
}

type countingLoader struct {
	inner script.ResourceLoader
	calls int
}

func (c *countingLoader) LoadResource(name string) (*url.URL, error) {
	c.calls++
	return c.inner.LoadResource(name)
}

func TestWatchingLoader(t *testing.T) {
	dir := t.TempDir()
	counting := &countingLoader{inner: NewScriptPathLoader(nil, dir)}

	invalidated := make(chan struct{}, 16)
	w, err := newWatchingLoader(counting, nil, func() { invalidated <- struct{}{} }, dir)
	if err != nil {
		t.Fatalf("newWatchingLoader() error: %v", err)
	}
	defer w.Close()

	if len(w.WatchedPaths()) != 1 {
		t.Errorf("WatchedPaths() = %v", w.WatchedPaths())
	}

	// Misses are cached.
	for i := 0; i < 2; i++ {
		if u, err := w.LoadResource("mod"); u != nil || err != nil {
			t.Fatalf("LoadResource() = %v, %v", u, err)
		}
	}
	if counting.calls != 1 {
		t.Errorf("inner calls = %d, want 1", counting.calls)
	}

	mkfile(t, filepath.Join(dir, "mod.lua"))
	select {
	case <-invalidated:
	case <-time.After(5 * time.Second):
		t.Fatal("cache not invalidated after file creation")
	}

	u, err := w.LoadResource("mod")
	if err != nil || u == nil {
		t.Fatalf("LoadResource() after create = %v, %v", u, err)
	}
	if counting.calls != 2 {
		t.Errorf("inner calls = %d, want 2", counting.calls)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestWatchingLoaderNil(t *testing.T) {
	if _, err := NewWatchingLoader(nil, nil); !script.IsConfigError(err) {
		t.Errorf("error = %v, want ConfigError", err)
	}
}
