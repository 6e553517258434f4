package goal

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dshills/luabuild/internal/script"
)

// ScriptPathLoader resolves module names against the configured script
// path, then against the namespace's search path.
type ScriptPathLoader struct {
	ns    *script.Namespace
	paths []string
}

// NewScriptPathLoader creates a loader searching paths, then ns. ns may be
// nil.
func NewScriptPathLoader(ns *script.Namespace, paths ...string) *ScriptPathLoader {
	return &ScriptPathLoader{ns: ns, paths: append([]string(nil), paths...)}
}

// Paths returns the configured script path.
func (l *ScriptPathLoader) Paths() []string {
	return append([]string(nil), l.paths...)
}

// LoadResource implements script.ResourceLoader. It returns nil, nil when
// no file matches.
func (l *ScriptPathLoader) LoadResource(name string) (*url.URL, error) {
	rel, err := ModulePath(name)
	if err != nil {
		return nil, err
	}

	for _, dir := range l.paths {
		candidate := filepath.Join(dir, filepath.FromSlash(rel))
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return &url.URL{Scheme: "file", Path: filepath.ToSlash(candidate)}, nil
		}
	}
	if l.ns != nil {
		return l.ns.FindResource(rel), nil
	}
	return nil, nil
}

func (l *ScriptPathLoader) String() string {
	return fmt.Sprintf("ScriptPathLoader{paths=%v, namespace=%v}", l.paths, l.ns)
}

// ModulePath converts a module name to a relative slash-separated file
// path: "build.tasks" becomes "build/tasks.lua" and "build/tasks.lua" is
// kept. Names that could escape the search path are malformed.
func ModulePath(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", script.ErrMalformedResource, name)
	}

	rel := filepath.ToSlash(name)
	if !strings.HasSuffix(rel, ".lua") {
		rel = strings.ReplaceAll(rel, ".", "/") + ".lua"
	}
	if path.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q is absolute", script.ErrMalformedResource, name)
	}
	return path.Clean(rel), nil
}
