package automation

import (
	"path/filepath"
	"sort"
	"sync"
)

// Project holds the state shared by the tasks of one Builder.
type Project struct {
	mu         sync.RWMutex
	name       string
	basedir    string
	properties map[string]string
	listeners  []BuildListener
}

// NewProject creates a project rooted at basedir.
// An empty basedir means the working directory.
func NewProject(name, basedir string) *Project {
	if basedir == "" {
		basedir = "."
	}
	if abs, err := filepath.Abs(basedir); err == nil {
		basedir = abs
	}
	return &Project{
		name:       name,
		basedir:    basedir,
		properties: make(map[string]string),
	}
}

// Name returns the project name.
func (p *Project) Name() string {
	return p.name
}

// BaseDir returns the absolute base directory.
func (p *Project) BaseDir() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.basedir
}

// Resolve returns path made absolute against the base directory.
func (p *Project) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.BaseDir(), filepath.FromSlash(path))
}

// Property returns the value of a property.
func (p *Project) Property(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.properties[name]
	return v, ok
}

// SetProperty defines a property unless it is already defined, and returns
// the effective value. The first definition wins, so values seeded by the
// host cannot be overridden by a script.
func (p *Project) SetProperty(name, value string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.properties[name]; ok {
		return existing
	}
	p.properties[name] = value
	return value
}

// Properties returns a copy of all properties.
func (p *Project) Properties() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.properties))
	for k, v := range p.properties {
		out[k] = v
	}
	return out
}

// PropertyNames returns the defined property names, sorted.
func (p *Project) PropertyNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.properties))
	for k := range p.properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AddBuildListener registers a listener.
func (p *Project) AddBuildListener(l BuildListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// RemoveBuildListener unregisters a listener.
func (p *Project) RemoveBuildListener(l BuildListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.listeners {
		if existing == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

// BuildListeners returns the registered listeners in registration order.
func (p *Project) BuildListeners() []BuildListener {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]BuildListener, len(p.listeners))
	copy(out, p.listeners)
	return out
}

func (p *Project) fire(fn func(BuildListener)) {
	for _, l := range p.BuildListeners() {
		fn(l)
	}
}
