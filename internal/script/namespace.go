package script

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Namespace is an isolated scope a script runs under. Each namespace has
// its own module search path and is the owner anchor for bridged closures.
//
// Namespace is safe for concurrent use.
type Namespace struct {
	id     string
	name   string
	parent *Namespace

	mu    sync.RWMutex
	paths []string
}

// NewNamespace creates a namespace with a fresh unique id.
func NewNamespace(name string, parent *Namespace) *Namespace {
	return &Namespace{
		id:     uuid.New().String(),
		name:   name,
		parent: parent,
	}
}

// ID returns the namespace's unique id.
func (n *Namespace) ID() string {
	return n.id
}

// Name returns the namespace's display name.
func (n *Namespace) Name() string {
	return n.name
}

// Parent returns the enclosing namespace, or nil.
func (n *Namespace) Parent() *Namespace {
	return n.parent
}

// AddPath appends a directory to the namespace's search path.
// Duplicate directories are ignored.
func (n *Namespace) AddPath(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, p := range n.paths {
		if p == abs {
			return nil
		}
	}
	n.paths = append(n.paths, abs)
	return nil
}

// Paths returns the namespace's own search path followed by its parent's.
func (n *Namespace) Paths() []string {
	var out []string
	for ns := n; ns != nil; ns = ns.parent {
		ns.mu.RLock()
		out = append(out, ns.paths...)
		ns.mu.RUnlock()
	}
	return out
}

// FindResource returns a file URL for the first search path entry that
// contains rel, or nil.
func (n *Namespace) FindResource(rel string) *url.URL {
	for _, dir := range n.Paths() {
		candidate := filepath.Join(dir, filepath.FromSlash(rel))
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return &url.URL{Scheme: "file", Path: filepath.ToSlash(candidate)}
		}
	}
	return nil
}

func (n *Namespace) String() string {
	return fmt.Sprintf("Namespace{name=%s, id=%s}", n.name, n.id)
}
