package automation

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
)

// ErrProtectedPath is returned when a destructive task targets the base
// directory itself or one of its ancestors.
var ErrProtectedPath = errors.New("path contains the base directory")

// Builder runs build tasks for a Project.
type Builder struct {
	project *Project
	logger  *logging.Logger
	out     io.Writer
	clock   func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithProject uses an existing project instead of creating one.
func WithProject(p *Project) Option {
	return func(b *Builder) {
		b.project = p
	}
}

// WithNewProject gives every builder the option is applied to a fresh
// project with the given name and base directory.
func WithNewProject(name, baseDir string) Option {
	return func(b *Builder) {
		b.project = NewProject(name, baseDir)
	}
}

// WithBaseDir sets the base directory of the created project.
func WithBaseDir(dir string) Option {
	return func(b *Builder) {
		b.project = NewProject(b.projectName(), dir)
	}
}

// WithOutput sets where the default listener writes.
func WithOutput(w io.Writer) Option {
	return func(b *Builder) {
		b.out = w
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a builder. Unless an existing project with listeners
// is supplied, a DefaultLogger is registered as the first listener.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.project == nil {
		b.project = NewProject("", "")
	}
	b.logger = logging.OrNull(b.logger).WithComponent("automation")

	if len(b.project.BuildListeners()) == 0 {
		b.project.AddBuildListener(NewDefaultLogger(b.out))
	}
	return b
}

func (b *Builder) projectName() string {
	if b.project != nil {
		return b.project.Name()
	}
	return ""
}

// Project returns the builder's project.
func (b *Builder) Project() *Project {
	return b.project
}

func (b *Builder) String() string {
	return fmt.Sprintf("Builder{project=%s, basedir=%s}", b.project.Name(), b.project.BaseDir())
}

// run executes one task and fires its events.
func (b *Builder) run(task string, fn func(log func(format string, args ...any)) error) error {
	p := b.project
	p.fire(func(l BuildListener) { l.TaskStarted(BuildEvent{Project: p, Task: task}) })

	log := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		p.fire(func(l BuildListener) {
			l.MessageLogged(BuildEvent{Project: p, Task: task, Message: msg, Level: logging.LevelInfo})
		})
	}

	err := fn(log)
	if err != nil {
		err = fmt.Errorf("%s: %w", task, err)
		b.logger.Debug("task failed: %v", err)
	}
	p.fire(func(l BuildListener) { l.TaskFinished(BuildEvent{Project: p, Task: task, Err: err}) })
	return err
}

// Echo logs a message.
func (b *Builder) Echo(msg string) error {
	return b.run("echo", func(log func(string, ...any)) error {
		log("%s", msg)
		return nil
	})
}

// Mkdir creates a directory and any missing parents.
func (b *Builder) Mkdir(dir string) error {
	return b.run("mkdir", func(log func(string, ...any)) error {
		path := b.project.Resolve(dir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return nil
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return err
		}
		log("Created dir: %s", path)
		return nil
	})
}

// Copy copies a file or directory tree. A file copied onto an existing
// directory lands inside it.
func (b *Builder) Copy(src, dst string) error {
	return b.run("copy", func(log func(string, ...any)) error {
		from := b.project.Resolve(src)
		to := b.project.Resolve(dst)

		info, err := os.Stat(from)
		if err != nil {
			return err
		}

		if !info.IsDir() {
			if di, err := os.Stat(to); err == nil && di.IsDir() {
				to = filepath.Join(to, filepath.Base(from))
			}
			if err := copyFile(from, to, info.Mode()); err != nil {
				return err
			}
			log("Copying 1 file to %s", filepath.Dir(to))
			return nil
		}

		count := 0
		err = filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(from, path)
			if err != nil {
				return err
			}
			target := filepath.Join(to, rel)
			if d.IsDir() {
				return os.MkdirAll(target, 0755)
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			count++
			return copyFile(path, target, fi.Mode())
		})
		if err != nil {
			return err
		}
		log("Copying %d files to %s", count, to)
		return nil
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Delete removes a file or directory tree. Missing paths are not an error.
// The base directory and its ancestors cannot be deleted.
func (b *Builder) Delete(path string) error {
	return b.run("delete", func(log func(string, ...any)) error {
		target := b.project.Resolve(path)
		rel, err := filepath.Rel(target, b.project.BaseDir())
		if err == nil && !isOutside(rel) {
			return fmt.Errorf("%w: refusing to delete %s", ErrProtectedPath, target)
		}

		if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		log("Deleting: %s", target)
		return nil
	})
}

// isOutside reports whether a relative path climbs out of its base.
func isOutside(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// Touch creates a file or updates its modification time.
func (b *Builder) Touch(path string) error {
	return b.run("touch", func(log func(string, ...any)) error {
		target := b.project.Resolve(path)
		now := b.clock()

		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.Create(target)
			if err != nil {
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			log("Creating %s", target)
		}
		return os.Chtimes(target, now, now)
	})
}

// Property defines name unless already defined and returns the effective
// value.
func (b *Builder) Property(name, value string) (string, error) {
	var effective string
	err := b.run("property", func(log func(string, ...any)) error {
		if name == "" {
			return fmt.Errorf("%w: property name is empty", script.ErrInvalidArguments)
		}
		effective = b.project.SetProperty(name, value)
		if effective != value {
			log("Override ignored for property %q", name)
		}
		return nil
	})
	return effective, err
}

// Exports implements script.Exported.
func (b *Builder) Exports() map[string]script.ClosureTarget {
	return map[string]script.ClosureTarget{
		"echo": script.Func("echo", func(args []any) (any, error) {
			msg, err := optionalString("echo", args, 0)
			if err != nil {
				return nil, err
			}
			return nil, b.Echo(msg)
		}),
		"mkdir": script.Func("mkdir", func(args []any) (any, error) {
			dir, err := requiredString("mkdir", args, 0, 1)
			if err != nil {
				return nil, err
			}
			return nil, b.Mkdir(dir)
		}),
		"copy": script.Func("copy", func(args []any) (any, error) {
			src, err := requiredString("copy", args, 0, 2)
			if err != nil {
				return nil, err
			}
			dst, err := requiredString("copy", args, 1, 2)
			if err != nil {
				return nil, err
			}
			return nil, b.Copy(src, dst)
		}),
		"delete": script.Func("delete", func(args []any) (any, error) {
			path, err := requiredString("delete", args, 0, 1)
			if err != nil {
				return nil, err
			}
			return nil, b.Delete(path)
		}),
		"touch": script.Func("touch", func(args []any) (any, error) {
			path, err := requiredString("touch", args, 0, 1)
			if err != nil {
				return nil, err
			}
			return nil, b.Touch(path)
		}),
		"property": script.Func("property", func(args []any) (any, error) {
			switch len(args) {
			case 1:
				name, err := requiredString("property", args, 0, 2)
				if err != nil {
					return nil, err
				}
				if v, ok := b.project.Property(name); ok {
					return v, nil
				}
				return nil, nil
			case 2:
				name, err := requiredString("property", args, 0, 2)
				if err != nil {
					return nil, err
				}
				return b.Property(name, fmt.Sprint(args[1]))
			case 0:
				return nil, fmt.Errorf("%w: property expects a name", script.ErrInvalidArguments)
			default:
				return nil, fmt.Errorf("%w: property accepts at most 2 arguments", script.ErrTooManyArguments)
			}
		}),
		"basedir": script.Func("basedir", func(args []any) (any, error) {
			if len(args) > 0 {
				return nil, fmt.Errorf("%w: basedir takes no arguments", script.ErrTooManyArguments)
			}
			return b.project.BaseDir(), nil
		}),
	}
}

func requiredString(task string, args []any, i, max int) (string, error) {
	if len(args) > max {
		return "", fmt.Errorf("%w: %s accepts at most %d arguments", script.ErrTooManyArguments, task, max)
	}
	if i >= len(args) {
		return "", fmt.Errorf("%w: %s expects argument %d", script.ErrInvalidArguments, task, i+1)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s argument %d must be a non-empty string, got %T", script.ErrInvalidArguments, task, i+1, args[i])
	}
	return s, nil
}

func optionalString(task string, args []any, i int) (string, error) {
	if len(args) > i+1 {
		return "", fmt.Errorf("%w: %s accepts at most %d arguments", script.ErrTooManyArguments, task, i+1)
	}
	if i >= len(args) || args[i] == nil {
		return "", nil
	}
	return fmt.Sprint(args[i]), nil
}
