package goal

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/dshills/luabuild/internal/config"
	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
)

// Runner runs goals against one runtime and project configuration.
type Runner struct {
	runtime script.Runtime
	cfg     *config.Config
	root    *script.Namespace
	guard   *guard.NoExitGuard
	logger  *logging.Logger
	out     io.Writer
	version string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithOutput sets where the version goal reports. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithVersion sets the luabuild version the version goal reports.
func WithVersion(v string) Option {
	return func(r *Runner) {
		r.version = v
	}
}

// New creates a Runner. The root namespace searches the project's base
// directory.
func New(rt script.Runtime, cfg *config.Config, opts ...Option) (*Runner, error) {
	if rt == nil {
		return nil, &script.ConfigError{Op: "goal", Err: ErrNoRuntime}
	}
	if cfg == nil {
		return nil, &script.ConfigError{Op: "goal", Msg: "configuration is nil", Err: script.ErrNilArgument}
	}

	r := &Runner{
		runtime: rt,
		cfg:     cfg,
		version: "dev",
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNull(r.logger).WithComponent("goal")
	r.guard = guard.New(guard.WithLogger(r.logger))

	r.root = script.NewNamespace("root", nil)
	if err := r.root.AddPath(cfg.Project.BaseDir); err != nil {
		return nil, &script.ConfigError{Op: "goal", Msg: fmt.Sprintf("%v: %v", ErrInvalidBaseDir, err), Err: ErrInvalidBaseDir}
	}
	return r, nil
}

// Root returns the namespace every goal namespace descends from.
func (r *Runner) Root() *script.Namespace {
	return r.root
}

func (r *Runner) output() io.Writer {
	if r.out != nil {
		return r.out
	}
	return os.Stdout
}

// prepare builds the namespace, loader and bindings for one goal. The
// returned release func closes the loader's watcher, if any.
func (r *Runner) prepare(name string, watch bool) (*script.Namespace, script.ResourceLoader, *script.Context, func(), error) {
	ns := script.NewNamespace(name, r.root)
	r.logger.Debug("goal %s in %s", name, ns)

	bindings, err := r.CreateContext()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var loader script.ResourceLoader = NewScriptPathLoader(ns, r.cfg.Scripts.Path...)
	release := func() {}
	if watch {
		wl, err := NewWatchingLoader(loader, r.logger, r.cfg.Scripts.Path...)
		if err != nil {
			r.logger.Warn("script path watching disabled: %v", err)
		} else {
			loader = wl
			release = func() { _ = wl.Close() }
		}
	}
	return ns, loader, bindings, release, nil
}

// Execute runs src once and returns its result, which is also logged.
func (r *Runner) Execute(ctx context.Context, src script.Source) (any, error) {
	return guard.Call(r.guard, func() (any, error) {
		ns, loader, bindings, release, err := r.prepare("execute", false)
		if err != nil {
			return nil, err
		}
		defer release()

		r.logger.Debug("executing %s", src)
		result, err := r.runtime.ScriptExecutor().Execute(ctx, src, ns, loader, bindings)
		if err != nil {
			return nil, err
		}
		if result != nil {
			r.logger.Info("result: %v", result)
		}
		return result, nil
	})
}

// Console opens the console window and waits until it closes.
func (r *Runner) Console(ctx context.Context) error {
	return r.guard.Run(func() error {
		ns, loader, bindings, release, err := r.prepare("console", r.cfg.Scripts.Watch)
		if err != nil {
			return err
		}
		defer release()

		handle, err := r.runtime.ConsoleWindow().Open(ns, loader, bindings)
		if err != nil {
			return err
		}
		defer handle.Close()
		return handle.Await(ctx)
	})
}

// Shell runs the interactive shell until the user leaves it.
func (r *Runner) Shell(ctx context.Context) error {
	return r.guard.Run(func() error {
		ns, loader, bindings, release, err := r.prepare("shell", r.cfg.Scripts.Watch)
		if err != nil {
			return err
		}
		defer release()

		return r.runtime.ShellRunner().Run(ctx, ns, loader, bindings)
	})
}

// Version reports the luabuild version, the runtime identity and the
// module search path.
func (r *Runner) Version(ctx context.Context) error {
	return r.guard.Run(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ns := script.NewNamespace("version", r.root)
		out := r.output()

		fmt.Fprintf(out, "luabuild %s\n", r.version)
		fmt.Fprintf(out, "runtime: %s\n", r.runtime.Version())
		fmt.Fprintln(out, "script path:")
		for _, p := range r.cfg.Scripts.Path {
			fmt.Fprintf(out, "  %s\n", p)
		}
		for _, p := range ns.Paths() {
			fmt.Fprintf(out, "  %s\n", p)
		}

		level, ok := LanguageLevel(r.runtime.Version())
		if !ok {
			r.logger.Warn("unable to detect the Lua language level of %q", r.runtime.Version())
			fmt.Fprintln(out, "compatibility: unknown")
			return nil
		}
		fmt.Fprintln(out, "compatibility:")
		for _, known := range LanguageLevels {
			fmt.Fprintf(out, "  %s: %t\n", known, known == level)
		}
		return nil
	})
}

// LanguageLevels lists the Lua language levels the version goal reports
// compatibility against.
var LanguageLevels = []string{"5.1", "5.2", "5.3", "5.4"}

var languageLevelPattern = regexp.MustCompile(`^Lua (\d+\.\d+)\b`)

// LanguageLevel extracts the language level from a runtime identity such
// as "Lua 5.1 (GopherLua 0.1)".
func LanguageLevel(version string) (string, bool) {
	m := languageLevelPattern.FindStringSubmatch(version)
	if m == nil {
		return "", false
	}
	return m[1], true
}
