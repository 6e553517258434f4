package lua

import (
	"context"
	"fmt"
	"io"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luabuild/internal/automation"
	"github.com/dshills/luabuild/internal/console"
	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
	"github.com/dshills/luabuild/internal/shell"
)

// Runtime is the gopher-lua implementation of script.Runtime.
type Runtime struct {
	capabilities     []Capability
	executionTimeout time.Duration
	output           io.Writer
	resolver         *script.Resolver
	logger           *logging.Logger

	builderOpts []automation.Option
	consoleOpts []console.Option
	shellOpts   []shell.Option
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRuntimeCapabilities grants capabilities to every state the runtime
// creates.
func WithRuntimeCapabilities(caps ...Capability) Option {
	return func(r *Runtime) {
		r.capabilities = append(r.capabilities, caps...)
	}
}

// WithTimeout bounds each script execution and session evaluation.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.executionTimeout = d
	}
}

// WithScriptOutput sets where executed scripts print. Sessions print into
// the writer given to OpenSession instead.
func WithScriptOutput(w io.Writer) Option {
	return func(r *Runtime) {
		r.output = w
	}
}

// WithResolver sets the resolver for sources and required modules.
func WithResolver(res *script.Resolver) Option {
	return func(r *Runtime) {
		r.resolver = res
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithBuilderOptions configures builders created for MagicAntBuilder.
func WithBuilderOptions(opts ...automation.Option) Option {
	return func(r *Runtime) {
		r.builderOpts = append(r.builderOpts, opts...)
	}
}

// WithConsoleOptions configures the console window.
func WithConsoleOptions(opts ...console.Option) Option {
	return func(r *Runtime) {
		r.consoleOpts = append(r.consoleOpts, opts...)
	}
}

// WithShellOptions configures the shell.
func WithShellOptions(opts ...shell.Option) Option {
	return func(r *Runtime) {
		r.shellOpts = append(r.shellOpts, opts...)
	}
}

// NewRuntime creates a runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = script.NewResolver()
	}
	r.logger = logging.OrNull(r.logger).WithComponent("lua")
	return r
}

// Version identifies the runtime.
func (r *Runtime) Version() string {
	return fmt.Sprintf("%s (%s %s)", lua.LuaVersion, lua.PackageName, lua.PackageVersion)
}

// ScriptExecutor returns the executor for one-shot scripts.
func (r *Runtime) ScriptExecutor() script.ScriptExecutor {
	return &scriptExecutor{runtime: r}
}

// ConsoleWindow returns the windowed console surface.
func (r *Runtime) ConsoleWindow() script.ConsoleWindow {
	opts := append([]console.Option{console.WithLogger(r.logger)}, r.consoleOpts...)
	return console.New(r, opts...)
}

// ShellRunner returns the line-oriented shell surface.
func (r *Runtime) ShellRunner() script.ShellRunner {
	opts := append([]shell.Option{shell.WithLogger(r.logger)}, r.shellOpts...)
	return shell.New(r, opts...)
}

// CreateMagic implements script.MagicFactory.
func (r *Runtime) CreateMagic(kind script.MagicContext) (any, error) {
	return CreateMagic(kind, r.builderOpts...)
}

// newState creates a state bound to ns with the namespace's loader and
// bindings installed.
func (r *Runtime) newState(ns *script.Namespace, loader script.ResourceLoader, bindings *script.Context, out io.Writer) (*State, *Bridge, error) {
	if ns == nil {
		return nil, nil, &script.ConfigError{Op: "execute", Msg: "namespace is nil", Err: script.ErrNilArgument}
	}

	sl, err := BridgeResourceLoader(loader)
	if err != nil {
		return nil, nil, err
	}

	state, err := NewState(
		WithCapabilities(r.capabilities...),
		WithExecutionTimeout(r.executionTimeout),
		WithOutput(out),
	)
	if err != nil {
		return nil, nil, err
	}

	if err := InstallSourceLoader(state.L, sl, r.resolver); err != nil {
		state.Close()
		return nil, nil, err
	}

	r.logger.Debug("state for %s granted %v", ns, state.Sandbox().Capabilities())

	bridge := NewBridge(state.L, ns)
	if bindings != nil {
		var bindErr error
		bindings.Each(func(name string, value any) {
			if bindErr != nil {
				return
			}
			lv, err := bridge.Bind(value)
			if err != nil {
				bindErr = fmt.Errorf("binding %q: %w", name, err)
				return
			}
			state.SetGlobal(name, lv)
		})
		if bindErr != nil {
			state.Close()
			return nil, nil, bindErr
		}
	}

	return state, bridge, nil
}

type scriptExecutor struct {
	runtime *Runtime
}

// Execute resolves src and runs it in a fresh state. The first value the
// script returns is converted to Go and returned.
func (e *scriptExecutor) Execute(ctx context.Context, src script.Source, ns *script.Namespace, loader script.ResourceLoader, bindings *script.Context) (any, error) {
	r := e.runtime

	cs, err := r.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}

	state, bridge, err := r.newState(ns, loader, bindings, r.output)
	if err != nil {
		return nil, err
	}
	defer state.Close()

	r.logger.Debug("executing %s in %s", cs, ns)

	results, err := state.DoCode(ctx, cs)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return bridge.ToGoValue(results[0]), nil
}
