// Package main is the entry point for the luabuild command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dshills/luabuild/internal/automation"
	"github.com/dshills/luabuild/internal/config"
	"github.com/dshills/luabuild/internal/console"
	"github.com/dshills/luabuild/internal/goal"
	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
	"github.com/dshills/luabuild/internal/script/lua"
	"github.com/dshills/luabuild/internal/shell"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Process exit codes.
const (
	exitOK          = 0
	exitBuildFailed = 1
	exitConfig      = 2
	exitRequested   = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds the parsed command line.
type options struct {
	configPath  string
	dir         string
	logLevel    string
	source      string
	properties  propertyFlags
	showVersion bool
	showHelp    bool
	goal        string
	args        []string
}

// propertyFlags collects repeated -D key=value flags.
type propertyFlags map[string]string

func (p propertyFlags) String() string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + p[k]
	}
	return strings.Join(parts, ",")
}

func (p propertyFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("invalid property %q (want key=value)", s)
	}
	if !ok {
		// -Dflag defines an empty property.
		value = ""
	}
	p[name] = value
	return nil
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{properties: propertyFlags{}}

	fs := flag.NewFlagSet("luabuild", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.dir, "dir", ".", "Project directory searched for luabuild.toml or luabuild.yaml")
	fs.Var(opts.properties, "D", "Define a property as key=value (repeatable)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.source, "source", "", "Script for the execute goal: a file, a URL or inline code")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.showVersion, "v", false, "Show version information (shorthand)")
	fs.BoolVar(&opts.showHelp, "help", false, "Show help message")
	fs.BoolVar(&opts.showHelp, "h", false, "Show help message (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "luabuild - run Lua build scripts\n\n")
		fmt.Fprintf(stderr, "Usage: luabuild [options] <goal> [args]\n\n")
		fmt.Fprintf(stderr, "Goals:\n")
		fmt.Fprintf(stderr, "  execute     Run a script (from -source or the first argument)\n")
		fmt.Fprintf(stderr, "  console     Open the console window\n")
		fmt.Fprintf(stderr, "  shell       Start the interactive shell\n")
		fmt.Fprintf(stderr, "  version     Report the runtime and script path\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  luabuild execute build.lua            Run a script file\n")
		fmt.Fprintf(stderr, "  luabuild -source 'ant.echo(1)' execute Run inline code\n")
		fmt.Fprintf(stderr, "  luabuild -D env=prod shell            Shell with a property set\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showHelp {
		fs.Usage()
		return nil, flag.ErrHelp
	}

	if opts.logLevel != "" && !logging.ValidLevel(opts.logLevel) {
		return nil, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", opts.logLevel)
	}

	if rest := fs.Args(); len(rest) > 0 {
		opts.goal = rest[0]
		opts.args = rest[1:]
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "luabuild %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return exitOK
	}
	if opts.goal == "" {
		fmt.Fprintln(stderr, "Error: no goal given (execute, console, shell or version)")
		return exitConfig
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Runtime.LogLevel),
		Output: stderr,
		Prefix: "luabuild",
	})
	logging.SetDefault(logger)

	runner, err := newRunner(cfg, logger, stdout)
	if err != nil {
		logger.Error("%v", err)
		return exitCode(err)
	}

	err = runGoal(ctx, runner, opts)
	code := exitCode(err)
	switch code {
	case exitOK:
	case exitRequested:
		var ee *guard.ExitError
		errors.As(err, &ee)
		logger.Warn("script requested exit code %d; not exiting the process with it", ee.Code)
	default:
		logger.Error("%s failed: %v", opts.goal, err)
	}
	return code
}

// loadConfig layers the project file, the environment and -D overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadDir(opts.dir)
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyOverrides(opts.properties)
	if opts.logLevel != "" {
		cfg.Runtime.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func newRunner(cfg *config.Config, logger *logging.Logger, stdout io.Writer) (*goal.Runner, error) {
	caps := make([]lua.Capability, 0, len(cfg.Runtime.Capabilities))
	for _, name := range cfg.Runtime.Capabilities {
		c, err := lua.ParseCapability(name)
		if err != nil {
			return nil, &script.ConfigError{Op: "runtime", Msg: err.Error(), Err: script.ErrInvalidArguments}
		}
		caps = append(caps, c)
	}

	rt := lua.NewRuntime(
		lua.WithRuntimeCapabilities(caps...),
		lua.WithTimeout(cfg.Runtime.ExecutionTimeout),
		lua.WithLogger(logger),
		lua.WithScriptOutput(stdout),
		lua.WithBuilderOptions(
			automation.WithNewProject(cfg.Project.Name, cfg.Project.BaseDir),
			automation.WithOutput(stdout),
			automation.WithLogger(logger),
		),
		lua.WithConsoleOptions(console.WithTitle("luabuild: "+cfg.Project.Name)),
		lua.WithShellOptions(shell.WithHistoryFile(cfg.Shell.HistoryFile)),
	)

	return goal.New(rt, cfg,
		goal.WithLogger(logger),
		goal.WithOutput(stdout),
		goal.WithVersion(version),
	)
}

func runGoal(ctx context.Context, runner *goal.Runner, opts *options) error {
	switch opts.goal {
	case "execute":
		spec := opts.source
		if spec == "" && len(opts.args) > 0 {
			spec = strings.Join(opts.args, " ")
		}
		src, err := script.ParseSource(spec)
		if err != nil {
			return err
		}
		_, err = runner.Execute(ctx, src)
		return err
	case "console":
		return runner.Console(ctx)
	case "shell":
		return runner.Shell(ctx)
	case "version":
		return runner.Version(ctx)
	default:
		return &script.ConfigError{Op: "luabuild", Msg: fmt.Sprintf("unknown goal %q", opts.goal), Err: script.ErrInvalidArguments}
	}
}

// exitCode maps a goal's error to the process exit code.
func exitCode(err error) int {
	var parseErr *config.ParseError
	switch {
	case err == nil:
		return exitOK
	case guard.IsExitRequest(err):
		return exitRequested
	case script.IsConfigError(err),
		errors.As(err, &parseErr),
		errors.Is(err, config.ErrValidationFailed),
		errors.Is(err, config.ErrFileNotFound),
		errors.Is(err, config.ErrIncludeDepthExceeded),
		errors.Is(err, config.ErrUnsupportedFormat):
		return exitConfig
	default:
		return exitBuildFailed
	}
}
