package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/luabuild/internal/config/loader"
	"github.com/dshills/luabuild/internal/logging"
)

// FileNames are the project file names Discover looks for, in order.
var FileNames = []string{"luabuild.toml", "luabuild.yaml", "luabuild.yml"}

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "LUABUILD_"

// MaxIncludeDepth bounds @include nesting.
const MaxIncludeDepth = 8

// Config is the project configuration.
type Config struct {
	Project    ProjectConfig     `yaml:"project"`
	Properties map[string]string `yaml:"properties"`
	Scripts    ScriptsConfig     `yaml:"scripts"`
	Runtime    RuntimeConfig     `yaml:"runtime"`
	Shell      ShellConfig       `yaml:"shell"`

	// Path is the file the configuration was read from. It is empty when
	// no project file exists.
	Path string `yaml:"-"`
}

// ProjectConfig describes the project being built.
type ProjectConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	BaseDir  string `yaml:"basedir"`
	BuildDir string `yaml:"builddir"`
}

// ScriptsConfig locates build scripts.
type ScriptsConfig struct {
	// Path lists directories searched by require, in order.
	Path []string `yaml:"path"`
	// Watch drops cached lookups when files in Path change.
	Watch bool `yaml:"watch"`
}

// RuntimeConfig configures the script runtime.
type RuntimeConfig struct {
	// Capabilities granted to scripts, e.g. "filesystem.read".
	Capabilities []string `yaml:"capabilities"`
	// ExecutionTimeout bounds each script run. Zero means unbounded.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	// LogLevel is the minimum level logged.
	LogLevel string `yaml:"log_level"`
}

// ShellConfig configures the interactive shell.
type ShellConfig struct {
	// HistoryFile persists shell history. Empty disables persistence.
	HistoryFile string `yaml:"history_file"`
}

// DefaultConfig returns the configuration used when no file sets a value.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			BaseDir:  ".",
			BuildDir: "build",
		},
		Properties: map[string]string{},
		Scripts: ScriptsConfig{
			Path: []string{"scripts"},
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
		Shell: ShellConfig{
			HistoryFile: defaultHistoryFile(),
		},
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".luabuild_history")
}

// Discover returns the first project file in dir.
func Discover(dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrFileNotFound, dir)
}

// LoadDir loads the project file in dir, or the defaults with dir as the
// base directory when there is none.
func LoadDir(dir string) (*Config, error) {
	path, err := Discover(dir)
	if err == nil {
		return Load(path)
	}
	if !errors.Is(err, ErrFileNotFound) {
		return nil, err
	}
	return load("", dir, nil)
}

// Load reads the project file at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	if !loader.Supported(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	raw, err := loader.NewFileLoader().LoadWithIncludes(abs, MaxIncludeDepth)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return load(abs, filepath.Dir(abs), raw)
}

func load(path, dir string, raw map[string]any) (*Config, error) {
	env, err := loader.NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		return nil, err
	}
	merged := loader.DeepMerge(raw, env)

	cfg := DefaultConfig()
	if err := decode(path, merged, cfg); err != nil {
		return nil, err
	}
	cfg.Path = path
	if err := cfg.resolvePaths(dir); err != nil {
		return nil, err
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.BaseDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode lays the merged settings over cfg. Unknown keys are errors.
func decode(path string, settings map[string]any, cfg *Config) error {
	if len(settings) == 0 {
		return nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

// resolvePaths makes relative paths absolute. The base directory is
// relative to dir; the build directory and script path are relative to
// the base directory.
func (c *Config) resolvePaths(dir string) error {
	base := c.Project.BaseDir
	if !filepath.IsAbs(base) {
		base = filepath.Join(dir, base)
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	c.Project.BaseDir = base

	if c.Project.BuildDir != "" && !filepath.IsAbs(c.Project.BuildDir) {
		c.Project.BuildDir = filepath.Join(base, c.Project.BuildDir)
	}
	for i, p := range c.Scripts.Path {
		if p != "" && !filepath.IsAbs(p) {
			c.Scripts.Path[i] = filepath.Join(base, p)
		}
	}
	return nil
}

// Validate checks every setting and reports all failures together.
func (c *Config) Validate() error {
	var errs []error
	fail := func(path, msg string, value any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if c.Project.BaseDir == "" {
		fail("project.basedir", "must not be empty", c.Project.BaseDir)
	} else if info, err := os.Stat(c.Project.BaseDir); err != nil || !info.IsDir() {
		fail("project.basedir", "must be an existing directory", c.Project.BaseDir)
	}
	for i, p := range c.Scripts.Path {
		if p == "" {
			fail(fmt.Sprintf("scripts.path[%d]", i), "must not be empty", p)
		}
	}
	if !logging.ValidLevel(c.Runtime.LogLevel) {
		fail("runtime.log_level", "must be one of debug, info, warn, error", c.Runtime.LogLevel)
	}
	if c.Runtime.ExecutionTimeout < 0 {
		fail("runtime.execution_timeout", "must not be negative", c.Runtime.ExecutionTimeout)
	}
	for name := range c.Properties {
		if name == "" {
			fail("properties", "property names must not be empty", name)
		}
	}

	return errors.Join(errs...)
}

// ApplyOverrides sets properties, replacing configured values.
func (c *Config) ApplyOverrides(props map[string]string) {
	if c.Properties == nil {
		c.Properties = map[string]string{}
	}
	maps.Copy(c.Properties, props)
}

// PropertyNames returns the property names, sorted.
func (c *Config) PropertyNames() []string {
	return slices.Sorted(maps.Keys(c.Properties))
}
