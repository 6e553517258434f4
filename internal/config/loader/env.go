package loader

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PropertyInfix marks environment variables that set build properties:
// LUABUILD_PROP_RELEASE_NAME sets the property "release.name".
const PropertyInfix = "PROP_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "LUABUILD_")
	mapping map[string]string // Env var -> config path
	lookup  func(string) (string, bool)
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "LUABUILD_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(prefix),
		lookup:  os.LookupEnv,
		environ: os.Environ,
	}
}

func defaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "LOG_LEVEL":         "runtime.log_level",
		prefix + "EXECUTION_TIMEOUT": "runtime.execution_timeout",
		prefix + "CAPABILITIES":      "runtime.capabilities",
		prefix + "SCRIPTS_PATH":      "scripts.path",
		prefix + "SCRIPTS_WATCH":     "scripts.watch",
		prefix + "HISTORY_FILE":      "shell.history_file",
		prefix + "BUILDDIR":          "project.builddir",
	}
}

// listPaths are settings whose variables hold several values.
var listPaths = map[string]string{
	"scripts.path":         string(filepath.ListSeparator),
	"runtime.capabilities": ",",
}

// Load reads environment variables and returns a configuration map.
// Empty values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for env, path := range l.mapping {
		val, ok := l.lookup(env)
		if !ok {
			continue
		}
		if sep, isList := listPaths[path]; isList {
			setByPath(config, path, splitList(val, sep))
			continue
		}
		setByPath(config, path, parseValue(val))
	}

	props := map[string]any{}
	propPrefix := l.prefix + PropertyInfix
	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, propPrefix) {
			continue
		}
		key := strings.TrimPrefix(name, propPrefix)
		if key == "" {
			continue
		}
		props[strings.ToLower(strings.ReplaceAll(key, "_", "."))] = value
	}
	if len(props) > 0 {
		config["properties"] = props
	}

	return config, nil
}

func splitList(s, sep string) []any {
	var out []any
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseValue converts bool and integer spellings. Everything else,
// durations included, stays a string for the decoder to interpret.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
