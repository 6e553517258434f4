package logging

import (
	"fmt"
	"strings"

	"github.com/dshills/luabuild/internal/script"
)

// ScriptLogger exposes a Logger to scripts. Each level is a callable that
// joins its arguments with spaces, the way print does.
type ScriptLogger struct {
	logger *Logger
}

// Facade wraps logger for use as a script binding.
func Facade(logger *Logger) *ScriptLogger {
	return &ScriptLogger{logger: OrNull(logger).WithComponent("script")}
}

// Exports implements script.Exported.
func (s *ScriptLogger) Exports() map[string]script.ClosureTarget {
	return map[string]script.ClosureTarget{
		"debug": s.level("debug", LevelDebug),
		"info":  s.level("info", LevelInfo),
		"warn":  s.level("warn", LevelWarn),
		"error": s.level("error", LevelError),
	}
}

func (s *ScriptLogger) level(name string, level Level) script.ClosureTarget {
	return script.Func(name, func(args []any) (any, error) {
		s.logger.Log(level, "%s", joinArgs(args))
		return nil, nil
	})
}

func (s *ScriptLogger) String() string {
	return "log"
}

func joinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			parts[i] = "nil"
			continue
		}
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
