package lua

import (
	"fmt"

	"github.com/dshills/luabuild/internal/automation"
	"github.com/dshills/luabuild/internal/script"
)

// CreateMagic builds the object for kind.
//
// For MagicAntBuilder the builder's first build listener is switched to
// plain output when it supports it, so task output lines up with the
// host's own log lines.
func CreateMagic(kind script.MagicContext, opts ...automation.Option) (any, error) {
	switch kind {
	case script.MagicAntBuilder:
		b := automation.NewBuilder(opts...)
		if listeners := b.Project().BuildListeners(); len(listeners) > 0 {
			if p, ok := listeners[0].(automation.PlainOutputSetter); ok {
				p.SetPlainOutput(true)
			}
		}
		return b, nil
	default:
		return nil, &script.ConfigError{
			Op:  "magic context",
			Msg: fmt.Sprintf("unsupported magic context: %v", kind),
			Err: script.ErrUnsupportedMagic,
		}
	}
}
