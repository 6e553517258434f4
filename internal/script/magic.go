package script

import "fmt"

// MagicContext names a pre-built object injected into script bindings.
//
// The set is closed: new objects are added as new constants with a
// construction case in the runtime, never through configuration.
type MagicContext int

const (
	// MagicAntBuilder is the legacy build-automation facade.
	MagicAntBuilder MagicContext = iota + 1
)

// String returns the binding name of the magic context.
func (m MagicContext) String() string {
	switch m {
	case MagicAntBuilder:
		return "ant"
	default:
		return fmt.Sprintf("MagicContext(%d)", int(m))
	}
}

// MagicContexts returns every defined magic context.
func MagicContexts() []MagicContext {
	return []MagicContext{MagicAntBuilder}
}

// ParseMagicContext looks up a magic context by binding name.
func ParseMagicContext(name string) (MagicContext, error) {
	for _, m := range MagicContexts() {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, &ConfigError{
		Op:  "magic context",
		Msg: "unsupported magic context: " + name,
		Err: ErrUnsupportedMagic,
	}
}
