package script

// ClosureTarget is a host-defined callable exposed to scripts.
type ClosureTarget interface {
	Call(args []any) (any, error)
}

// ClosureFunc adapts a function to ClosureTarget. Name is reported when the
// target is printed.
type ClosureFunc struct {
	Name string
	Fn   func(args []any) (any, error)
}

// Func returns a named ClosureFunc.
func Func(name string, fn func(args []any) (any, error)) *ClosureFunc {
	return &ClosureFunc{Name: name, Fn: fn}
}

// Call invokes the wrapped function.
func (f *ClosureFunc) Call(args []any) (any, error) {
	return f.Fn(args)
}

func (f *ClosureFunc) String() string {
	if f.Name == "" {
		return "func"
	}
	return "func " + f.Name
}

// Exported is implemented by host objects whose methods scripts call by
// name. Each entry becomes a callable member of the object in the script.
type Exported interface {
	Exports() map[string]ClosureTarget
}
