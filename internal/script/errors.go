package script

import (
	"errors"
	"fmt"
)

// Sentinel errors for adapter operations.
var (
	// ErrUnsupportedSource is returned for a Source with zero or several
	// populated variants.
	ErrUnsupportedSource = errors.New("unsupported script source")

	// ErrUnsupportedMagic is returned for an unknown MagicContext.
	ErrUnsupportedMagic = errors.New("unsupported magic context")

	// ErrInvalidArguments is returned when a callable is invoked with
	// arguments of the wrong shape.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrTooManyArguments is returned when a callable is invoked with more
	// arguments than any of its forms accepts.
	ErrTooManyArguments = errors.New("too many arguments")

	// ErrMalformedResource is returned when a resource reference cannot be
	// turned into a URL.
	ErrMalformedResource = errors.New("malformed resource reference")

	// ErrResourceNotFound is returned when a resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrNilArgument is returned when a required collaborator is nil.
	ErrNilArgument = errors.New("nil argument")
)

// ConfigError reports a defect in how the adapter was wired. It is always
// fatal and never retried.
type ConfigError struct {
	// Op is the operation that detected the defect.
	Op string
	// Msg overrides the sentinel's message when set.
	Msg string
	// Err is one of the package sentinels.
	Err error
}

func (e *ConfigError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err carries a ConfigError anywhere in its chain.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ResourceError reports a failure to locate or read a script resource.
type ResourceError struct {
	// Name is the location or logical name that failed.
	Name string
	// Err is the underlying cause.
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
