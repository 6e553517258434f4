package goal

import "errors"

// Errors returned when a Runner cannot be created.
var (
	// ErrNoRuntime is returned when a Runner is created without a runtime.
	ErrNoRuntime = errors.New("no script runtime")

	// ErrInvalidBaseDir is returned when the project base directory is
	// not a readable directory.
	ErrInvalidBaseDir = errors.New("invalid base directory")
)

// BuildError signals that the build must stop. Scripts raise it through
// the fail binding.
type BuildError struct {
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	return e.Message
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// IsBuildError reports whether err carries a *BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}
