package config

import (
	"errors"
	"fmt"

	"github.com/dshills/luabuild/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrFileNotFound indicates the configuration file doesn't exist.
	ErrFileNotFound = errors.New("config file not found")

	// ErrValidationFailed indicates a setting holds an unusable value.
	ErrValidationFailed = errors.New("validation failed")

	// ErrIncludeDepthExceeded indicates too many nested @include directives.
	ErrIncludeDepthExceeded = loader.ErrIncludeDepthExceeded

	// ErrUnsupportedFormat indicates a file extension with no decoder.
	ErrUnsupportedFormat = loader.ErrUnsupportedFormat
)

// ParseError represents an error while parsing a configuration file.
type ParseError = loader.ParseError

// ValidationError describes a validation failure for a setting.
type ValidationError struct {
	// Path is the setting path that failed validation.
	Path string
	// Message describes the validation error.
	Message string
	// Value is the invalid value.
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Is matches ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
