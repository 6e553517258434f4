// Package loader reads configuration files and environment variables into
// generic maps.
//
// Files are TOML or YAML, chosen by extension. A file may pull in others
// with an "@include" key; included values have lower priority than the
// including file.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrIncludeDepthExceeded is returned when @include nesting is too deep,
// which usually means a cycle.
var ErrIncludeDepthExceeded = errors.New("include depth exceeded")

// ErrUnsupportedFormat is returned for a file extension with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	fs.FS
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// Open implements fs.FS.
func (OSFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}

// FileLoader loads TOML and YAML configuration files.
type FileLoader struct {
	fs FileSystem
}

// NewFileLoader creates a loader reading from the OS file system.
func NewFileLoader() *FileLoader {
	return &FileLoader{fs: DefaultFS()}
}

// NewFileLoaderWithFS creates a loader with a custom file system.
func NewFileLoaderWithFS(fsys FileSystem) *FileLoader {
	return &FileLoader{fs: fsys}
}

// LoadFrom reads one file. A missing file yields nil, nil.
func (l *FileLoader) LoadFrom(path string) (map[string]any, error) {
	decode, err := decoderFor(path)
	if err != nil {
		return nil, err
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return decode(path, data)
}

// LoadWithIncludes loads path and the files its @include key names,
// recursively up to maxDepth levels.
func (l *FileLoader) LoadWithIncludes(path string, maxDepth int) (map[string]any, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncludeDepthExceeded, path)
	}

	config, err := l.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, nil
	}

	includes, hasIncludes := config["@include"]
	if !hasIncludes {
		return config, nil
	}
	delete(config, "@include")

	var includeList []string
	switch v := includes.(type) {
	case string:
		includeList = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: @include must be string or array of strings", path)
			}
			includeList = append(includeList, s)
		}
	default:
		return nil, fmt.Errorf("%s: @include must be string or array of strings, got %T", path, includes)
	}

	baseDir := filepath.Dir(path)
	merged := map[string]any{}
	for _, inc := range includeList {
		incPath := inc
		if !filepath.IsAbs(inc) {
			incPath = filepath.Join(baseDir, inc)
		}

		incConfig, err := l.LoadWithIncludes(incPath, maxDepth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", incPath, err)
		}
		if incConfig == nil {
			return nil, fmt.Errorf("loading include %s: %w", incPath, fs.ErrNotExist)
		}
		// Later includes override earlier ones
		merged = DeepMerge(merged, incConfig)
	}

	// The including file overrides everything it includes
	return DeepMerge(merged, config), nil
}

// Supported reports whether path has an extension this package decodes.
func Supported(path string) bool {
	_, err := decoderFor(path)
	return err == nil
}

func decoderFor(path string) (func(string, []byte) (map[string]any, error), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return parseTOML, nil
	case ".yaml", ".yml":
		return parseYAML, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	if src == nil {
		return dst
	}

	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}

	return dst
}
