package script

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
)

// DefaultCodeBase is the synthetic origin given to inline scripts that do
// not name one.
const DefaultCodeBase = "/luabuild/inline"

// Inline is script text supplied directly rather than read from a location.
type Inline struct {
	// Text is the script body.
	Text string
	// Name is the logical file name, e.g. "script1.lua".
	Name string
	// CodeBase is the synthetic origin path reported in errors.
	CodeBase string
}

// Source names where a script comes from. Exactly one field is set.
type Source struct {
	URL    *url.URL
	File   string
	Inline *Inline
}

// FromURL returns a Source for a local or remote URL.
func FromURL(u *url.URL) Source {
	return Source{URL: u}
}

// FromFile returns a Source for a file path.
func FromFile(path string) Source {
	return Source{File: path}
}

// FromInline returns a Source for inline script text.
func FromInline(text, name, codeBase string) Source {
	return Source{Inline: &Inline{Text: text, Name: name, CodeBase: codeBase}}
}

// Validate checks that exactly one variant is populated.
func (s Source) Validate() error {
	n := 0
	if s.URL != nil {
		n++
	}
	if s.File != "" {
		n++
	}
	if s.Inline != nil {
		n++
	}
	if n != 1 {
		return &ConfigError{
			Op:  "resolve",
			Msg: fmt.Sprintf("unable to create code source from: %s", s),
			Err: ErrUnsupportedSource,
		}
	}
	return nil
}

func (s Source) String() string {
	var parts []string
	if s.URL != nil {
		parts = append(parts, "url="+s.URL.String())
	}
	if s.File != "" {
		parts = append(parts, "file="+s.File)
	}
	if s.Inline != nil {
		parts = append(parts, fmt.Sprintf("inline=%s@%s", s.Inline.Name, s.Inline.CodeBase))
	}
	return "Source{" + strings.Join(parts, ", ") + "}"
}

var inlineCounter atomic.Int64

// NextInlineName returns a fresh logical name for an inline script.
func NextInlineName() string {
	return fmt.Sprintf("script%d.lua", inlineCounter.Add(1))
}

// ParseSource interprets a command-line value as a Source.
//
// http:, https: and file: prefixes yield a URL source, a leading '@' or an
// existing regular file yields a file source, and anything else is treated
// as inline script text.
func ParseSource(spec string) (Source, error) {
	if strings.TrimSpace(spec) == "" {
		return Source{}, &ConfigError{Op: "parse source", Msg: "empty source", Err: ErrUnsupportedSource}
	}

	switch {
	case strings.HasPrefix(spec, "http://"),
		strings.HasPrefix(spec, "https://"),
		strings.HasPrefix(spec, "file:"):
		u, err := url.Parse(spec)
		if err != nil {
			return Source{}, &ResourceError{Name: spec, Err: fmt.Errorf("%w: %v", ErrMalformedResource, err)}
		}
		return FromURL(u), nil
	case strings.HasPrefix(spec, "@"):
		return FromFile(spec[1:]), nil
	}

	if info, err := os.Stat(spec); err == nil && info.Mode().IsRegular() {
		return FromFile(spec), nil
	}

	return FromInline(spec, NextInlineName(), DefaultCodeBase), nil
}
