package script

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// CodeSource is a resolved, loadable script independent of its origin.
type CodeSource struct {
	// Name identifies the script in error messages and chunk names.
	Name string
	// CodeBase is the location the script is considered to live in.
	CodeBase string
	// Text is the script body.
	Text string
}

func (c *CodeSource) String() string {
	return fmt.Sprintf("CodeSource{name=%s, codeBase=%s}", c.Name, c.CodeBase)
}

// Resolver turns Sources into CodeSources.
// It neither retries nor caches.
type Resolver struct {
	client *http.Client
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the client used for http and https URLs.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.client = c
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{client: http.DefaultClient}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds a CodeSource from src.
//
// A Source with zero or several variants yields a *ConfigError. Read
// failures yield a *ResourceError wrapping the cause.
func (r *Resolver) Resolve(ctx context.Context, src Source) (*CodeSource, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	switch {
	case src.URL != nil:
		data, err := r.ReadURL(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		return &CodeSource{
			Name:     src.URL.String(),
			CodeBase: urlBase(src.URL),
			Text:     string(data),
		}, nil

	case src.File != "":
		abs, err := filepath.Abs(src.File)
		if err != nil {
			return nil, &ResourceError{Name: src.File, Err: err}
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, &ResourceError{Name: src.File, Err: err}
		}
		return &CodeSource{
			Name:     abs,
			CodeBase: "file:" + filepath.ToSlash(filepath.Dir(abs)),
			Text:     string(data),
		}, nil

	default:
		return &CodeSource{
			Name:     src.Inline.Name,
			CodeBase: src.Inline.CodeBase,
			Text:     src.Inline.Text,
		}, nil
	}
}

// ReadURL reads the content behind a file, http or https URL.
func (r *Resolver) ReadURL(ctx context.Context, u *url.URL) ([]byte, error) {
	switch u.Scheme {
	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		data, err := os.ReadFile(filepath.FromSlash(p))
		if err != nil {
			return nil, &ResourceError{Name: u.String(), Err: err}
		}
		return data, nil

	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, &ResourceError{Name: u.String(), Err: fmt.Errorf("%w: %v", ErrMalformedResource, err)}
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, &ResourceError{Name: u.String(), Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, &ResourceError{Name: u.String(), Err: ErrResourceNotFound}
		case resp.StatusCode != http.StatusOK:
			return nil, &ResourceError{Name: u.String(), Err: fmt.Errorf("unexpected status %s", resp.Status)}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ResourceError{Name: u.String(), Err: err}
		}
		return data, nil

	default:
		return nil, &ResourceError{
			Name: u.String(),
			Err:  fmt.Errorf("%w: unsupported scheme %q", ErrMalformedResource, u.Scheme),
		}
	}
}

// urlBase returns u with its last path element and query removed.
func urlBase(u *url.URL) string {
	base := *u
	base.RawQuery = ""
	base.Fragment = ""
	if base.Opaque != "" {
		base.Opaque = path.Dir(base.Opaque)
		return base.String()
	}
	base.Path = path.Dir(base.Path)
	base.RawPath = ""
	return base.String()
}
