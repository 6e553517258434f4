package script

import "net/url"

// ResourceLoader resolves logical script names to locations.
//
// An unresolvable name returns (nil, nil). A name that cannot be expressed
// as a URL returns an error matching ErrMalformedResource.
type ResourceLoader interface {
	LoadResource(name string) (*url.URL, error)
}

// ResourceLoaderFunc adapts a function to ResourceLoader.
type ResourceLoaderFunc func(name string) (*url.URL, error)

// LoadResource calls f(name).
func (f ResourceLoaderFunc) LoadResource(name string) (*url.URL, error) {
	return f(name)
}
