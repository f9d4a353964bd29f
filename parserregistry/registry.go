package parserregistry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// Registry resolves parsers by probe name. It searches an ordered,
// deduplicated list of sources, and the first source holding a match wins.
// Resolved parsers are cached for the lifetime of the registry.
type Registry struct {
	sources []Source
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]parser.Parser
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report resolutions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a registry over the given sources. Sources sharing the same
// identity are kept only once, at their first position.
func New(sources []Source, opts ...Option) *Registry {
	r := &Registry{
		logger: slog.Default(),
		cache:  make(map[string]parser.Parser),
	}
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if s == nil || seen[s.String()] {
			continue
		}
		seen[s.String()] = true
		r.sources = append(r.sources, s)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromPath creates a registry searching the given directories, followed by
// the compiled-in catalog.
func NewFromPath(entries []string, opts ...Option) *Registry {
	path := append(append([]string{}, entries...), BuiltinEntry)
	return New(SourcesFromPath(path), opts...)
}

// SearchPath returns the identities of the sources in search order.
func (r *Registry) SearchPath() []string {
	path := make([]string, len(r.sources))
	for i, s := range r.sources {
		path[i] = s.String()
	}
	return path
}

// Resolve returns the parser registered under name. The first resolution of a
// name scans the sources without holding the lock; later ones return the
// cached instance.
func (r *Registry) Resolve(name string) (parser.Parser, error) {
	r.mu.RLock()
	p, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.scan(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A concurrent resolution may have stored it first
	if existing, ok := r.cache[name]; ok {
		return existing, nil
	}
	r.cache[name] = p
	r.logger.Debug("Parser resolved", "parser", name, "cached", len(r.cache))
	return p, nil
}

// ResolveFromPath resolves the parser named by a request path, such as
// "/check_load". An empty name fails with a missing resource error, an
// unresolvable one with an unknown probe error.
func (r *Registry) ResolveFromPath(path string) (parser.Parser, error) {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return nil, errors.NotFound(errors.ErrMissingResource, "parserregistry", "ResolveFromPath")
	}

	p, err := r.Resolve(name)
	if err != nil {
		wrapped := fmt.Errorf("unknown probe %q (%w)", name, err)
		if errors.IsKind(err, errors.KindInvalid) {
			return nil, errors.Invalid(wrapped, "parserregistry", "ResolveFromPath")
		}
		return nil, errors.NotFound(wrapped, "parserregistry", "ResolveFromPath")
	}
	return p, nil
}

// Cached returns the sorted names resolved so far.
func (r *Registry) Cached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cache))
	for name := range r.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) scan(name string) (parser.Parser, error) {
	if !validName(name) {
		return nil, r.notFound(name)
	}

	for _, s := range r.sources {
		impl, found, err := s.Lookup(name)
		if !found {
			continue
		}
		if err != nil {
			if errors.IsKind(err, errors.KindInvalid) {
				return nil, err
			}
			wrapped := fmt.Errorf("%w module %q at %s: %v", errors.ErrParserInvalid, name, s, err)
			return nil, errors.Invalid(wrapped, "parserregistry", "Resolve")
		}
		return parser.Compose(name, impl)
	}
	return nil, r.notFound(name)
}

func (r *Registry) notFound(name string) error {
	err := fmt.Errorf("%w: module %q could not be found at path %s",
		errors.ErrParserNotFound, name, strings.Join(r.SearchPath(), ":"))
	return errors.NotFound(err, "parserregistry", "Resolve")
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
