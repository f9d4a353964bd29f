// Package parserregistry resolves probe parsers by name.
//
// The search path is an ordered list of sources. Every configured directory
// becomes a source serving YAML parser definitions, and the "builtin" entry
// serves the parsers compiled into the binary. NewFromPath appends the
// builtin entry after the configured directories, so a directory can shadow
// a compiled-in parser by defining one with the same name.
//
//	reg := parserregistry.NewFromPath([]string{"/etc/ngsi-adapter/parsers"})
//	p, err := reg.ResolveFromPath(r.URL.Path) // "/check_load"
//
// Resolution is memoized: the first call for a name scans the sources, and
// every later call returns the same instance without scanning again. Failed
// resolutions are not cached.
//
// Errors:
//   - NotFoundError when no source holds the name
//   - InvalidError when a source holds a match that does not satisfy the parser contract
//
// ResolveFromPath reports an empty name as ErrMissingResource and wraps any
// other failure as an unknown probe.
package parserregistry
