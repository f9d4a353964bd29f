package parserregistry

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/c360/ngsiadapter/parser"
	"github.com/c360/ngsiadapter/parser/declarative"
	"github.com/c360/ngsiadapter/parser/nagios"
	"github.com/c360/ngsiadapter/parser/nam"
)

// BuiltinEntry is the search path entry naming the compiled-in parser catalog.
const BuiltinEntry = "builtin"

// Source is one entry of the parser search path.
type Source interface {
	// Lookup returns the implementation held for name. found is false when the
	// source has nothing under that name; err is set when it has a match that
	// could not be loaded.
	Lookup(name string) (impl any, found bool, err error)
	// String identifies the source for deduplication and error messages.
	String() string
}

// builtinSource serves the parsers compiled into the binary.
type builtinSource struct {
	factories map[string]func() parser.Parser
}

// Builtin returns the source of compiled-in parsers.
func Builtin() Source {
	return &builtinSource{factories: builtinFactories()}
}

func builtinFactories() map[string]func() parser.Parser {
	factories := make(map[string]func() parser.Parser)
	for name, f := range nagios.Factories() {
		factories[name] = f
	}
	for name, f := range nam.Factories() {
		factories[name] = f
	}
	return factories
}

// BuiltinNames returns the sorted names of the compiled-in parsers.
func BuiltinNames() []string {
	factories := builtinFactories()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *builtinSource) Lookup(name string) (any, bool, error) {
	factory, ok := s.factories[name]
	if !ok {
		return nil, false, nil
	}
	return factory(), true, nil
}

func (s *builtinSource) String() string {
	return BuiltinEntry
}

// dirSource serves declarative parser definitions stored in a directory.
type dirSource struct {
	dir string
}

// Dir returns a source reading "<name>.yaml" definitions from dir.
func Dir(dir string) Source {
	return &dirSource{dir: filepath.Clean(dir)}
}

func (s *dirSource) Lookup(name string) (any, bool, error) {
	for _, ext := range declarative.Extensions {
		raw, err := os.ReadFile(filepath.Join(s.dir, name+ext))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, true, err
		}
		p, err := declarative.Load(name, raw)
		if err != nil {
			return nil, true, err
		}
		return p, true, nil
	}
	return nil, false, nil
}

func (s *dirSource) String() string {
	return s.dir
}

// SourcesFromPath turns search path entries into sources. The BuiltinEntry
// token selects the compiled-in catalog; every other entry is a directory.
func SourcesFromPath(entries []string) []Source {
	sources := make([]Source, 0, len(entries))
	for _, entry := range entries {
		if entry == BuiltinEntry {
			sources = append(sources, Builtin())
			continue
		}
		sources = append(sources, Dir(entry))
	}
	return sources
}
