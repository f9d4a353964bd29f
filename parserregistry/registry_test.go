package parserregistry

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
	"github.com/c360/ngsiadapter/parser/nagios"
)

// countingSource records how often the registry scans it.
type countingSource struct {
	id      string
	impls   map[string]func() any
	lookups atomic.Int32
}

func (s *countingSource) Lookup(name string) (any, bool, error) {
	s.lookups.Add(1)
	f, ok := s.impls[name]
	if !ok {
		return nil, false, nil
	}
	return f(), true, nil
}

func (s *countingSource) String() string { return s.id }

type attrsOnly struct{}

func (attrsOnly) ContextAttrs(*parser.EntityData) (parser.Attributes, error) {
	return parser.Attributes{"x": 1.0}, nil
}

func loadSource(id string) *countingSource {
	return &countingSource{
		id: id,
		impls: map[string]func() any{
			"check_load": func() any { return nagios.NewLoad() },
		},
	}
}

func TestResolve_CachesInstance(t *testing.T) {
	src := loadSource("dir-a")
	reg := New([]Source{src})

	first, err := reg.Resolve("check_load")
	require.NoError(t, err)
	second, err := reg.Resolve("check_load")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), src.lookups.Load())
	assert.Equal(t, []string{"check_load"}, reg.Cached())
}

func TestResolve_ConcurrentFirstResolution(t *testing.T) {
	src := loadSource("dir-a")
	reg := New([]Source{src})

	var wg sync.WaitGroup
	results := make([]parser.Parser, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Resolve("check_load")
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	assert.LessOrEqual(t, src.lookups.Load(), int32(len(results)))
	assert.Equal(t, []string{"check_load"}, reg.Cached())
}

// gatedSource blocks lookups of one name until released.
type gatedSource struct {
	name    string
	entered chan struct{}
	release chan struct{}
}

func newGatedSource(name string) *gatedSource {
	return &gatedSource{
		name:    name,
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
}

func (s *gatedSource) Lookup(name string) (any, bool, error) {
	if name != s.name {
		return nil, false, nil
	}
	s.entered <- struct{}{}
	<-s.release
	return nagios.NewLoad(), true, nil
}

func (s *gatedSource) String() string { return "gated" }

func TestResolve_ScanDoesNotBlockCachedReads(t *testing.T) {
	gated := newGatedSource("check_slow")
	reg := New([]Source{gated, loadSource("dir-a")})

	cached, err := reg.Resolve("check_load")
	require.NoError(t, err)

	slow := make(chan error, 1)
	go func() {
		_, err := reg.Resolve("check_slow")
		slow <- err
	}()
	<-gated.entered

	hit := make(chan parser.Parser, 1)
	go func() {
		p, _ := reg.Resolve("check_load")
		hit <- p
	}()

	select {
	case p := <-hit:
		assert.Same(t, cached, p)
	case <-time.After(time.Second):
		t.Fatal("cached resolution waited for a scan of another name")
	}

	close(gated.release)
	require.NoError(t, <-slow)
	assert.Equal(t, []string{"check_load", "check_slow"}, reg.Cached())
}

func TestResolve_KeepsFirstStoredInstance(t *testing.T) {
	gated := newGatedSource("check_slow")
	reg := New([]Source{gated})

	results := make(chan parser.Parser, 2)
	for range 2 {
		go func() {
			p, err := reg.Resolve("check_slow")
			assert.NoError(t, err)
			results <- p
		}()
	}

	// both callers scan before either stores its instance
	<-gated.entered
	<-gated.entered
	close(gated.release)

	first, second := <-results, <-results
	require.NotNil(t, first)
	assert.Same(t, first, second)

	stored, err := reg.Resolve("check_slow")
	require.NoError(t, err)
	assert.Same(t, first, stored)
}

func TestResolve_FirstSourceWins(t *testing.T) {
	first := &countingSource{id: "first", impls: map[string]func() any{
		"probe": func() any { return attrsOnly{} },
	}}
	second := loadSource("second")
	second.impls["probe"] = func() any { return nagios.NewLoad() }

	reg := New([]Source{first, second})
	p, err := reg.Resolve("probe")
	require.NoError(t, err)

	// composed onto the base behavior, so ParseRequest must be implemented
	_, err = p.ParseRequest(parser.Request{Body: []byte("x")})
	assert.ErrorIs(t, err, errors.ErrMustImplement)
	assert.Equal(t, int32(0), second.lookups.Load())
}

func TestNew_DeduplicatesSources(t *testing.T) {
	a := loadSource("dir-a")
	b := loadSource("dir-b")
	reg := New([]Source{a, b, loadSource("dir-a"), nil})
	assert.Equal(t, []string{"dir-a", "dir-b"}, reg.SearchPath())
}

func TestNewFromPath(t *testing.T) {
	dir := t.TempDir()
	reg := NewFromPath([]string{dir, dir, BuiltinEntry})
	assert.Equal(t, []string{filepath.Clean(dir), BuiltinEntry}, reg.SearchPath())
}

func TestResolve_NotFound(t *testing.T) {
	src := loadSource("dir-a")
	reg := New([]Source{src})

	for _, name := range []string{"unknown_probe", "../check_load", "a/b", ""} {
		p, err := reg.Resolve(name)
		assert.Nil(t, p)
		require.Error(t, err, name)
		assert.True(t, errors.IsKind(err, errors.KindNotFound), name)
		assert.ErrorIs(t, err, errors.ErrParserNotFound)
	}
	assert.Contains(t, func() string { _, err := reg.Resolve("nope"); return err.Error() }(), "dir-a")
	assert.Empty(t, reg.Cached())
}

func TestResolve_Invalid(t *testing.T) {
	src := &countingSource{id: "dir", impls: map[string]func() any{
		"bogus": func() any { return struct{}{} },
	}}
	reg := New([]Source{src})

	_, err := reg.Resolve("bogus")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalid))

	// failures are not cached
	_, _ = reg.Resolve("bogus")
	assert.Equal(t, int32(2), src.lookups.Load())
}

func TestResolveFromPath(t *testing.T) {
	reg := NewFromPath(nil)

	p, err := reg.ResolveFromPath("/check_load")
	require.NoError(t, err)
	assert.Equal(t, "check_load", p.Name())

	_, err = reg.ResolveFromPath("/")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingResource)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	_, err = reg.ResolveFromPath("")
	assert.ErrorIs(t, err, errors.ErrMissingResource)

	_, err = reg.ResolveFromPath("/unknown_probe")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	assert.Contains(t, err.Error(), `unknown probe "unknown_probe"`)
	assert.NotErrorIs(t, err, errors.ErrMissingResource)
}

func TestDirSource_Definitions(t *testing.T) {
	dir := t.TempDir()
	def := "attributes:\n  - name: cpuLoadPct\n    pattern: 'load average: ([0-9.]+)'\n    numeric: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "check_load.yaml"), []byte(def), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("family: nagios\n"), 0o644))

	reg := NewFromPath([]string{dir})

	// directory shadows the builtin parser of the same name
	p, err := reg.Resolve("check_load")
	require.NoError(t, err)
	_, isBuiltin := p.(*nagios.Load)
	assert.False(t, isBuiltin)

	data, err := p.ParseRequest(parser.Request{Body: []byte("OK - load average: 0.42, 0.1, 0.1")})
	require.NoError(t, err)
	attrs, err := p.ContextAttrs(data)
	require.NoError(t, err)
	assert.Equal(t, 0.42, attrs["cpuLoadPct"])

	_, err = reg.ResolveFromPath("/broken")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalid))

	// falls through to builtin
	p, err = reg.Resolve("check_disk")
	require.NoError(t, err)
	_, isDisk := p.(*nagios.Disk)
	assert.True(t, isDisk)
}

func TestBuiltinNames(t *testing.T) {
	names := BuiltinNames()
	assert.Contains(t, names, "check_load")
	assert.Contains(t, names, "owd")
	assert.IsIncreasing(t, names)
}
