package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codeindexd/internal/contentcache"
	"github.com/standardbeagle/codeindexd/internal/index"
	"github.com/standardbeagle/codeindexd/internal/types"
)

func setup(t *testing.T) (string, *index.Store, *contentcache.Cache) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc Foo() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package a\nfunc Bar() {\n\tFoo()\n}\n"), 0o644))

	idx := index.New()
	idx.AddFile("a.go", types.FileRecord{Language: "go"})
	idx.AddFile("b.go", types.FileRecord{Language: "go"})
	idx.AddSymbol("Foo", types.SymbolRecord{Kind: types.KindFunction, File: "a.go", Line: 2, References: []string{"b.go:3"}})
	idx.AddSymbol("Bar", types.SymbolRecord{Kind: types.KindFunction, File: "b.go", Line: 2, CalledBy: map[string]struct{}{}})
	idx.MutateSymbol("Foo", "a.go", 2, func(s *types.SymbolRecord) {
		s.CalledBy = map[string]struct{}{"Bar": {}}
	})

	cache := contentcache.New(contentcache.Config{MaxFiles: 10, MaxMemoryBytes: 1 << 20})
	return dir, idx, cache
}

func TestSearchText(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Text, Pattern: "func", CaseSensitive: true})
	require.Nil(t, err)
	require.Len(t, hits, 2)
}

func TestSearchTextRespectsLimit(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Text, Pattern: "func", CaseSensitive: true, Limit: 1})
	require.Nil(t, err)
	require.Len(t, hits, 1)
}

func TestSearchRegexRejectsUnsafePattern(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	_, err := e.Search(Query{Type: Regex, Pattern: "(a+)+"})
	require.NotNil(t, err)
	require.Equal(t, "input.unsafe_regex", err.Kind)
}

func TestSearchRegexMatches(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Regex, Pattern: `func (Foo|Bar)`})
	require.Nil(t, err)
	require.Len(t, hits, 2)
}

func TestSearchSymbol(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Symbol, Pattern: "Fo"})
	require.Nil(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Foo", hits[0].Symbol)
}

func TestSearchReferences(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: References, Pattern: "Foo"})
	require.Nil(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "b.go", hits[0].File)
	require.Equal(t, 3, hits[0].Line)
}

func TestSearchDefinition(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Definition, Pattern: "Foo"})
	require.Nil(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "definition", hits[0].RecType)
}

func TestSearchCallers(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Callers, Pattern: "Foo"})
	require.Nil(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Bar", hits[0].Symbol)
}

func TestSearchCallersRespectsLimit(t *testing.T) {
	dir, idx, cache := setup(t)
	idx.AddSymbol("Baz", types.SymbolRecord{Kind: types.KindFunction, File: "b.go", Line: 4})
	idx.MutateSymbol("Foo", "a.go", 2, func(s *types.SymbolRecord) {
		s.CalledBy["Baz"] = struct{}{}
	})
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Callers, Pattern: "Foo", Limit: 1})
	require.Nil(t, err)
	require.Len(t, hits, 1)
}

func TestSearchHierarchy(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Hierarchy, Pattern: "Foo"})
	require.Nil(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "Foo", hits[0].Symbol)
	require.Equal(t, -1, hits[1].Level)
}

func TestSearchHierarchyRespectsLimit(t *testing.T) {
	dir, idx, cache := setup(t)
	idx.AddSymbol("Baz", types.SymbolRecord{Kind: types.KindFunction, File: "b.go", Line: 4})
	idx.MutateSymbol("Foo", "a.go", 2, func(s *types.SymbolRecord) {
		s.CalledBy["Baz"] = struct{}{}
	})
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Hierarchy, Pattern: "Foo", Limit: 1})
	require.Nil(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Foo", hits[0].Symbol)
}

func TestSearchWithFilePattern(t *testing.T) {
	dir, idx, cache := setup(t)
	e := New(dir, idx, cache)

	hits, err := e.Search(Query{Type: Text, Pattern: "func", CaseSensitive: true, FilePattern: "a.*"})
	require.Nil(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "a.go", hits[0].File)
}
