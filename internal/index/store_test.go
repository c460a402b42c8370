package index

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codeindexd/internal/types"
)

func TestAddRemoveFileCascadesSymbols(t *testing.T) {
	s := New()
	s.AddFile("a.go", types.FileRecord{Language: "go"})
	s.AddSymbol("Foo", types.SymbolRecord{Kind: types.KindFunction, File: "a.go", Line: 3})
	s.AddSymbol("Bar", types.SymbolRecord{Kind: types.KindFunction, File: "b.go", Line: 1})

	s.RemoveFile("a.go")

	_, ok := s.GetFile("a.go")
	require.False(t, ok)
	_, ok = s.GetSymbol("Foo")
	require.False(t, ok)
	_, ok = s.GetSymbol("Bar")
	require.True(t, ok, "symbols from other files must survive")
}

func TestFindFilesByGlob(t *testing.T) {
	s := New()
	s.AddFile("pkg/a.go", types.FileRecord{})
	s.AddFile("pkg/sub/b.go", types.FileRecord{})
	s.AddFile("pkg/c.py", types.FileRecord{})

	matches, err := s.FindFilesByGlob("pkg/**/*.go")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pkg/a.go", "pkg/sub/b.go"}, matches)
}

func TestStats(t *testing.T) {
	s := New()
	s.AddFile("a.go", types.FileRecord{})
	s.AddSymbol("Foo", types.SymbolRecord{File: "a.go"})
	s.AddSymbol("Foo", types.SymbolRecord{File: "a.go", Line: 2})

	stats := s.Stats()
	require.Equal(t, 1, stats.FileCount)
	require.Equal(t, 2, stats.SymbolCount)
}

func TestGetFileReturnsAnIndependentSnapshot(t *testing.T) {
	s := New()
	want := types.FileRecord{
		Path:          "a.go",
		Language:      "go",
		LineCount:     42,
		SymbolsByKind: map[types.SymbolKind][]string{types.KindFunction: {"Foo", "Bar"}},
		Imports:       []string{"fmt"},
		Exports:       []string{"Foo"},
	}
	s.AddFile("a.go", want)

	got, ok := s.GetFile("a.go")
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("GetFile snapshot mismatch (-want +got):\n%s", diff)
	}

	got.SymbolsByKind[types.KindFunction] = append(got.SymbolsByKind[types.KindFunction], "Baz")
	again, _ := s.GetFile("a.go")
	if diff := cmp.Diff(want, again); diff != "" {
		t.Fatalf("mutating a GetFile result leaked into the store (-want +got):\n%s", diff)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := New()
	s.AddFile("a.go", types.FileRecord{})
	s.AddSymbol("Foo", types.SymbolRecord{File: "a.go"})
	s.Reset()

	stats := s.Stats()
	require.Equal(t, 0, stats.FileCount)
	require.Equal(t, 0, stats.SymbolCount)
}
