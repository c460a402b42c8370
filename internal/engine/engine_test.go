package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codeindexd/internal/config"
	"github.com/standardbeagle/codeindexd/internal/errtax"
	"github.com/standardbeagle/codeindexd/internal/search"
)

func newTestProject(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte(
		"def foo():\n    return bar()\n\n\ndef bar():\n    return 1\n",
	), 0o644))

	e := New(config.Default(), zerolog.Nop())
	_, cerr := e.SetProjectPath(dir)
	require.Nil(t, cerr)
	return e, dir
}

func TestSetProjectPathRequiresNonEmptyPath(t *testing.T) {
	e := New(config.Default(), zerolog.Nop())
	_, cerr := e.SetProjectPath("")
	require.NotNil(t, cerr)
	require.Equal(t, errtax.InvalidPath, cerr.Kind)
}

func TestOperationsRequireProjectPath(t *testing.T) {
	e := New(config.Default(), zerolog.Nop())

	_, cerr := e.RefreshIndex()
	require.NotNil(t, cerr)
	require.Equal(t, errtax.NoProject, cerr.Kind)

	_, cerr = e.SearchCode(search.Query{Pattern: "foo", Type: search.Text})
	require.NotNil(t, cerr)
	require.Equal(t, errtax.NoProject, cerr.Kind)

	_, cerr = e.GetSymbolBody("foo", "")
	require.NotNil(t, cerr)
	require.Equal(t, errtax.NoProject, cerr.Kind)
}

func TestSetProjectPathIndexesFilesAndSymbols(t *testing.T) {
	e, _ := newTestProject(t)
	require.NotEmpty(t, e.root)
	stats := e.store.Stats()
	require.Equal(t, 1, stats.FileCount)
	require.Equal(t, 2, stats.SymbolCount)
}

func TestRefreshIndexPicksUpNewFile(t *testing.T) {
	e, dir := newTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("def baz():\n    pass\n"), 0o644))

	res, cerr := e.RefreshIndex()
	require.Nil(t, cerr)
	require.Equal(t, 1, res.Added)
}

func TestFullRebuildIndexResetsAndReindexes(t *testing.T) {
	e, _ := newTestProject(t)
	res, cerr := e.FullRebuildIndex()
	require.Nil(t, cerr)
	require.GreaterOrEqual(t, res.FilesIndexed, 1)
	require.GreaterOrEqual(t, res.SymbolsIndexed, 2)
}

func TestSearchCodeFindsText(t *testing.T) {
	e, _ := newTestProject(t)
	res, cerr := e.SearchCode(search.Query{Pattern: "return bar", Type: search.Text})
	require.Nil(t, cerr)
	require.Equal(t, 1, res.TotalCount)
}

func TestFindFilesMatchesGlob(t *testing.T) {
	e, _ := newTestProject(t)
	files, cerr := e.FindFiles("*.py")
	require.Nil(t, cerr)
	require.Contains(t, files, "a.py")
}

func TestGetFileSummaryReturnsLanguageAndCounts(t *testing.T) {
	e, _ := newTestProject(t)
	sum, cerr := e.GetFileSummary("a.py")
	require.Nil(t, cerr)
	require.Equal(t, "python", sum.Language)
	require.Equal(t, 2, sum.SymbolCount)
}

func TestGetFileSummaryUnknownFile(t *testing.T) {
	e, _ := newTestProject(t)
	_, cerr := e.GetFileSummary("missing.py")
	require.NotNil(t, cerr)
	require.Equal(t, errtax.FileNotInIndex, cerr.Kind)
}

func TestGetFileContentSlicesAndNumbersLines(t *testing.T) {
	e, _ := newTestProject(t)
	fc, cerr := e.GetFileContent("a.py", 1, 2, true)
	require.Nil(t, cerr)
	require.Equal(t, "1: def foo():\n2:     return bar()", fc.Content)
	require.Equal(t, 6, fc.TotalLines)
}

func TestGetSymbolBodyExtractsIndentedBlock(t *testing.T) {
	e, _ := newTestProject(t)
	body, cerr := e.GetSymbolBody("foo", "")
	require.Nil(t, cerr)
	require.Equal(t, 1, body.StartLine)
	require.Equal(t, 2, body.EndLine)
	require.Equal(t, []string{"def foo():", "    return bar()"}, body.BodyLines)
}

func TestGetSymbolBodyUnknownSymbol(t *testing.T) {
	e, _ := newTestProject(t)
	_, cerr := e.GetSymbolBody("nope", "")
	require.NotNil(t, cerr)
	require.Equal(t, errtax.SymbolNotFound, cerr.Kind)
}

func TestApplyEditWritesFile(t *testing.T) {
	e, dir := newTestProject(t)
	res, cerr := e.ApplyEdit("a.py", "def bar():\n    return 1", "def bar():\n    return 2")
	require.Nil(t, cerr)
	require.True(t, res.OK)

	data, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	require.Contains(t, string(data), "return 2")
}

func TestAddImportInsertsStatement(t *testing.T) {
	e, dir := newTestProject(t)
	res, cerr := e.AddImport("a.py", "import os")
	require.Nil(t, cerr)
	require.True(t, res.OK)

	data, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	require.Contains(t, string(data), "import os")
}

func TestFindReferencesAndCallers(t *testing.T) {
	e, _ := newTestProject(t)
	require.NoError(t, e.upd.LinkReferences())

	refs, cerr := e.FindReferences("bar")
	require.Nil(t, cerr)
	require.NotEmpty(t, refs.Matches)

	callers, cerr := e.FindCallers("bar")
	require.Nil(t, cerr)
	require.NotEmpty(t, callers.Matches)
}

func TestFindDefinition(t *testing.T) {
	e, _ := newTestProject(t)
	res, cerr := e.FindDefinition("foo")
	require.Nil(t, cerr)
	require.NotEmpty(t, res.Matches)
}
