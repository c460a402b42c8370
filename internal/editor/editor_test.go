package editor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codeindexd/internal/backup"
	"github.com/standardbeagle/codeindexd/internal/contentcache"
	"github.com/standardbeagle/codeindexd/internal/filelock"
	"github.com/standardbeagle/codeindexd/internal/index"
	"github.com/standardbeagle/codeindexd/internal/parser"
	"github.com/standardbeagle/codeindexd/internal/search"
	"github.com/standardbeagle/codeindexd/internal/tracker"
	"github.com/standardbeagle/codeindexd/internal/updater"
	"github.com/standardbeagle/codeindexd/internal/walker"
)

func newTestEngine(t *testing.T, root string) (*Engine, *updater.Updater) {
	t.Helper()
	filter := walker.NewFilter([]string{".git"}, walker.DefaultExtensions, false)
	store := index.New()
	upd := updater.New(root, filter, parser.NewRegistry(), store, tracker.New())
	cache := contentcache.New(contentcache.Config{MaxFiles: 10, MaxMemoryBytes: 1 << 20})
	searcher := search.New(root, store, cache)
	locks := filelock.New(t.TempDir())
	backups := backup.New(backup.DefaultConfig())
	return New(root, backups, locks, cache, upd, searcher, 5*time.Second), upd
}

func TestEditFileAtomicFullMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def foo():\n    return 1\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)

	res := e.EditFileAtomic("req-1", "a.py", "def foo():\n    return 1\n", "def foo():\n    return 2\n")
	require.True(t, res.OK)
	require.Nil(t, res.Error)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "def foo():\n    return 2\n", string(data))
}

func TestEditFileAtomicSubstringMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def foo():\n    return 1\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)

	res := e.EditFileAtomic("req-1", "a.py", "return 1", "return 2")
	require.True(t, res.OK)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "def foo():\n    return 2\n", string(data))
}

func TestEditFileAtomicContentMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def foo():\n    return 1\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)

	res := e.EditFileAtomic("req-1", "a.py", "this is not in the file", "x")
	require.False(t, res.OK)
	require.NotNil(t, res.Error)
	require.Equal(t, "edit.content_mismatch", res.Error.Kind)
}

func TestEditFileAtomicReindexesAndInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def foo():\n    return 1\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)
	_, err = e.cache.GetFileLines(path)
	require.NoError(t, err)
	require.Equal(t, 1, e.cache.Stats().Entries)

	res := e.EditFileAtomic("req-1", "a.py", "", "def renamed():\n    return 1\n")
	require.True(t, res.OK)
	require.Equal(t, 0, e.cache.Stats().Entries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "def renamed():")

	hits, serr := e.searcher.Search(search.Query{Type: search.Definition, Pattern: "renamed", CaseSensitive: true})
	require.Nil(t, serr)
	require.Len(t, hits, 1)
	require.Equal(t, "a.py", hits[0].File)
}

func TestEditFilesTransactionAppliesAll(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.py")
	pathB := filepath.Join(dir, "b.py")
	require.NoError(t, os.WriteFile(pathA, []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("y = 2\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)

	res := e.EditFilesTransaction("req-1", []AtomicEdit{
		{Path: "a.py", OldContent: "x = 1\n", NewContent: "x = 10\n"},
		{Path: "b.py", OldContent: "y = 2\n", NewContent: "y = 20\n"},
	})
	require.True(t, res.OK)
	require.ElementsMatch(t, []string{"a.py", "b.py"}, res.FilesChanged)

	dataA, _ := os.ReadFile(pathA)
	dataB, _ := os.ReadFile(pathB)
	require.Equal(t, "x = 10\n", string(dataA))
	require.Equal(t, "y = 20\n", string(dataB))
}

func TestEditFilesTransactionAbortsOnFirstMismatch(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.py")
	pathB := filepath.Join(dir, "b.py")
	require.NoError(t, os.WriteFile(pathA, []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("y = 2\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)

	res := e.EditFilesTransaction("req-1", []AtomicEdit{
		{Path: "a.py", OldContent: "x = 1\n", NewContent: "x = 10\n"},
		{Path: "b.py", OldContent: "not present", NewContent: "y = 20\n"},
	})
	require.False(t, res.OK)
	require.NotNil(t, res.Error)

	dataA, _ := os.ReadFile(pathA)
	require.Equal(t, "x = 1\n", string(dataA), "phase A must abort before any writes")
}

func TestRenameSymbolAtomicRejectsInvalidIdentifier(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def foo():\n    return 1\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)

	res := e.RenameSymbolAtomic("req-1", "foo", "123bad")
	require.False(t, res.OK)
	require.Equal(t, "input.invalid_symbol_name", res.Error.Kind)
}

func TestRenameSymbolAtomicRenamesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.py")
	pathB := filepath.Join(dir, "b.py")
	require.NoError(t, os.WriteFile(pathA, []byte("def foo():\n    return 1\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("from a import foo\n\ndef bar():\n    return foo()\n"), 0o644))

	e, upd := newTestEngine(t, dir)
	_, err := upd.Update()
	require.NoError(t, err)
	require.NoError(t, upd.LinkReferences())

	res := e.RenameSymbolAtomic("req-1", "foo", "renamed")
	require.True(t, res.OK)

	dataA, _ := os.ReadFile(pathA)
	dataB, _ := os.ReadFile(pathB)
	require.Contains(t, string(dataA), "def renamed():")
	require.Contains(t, string(dataB), "renamed()")
}
