// Package engine orchestrates the ten components behind the named
// operation table spec.md §6.1 defines: it owns the reentrant
// coordination lock and is the only caller permitted to mutate the
// Index Store, Backup Cache, and Change Tracker.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/standardbeagle/codeindexd/internal/backup"
	"github.com/standardbeagle/codeindexd/internal/config"
	"github.com/standardbeagle/codeindexd/internal/contentcache"
	"github.com/standardbeagle/codeindexd/internal/coordlock"
	"github.com/standardbeagle/codeindexd/internal/editor"
	"github.com/standardbeagle/codeindexd/internal/errtax"
	"github.com/standardbeagle/codeindexd/internal/filelock"
	"github.com/standardbeagle/codeindexd/internal/index"
	"github.com/standardbeagle/codeindexd/internal/parser"
	"github.com/standardbeagle/codeindexd/internal/search"
	"github.com/standardbeagle/codeindexd/internal/tracker"
	"github.com/standardbeagle/codeindexd/internal/updater"
	"github.com/standardbeagle/codeindexd/internal/walker"
)

// Engine is the process-wide orchestrator. A single Engine serves one
// project at a time; SetProjectPath rebinds every downstream component
// to a new root.
type Engine struct {
	coord  *coordlock.Lock
	log    zerolog.Logger
	cfg    *config.Config

	root     string
	filter   *walker.Filter
	registry *parser.Registry
	store    *index.Store
	tracker  *tracker.Tracker
	cache    *contentcache.Cache
	upd      *updater.Updater
	searcher *search.Engine
	backups  *backup.Cache
	locks    *filelock.Manager
	edit     *editor.Engine
}

// New builds an Engine with no project bound yet; SetProjectPath must be
// called before any other operation succeeds.
func New(cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{coord: coordlock.New(), log: log, cfg: cfg}
}

func (e *Engine) requireProject() *errtax.CodeError {
	if e.root == "" {
		return errtax.New(errtax.NoProject, "engine", "no project path has been set")
	}
	return nil
}

// SetProjectPathResult is set_project_path's success payload.
type SetProjectPathResult struct {
	FilesIndexed   int
	SymbolsIndexed int
}

// SetProjectPath implements spec.md §6.1's set_project_path: rebuilds
// every downstream component rooted at path and runs a full index.
func (e *Engine) SetProjectPath(path string) (SetProjectPathResult, *errtax.CodeError) {
	tok := coordlock.NewToken()
	e.coord.Lock(tok)
	defer e.coord.Unlock(tok)

	if path == "" {
		return SetProjectPathResult{}, errtax.New(errtax.InvalidPath, "engine.set_project_path", "path must not be empty")
	}

	filter := walker.NewFilter(e.cfg.Walk.ExcludeDirs, walker.DefaultExtensions, e.cfg.Walk.RespectGitignore)
	registry := parser.NewRegistry()
	store := index.New()
	tr := tracker.New()
	cache := contentcache.New(contentcache.Config{
		MaxFiles:         e.cfg.Cache.MaxFiles,
		MaxMemoryBytes:   int64(e.cfg.Cache.MaxMemoryMB) * 1024 * 1024,
		CleanupThreshold: e.cfg.Cache.CleanupThresh,
	})
	upd := updater.New(path, filter, registry, store, tr)
	searcher := search.New(path, store, cache)
	backups := backup.New(backup.Config{
		MaxMemoryMB:          e.cfg.Backup.MaxMemoryMB,
		MaxFileSizeMB:        e.cfg.Backup.MaxFileSizeMB,
		MaxBackups:           e.cfg.Backup.MaxBackups,
		BackupTimeoutSeconds: e.cfg.Backup.BackupTimeoutSeconds,
		WarningThreshold:     e.cfg.Backup.WarningThreshold,
	})
	backups.OnPressure(
		func(snap backup.MemorySnapshot) {
			e.log.Warn().Uint64("rss_bytes", snap.ProcessRSSBytes).Uint64("system_available_bytes", snap.SystemAvailableBytes).
				Int64("backup_bytes_used", snap.CacheBytesUsed).Msg("backup cache memory pressure: warning")
		},
		func(snap backup.MemorySnapshot) {
			e.log.Error().Uint64("rss_bytes", snap.ProcessRSSBytes).Uint64("system_available_bytes", snap.SystemAvailableBytes).
				Int64("backup_bytes_used", snap.CacheBytesUsed).Msg("backup cache memory pressure: critical")
		},
	)
	locks := filelock.New("")
	lockTimeout := time.Duration(e.cfg.Lock.TimeoutSeconds) * time.Second
	edit := editor.New(path, backups, locks, cache, upd, searcher, lockTimeout)

	stats, err := upd.Update()
	if err != nil {
		return SetProjectPathResult{}, errtax.Wrap(errtax.InvalidPath, "engine.set_project_path", err, "failed to index %s", path).WithPath(path)
	}
	if err := upd.LinkReferences(); err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("reference linking failed after initial index")
	}

	e.root, e.filter, e.registry, e.store, e.tracker = path, filter, registry, store, tr
	e.cache, e.upd, e.searcher, e.backups, e.locks, e.edit = cache, upd, searcher, backups, locks, edit

	e.log.Info().Str("path", path).Int("added", stats.Added).Msg("project path set")

	storeStats := store.Stats()
	return SetProjectPathResult{FilesIndexed: storeStats.FileCount, SymbolsIndexed: storeStats.SymbolCount}, nil
}

// RefreshResult is refresh_index's success payload.
type RefreshResult struct {
	Updated, Added, Removed int
	UpdateTimeSeconds       float64
}

// RefreshIndex implements spec.md §6.1's refresh_index: an incremental
// delta update plus a reference-linking pass.
func (e *Engine) RefreshIndex() (RefreshResult, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return RefreshResult{}, cerr
	}

	tok := coordlock.NewToken()
	e.coord.Lock(tok)
	defer e.coord.Unlock(tok)

	start := time.Now()
	stats, err := e.upd.Update()
	if err != nil {
		return RefreshResult{}, errtax.Wrap(errtax.IndexInconsistent, "engine.refresh_index", err, "incremental update failed")
	}
	if err := e.upd.LinkReferences(); err != nil {
		e.log.Warn().Err(err).Msg("reference linking failed during refresh")
	}
	elapsed := time.Since(start).Seconds()

	e.backups.Stats() // samples RSS/system memory, fires pressure callbacks registered in SetProjectPath

	return RefreshResult{Updated: stats.Updated, Added: stats.Added, Removed: stats.Removed, UpdateTimeSeconds: elapsed}, nil
}

// FullRebuildResult is full_rebuild_index's success payload.
type FullRebuildResult struct {
	FilesIndexed, SymbolsIndexed int
	RebuildTimeSeconds           float64
}

// FullRebuildIndex implements spec.md §6.1's full_rebuild_index: resets
// the Index Store and Change Tracker, then reindexes from scratch.
func (e *Engine) FullRebuildIndex() (FullRebuildResult, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return FullRebuildResult{}, cerr
	}

	tok := coordlock.NewToken()
	e.coord.Lock(tok)
	defer e.coord.Unlock(tok)

	start := time.Now()
	e.store.Reset()
	e.tracker.Reset()

	if _, err := e.upd.Update(); err != nil {
		return FullRebuildResult{}, errtax.Wrap(errtax.IndexInconsistent, "engine.full_rebuild_index", err, "full rebuild failed")
	}
	if err := e.upd.LinkReferences(); err != nil {
		e.log.Warn().Err(err).Msg("reference linking failed during full rebuild")
	}
	elapsed := time.Since(start).Seconds()

	stats := e.store.Stats()
	return FullRebuildResult{FilesIndexed: stats.FileCount, SymbolsIndexed: stats.SymbolCount, RebuildTimeSeconds: elapsed}, nil
}

// SearchResult is search_code's success payload.
type SearchResult struct {
	Matches         []search.Hit
	TotalCount      int
	SearchTimeSeconds float64
}

// SearchCode implements spec.md §6.1's search_code. Search is read-only
// and runs without the coordination lock, per spec.md §5's
// "unsynchronized parallelism on read-only search scans".
func (e *Engine) SearchCode(q search.Query) (SearchResult, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return SearchResult{}, cerr
	}
	start := time.Now()
	hits, err := e.searcher.Search(q)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Matches: hits, TotalCount: len(hits), SearchTimeSeconds: time.Since(start).Seconds()}, nil
}

// FindFiles implements spec.md §6.1's find_files.
func (e *Engine) FindFiles(globPattern string) ([]string, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return nil, cerr
	}
	files, err := e.store.FindFilesByGlob(globPattern)
	if err != nil {
		return nil, errtax.Wrap(errtax.InvalidPath, "engine.find_files", err, "invalid glob %q", globPattern)
	}
	return files, nil
}

// FileSummary is get_file_summary's success payload.
type FileSummary struct {
	Language    string
	LineCount   int
	SymbolCount int
	Imports     []string
	Exports     []string
}

// GetFileSummary implements spec.md §6.1's get_file_summary.
func (e *Engine) GetFileSummary(path string) (FileSummary, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return FileSummary{}, cerr
	}
	rec, ok := e.store.GetFile(path)
	if !ok {
		return FileSummary{}, errtax.New(errtax.FileNotInIndex, "engine.get_file_summary", "%s is not in the index", path).WithPath(path)
	}
	symCount := 0
	for _, names := range rec.SymbolsByKind {
		symCount += len(names)
	}
	return FileSummary{
		Language:    rec.Language,
		LineCount:   rec.LineCount,
		SymbolCount: symCount,
		Imports:     rec.Imports,
		Exports:     rec.Exports,
	}, nil
}

// FileContent is get_file_content's success payload.
type FileContent struct {
	Content    string
	TotalLines int
	Language   string
}

// GetFileContent implements spec.md §6.1's get_file_content: optionally
// sliced to [startLine, endLine] (1-based, inclusive), optionally
// prefixed with line numbers.
func (e *Engine) GetFileContent(path string, startLine, endLine int, lineNumbers bool) (FileContent, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return FileContent{}, cerr
	}
	disk := e.diskPath(path)
	lines, err := e.cache.GetFileLines(disk)
	if err != nil {
		return FileContent{}, errtax.Wrap(errtax.FileNotFound, "engine.get_file_content", err, "cannot read %s", path).WithPath(path)
	}

	lang := ""
	if rec, ok := e.store.GetFile(path); ok {
		lang = rec.Language
	}

	start, end := sliceBounds(len(lines), startLine, endLine)
	selected := lines[start:end]
	if lineNumbers {
		numbered := make([]string, len(selected))
		for i, l := range selected {
			numbered[i] = fmt.Sprintf("%d: %s", start+i+1, l)
		}
		selected = numbered
	}

	return FileContent{Content: strings.Join(selected, "\n"), TotalLines: len(lines), Language: lang}, nil
}

func sliceBounds(total, startLine, endLine int) (int, int) {
	start := 0
	if startLine > 0 {
		start = startLine - 1
	}
	end := total
	if endLine > 0 && endLine < total {
		end = endLine
	}
	if start > end {
		start = end
	}
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	return start, end
}

// ApplyEdit implements spec.md §6.1's apply_edit.
func (e *Engine) ApplyEdit(filePath, oldContent, newContent string) (editor.Result, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return editor.Result{}, cerr
	}
	tok := coordlock.NewToken()
	e.coord.Lock(tok)
	defer e.coord.Unlock(tok)
	return e.edit.EditFileAtomic(tokenOwner(tok), filePath, oldContent, newContent), nil
}

// RenameSymbol implements spec.md §6.1's rename_symbol.
func (e *Engine) RenameSymbol(oldName, newName string) (editor.Result, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return editor.Result{}, cerr
	}
	tok := coordlock.NewToken()
	e.coord.Lock(tok)
	defer e.coord.Unlock(tok)
	return e.edit.RenameSymbolAtomic(tokenOwner(tok), oldName, newName), nil
}

// AddImport implements spec.md §6.1's add_import.
func (e *Engine) AddImport(filePath, importStatement string) (editor.Result, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return editor.Result{}, cerr
	}
	tok := coordlock.NewToken()
	e.coord.Lock(tok)
	defer e.coord.Unlock(tok)
	return e.edit.AddImport(tokenOwner(tok), filePath, importStatement), nil
}

func (e *Engine) findBySymbolType(t search.Type, symbolName string) (SearchResult, *errtax.CodeError) {
	return e.SearchCode(search.Query{Type: t, Pattern: symbolName, CaseSensitive: true})
}

// FindReferences implements spec.md §6.1's find_references.
func (e *Engine) FindReferences(symbolName string) (SearchResult, *errtax.CodeError) {
	return e.findBySymbolType(search.References, symbolName)
}

// FindDefinition implements spec.md §6.1's find_definition.
func (e *Engine) FindDefinition(symbolName string) (SearchResult, *errtax.CodeError) {
	return e.findBySymbolType(search.Definition, symbolName)
}

// FindCallers implements spec.md §6.1's find_callers.
func (e *Engine) FindCallers(symbolName string) (SearchResult, *errtax.CodeError) {
	return e.findBySymbolType(search.Callers, symbolName)
}

// FindImplementations implements spec.md §6.1's find_implementations.
func (e *Engine) FindImplementations(symbolName string) (SearchResult, *errtax.CodeError) {
	return e.findBySymbolType(search.Implementations, symbolName)
}

// FindHierarchy implements spec.md §6.1's find_hierarchy.
func (e *Engine) FindHierarchy(symbolName string) (SearchResult, *errtax.CodeError) {
	return e.findBySymbolType(search.Hierarchy, symbolName)
}

func (e *Engine) diskPath(relPath string) string {
	if e.root == "" {
		return relPath
	}
	return e.root + "/" + relPath
}

func tokenOwner(tok coordlock.Token) string {
	return tok.String()
}
