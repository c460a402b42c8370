// Package editor implements the Atomic Edit Engine (spec.md §4.10, C10):
// validate/backup/lock/write/reindex/rollback for single-file edits,
// multi-file transactions, and symbol renames, each run under the
// engine's reentrant coordination lock.
package editor

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/natefinch/atomic"

	"github.com/standardbeagle/codeindexd/internal/backup"
	"github.com/standardbeagle/codeindexd/internal/cas"
	"github.com/standardbeagle/codeindexd/internal/contentcache"
	"github.com/standardbeagle/codeindexd/internal/errtax"
	"github.com/standardbeagle/codeindexd/internal/filelock"
	"github.com/standardbeagle/codeindexd/internal/search"
	"github.com/standardbeagle/codeindexd/internal/updater"
)

// AtomicEdit is one file's half of a transaction (spec.md §3.1
// EditTransaction / §4.10(b)).
type AtomicEdit struct {
	Path        string
	OldContent  string
	NewContent  string
}

// Result reports the outcome of a single-file or transactional edit.
// RollbackErrors is populated only when a transaction failed partway
// through and one or more already-applied edits could not be cleanly
// rolled back (spec.md §4.10: "report the first error plus any per-file
// rollback errors").
type Result struct {
	OK             bool
	Error          *errtax.CodeError
	FilesChanged   []string
	RollbackErrors []*errtax.CodeError
}

// Engine wires the backup cache, file lock manager, incremental updater,
// content cache and search engine together to implement C10.
type Engine struct {
	root       string
	backups    *backup.Cache
	locks      *filelock.Manager
	cache      *contentcache.Cache
	upd        *updater.Updater
	searcher   *search.Engine
	lockTimeout time.Duration
}

// New builds an Engine. lockTimeout is spec.md §6.4's lock_timeout_seconds.
func New(root string, backups *backup.Cache, locks *filelock.Manager, cache *contentcache.Cache, upd *updater.Updater, searcher *search.Engine, lockTimeout time.Duration) *Engine {
	return &Engine{root: root, backups: backups, locks: locks, cache: cache, upd: upd, searcher: searcher, lockTimeout: lockTimeout}
}

func (e *Engine) diskPath(relPath string) string {
	if e.root == "" {
		return relPath
	}
	return e.root + "/" + relPath
}

// EditFileAtomic implements spec.md §4.10(a)'s single-file algorithm.
// Callers must already hold the coordination lock.
func (e *Engine) EditFileAtomic(owner string, path, oldContent, newContent string) Result {
	disk := e.diskPath(path)

	current, err := os.ReadFile(disk)
	if err != nil {
		return Result{Error: errtax.Wrap(errtax.FileNotFound, "editor.edit_file_atomic", err, "cannot read %s", path).WithPath(path)}
	}

	finalContent, cerr := resolveContent(string(current), oldContent, newContent)
	if cerr != nil {
		return Result{Error: cerr.WithPath(path)}
	}

	snapshot := cas.Snapshot(path, current)
	op := backup.NewOperation(path, string(current), finalContent, snapshot, e.lockTimeout)
	if berr := e.backups.AddBackup(op); berr != nil {
		return Result{Error: berr}
	}

	handle, lerr := e.locks.Acquire(disk, filelock.Exclusive, owner, e.lockTimeout)
	if lerr != nil {
		e.backups.RemoveBackup(path)
		return Result{Error: errtax.Wrap(errtax.LockFailed, "editor.edit_file_atomic", lerr, "could not lock %s", path).WithPath(path)}
	}
	defer handle.Release()

	backup.SetStatus(op, backup.StatusInProgress, "")

	if werr := atomic.WriteFile(disk, strings.NewReader(finalContent)); werr != nil {
		return e.rollback(op, disk, path, werr)
	}

	op.FileStateAtStart = refreshSnapshot(path, disk)

	if rerr := e.upd.ForceUpdateFile(path); rerr != nil {
		return e.rollback(op, disk, path, rerr)
	}
	e.cache.Invalidate(disk)

	backup.SetStatus(op, backup.StatusCompleted, "")
	e.backups.RemoveBackup(path)
	return Result{OK: true, FilesChanged: []string{path}}
}

// resolveContent implements spec.md §4.10 step 2's content-validation
// rule: an empty oldContent skips validation; otherwise require an exact
// full-file match or a substring match, in which case the effective new
// content is current with that substring replaced.
func resolveContent(current, oldContent, newContent string) (string, *errtax.CodeError) {
	if oldContent == "" {
		return newContent, nil
	}
	if current == oldContent {
		return newContent, nil
	}
	trimmed := strings.TrimSpace(oldContent)
	if strings.Contains(current, trimmed) {
		return strings.Replace(current, trimmed, newContent, 1), nil
	}
	return "", errtax.New(errtax.ContentMismatch, "editor", "old_content does not match current file content")
}

// rollback restores the backed-up content when a write or reindex step
// fails, implementing spec.md §4.10 step 9.
func (e *Engine) rollback(op *backup.Operation, disk, relPath string, cause error) Result {
	if !cas.Matches(relPath, disk, op.FileStateAtStart) {
		backup.SetStatus(op, backup.StatusFailed, cause.Error())
		return Result{Error: errtax.Wrap(errtax.RollbackUnsafe, "editor.rollback", cause,
			"file %s changed externally since backup, operation %s", relPath, op.OperationID).
			WithPath(relPath).AsCritical()}
	}

	if werr := atomic.WriteFile(disk, strings.NewReader(op.OriginalContent)); werr != nil {
		backup.SetStatus(op, backup.StatusFailed, werr.Error())
		return Result{Error: errtax.Wrap(errtax.RollbackFailed, "editor.rollback", werr,
			"rollback write failed for %s, operation %s requires index rebuild", relPath, op.OperationID).
			WithPath(relPath).AsCritical()}
	}

	backup.SetStatus(op, backup.StatusRolledBack, cause.Error())
	e.cache.Invalidate(disk)
	e.backups.RemoveBackup(relPath)
	return Result{Error: errtax.Wrap(errtax.RollbackSucceeded, "editor.rollback", cause,
		"edit to %s failed and was rolled back", relPath).WithPath(relPath)}
}

// EditFilesTransaction implements spec.md §4.10(b)'s three-phase
// algorithm. Callers must already hold the coordination lock.
func (e *Engine) EditFilesTransaction(owner string, edits []AtomicEdit) Result {
	type prepared struct {
		edit    AtomicEdit
		disk    string
		current string
		final   string
	}

	// Phase A: validate all.
	preps := make([]prepared, 0, len(edits))
	for _, ed := range edits {
		disk := e.diskPath(ed.Path)
		current, err := os.ReadFile(disk)
		if err != nil {
			return Result{Error: errtax.Wrap(errtax.FileNotFound, "editor.transaction", err, "cannot read %s", ed.Path).WithPath(ed.Path)}
		}
		final, cerr := resolveContent(string(current), ed.OldContent, ed.NewContent)
		if cerr != nil {
			return Result{Error: cerr.WithPath(ed.Path)}
		}
		preps = append(preps, prepared{edit: ed, disk: disk, current: string(current), final: final})
	}

	// Phase B: backup all; roll back previously created backups on failure.
	ops := make([]*backup.Operation, 0, len(preps))
	for _, p := range preps {
		snapshot := cas.Snapshot(p.edit.Path, []byte(p.current))
		op := backup.NewOperation(p.edit.Path, p.current, p.final, snapshot, e.lockTimeout)
		if berr := e.backups.AddBackup(op); berr != nil {
			for _, done := range ops {
				e.backups.RemoveBackup(done.FilePath)
			}
			return Result{Error: berr}
		}
		ops = append(ops, op)
	}

	// Phase C: apply all, locks in path-sorted order to avoid deadlock.
	order := make([]int, len(preps))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return preps[order[i]].edit.Path < preps[order[j]].edit.Path })

	handles := make([]*filelock.Handle, 0, len(preps))
	applied := make([]int, 0, len(preps))
	var failure *errtax.CodeError
	var rollbackErrs []*errtax.CodeError

	for _, i := range order {
		p := preps[i]
		op := ops[i]

		h, lerr := e.locks.Acquire(p.disk, filelock.Exclusive, owner, e.lockTimeout)
		if lerr != nil {
			failure = errtax.Wrap(errtax.LockFailed, "editor.transaction", lerr, "could not lock %s", p.edit.Path).WithPath(p.edit.Path)
			break
		}
		handles = append(handles, h)

		backup.SetStatus(op, backup.StatusInProgress, "")
		if werr := atomic.WriteFile(p.disk, strings.NewReader(p.final)); werr != nil {
			failure = errtax.Wrap(errtax.DiskWriteFailed, "editor.transaction", werr, "write failed for %s", p.edit.Path).WithPath(p.edit.Path)
			break
		}

		op.FileStateAtStart = refreshSnapshot(p.edit.Path, p.disk)

		if rerr := e.upd.ForceUpdateFile(p.edit.Path); rerr != nil {
			failure = errtax.Wrap(errtax.IndexInconsistent, "editor.transaction", rerr, "reindex failed for %s", p.edit.Path).WithPath(p.edit.Path)
			break
		}
		e.cache.Invalidate(p.disk)
		backup.SetStatus(op, backup.StatusCompleted, "")
		applied = append(applied, i)
	}

	if failure != nil {
		for k := len(applied) - 1; k >= 0; k-- {
			i := applied[k]
			p := preps[i]
			op := ops[i]
			if !cas.Matches(p.edit.Path, p.disk, op.FileStateAtStart) {
				backup.SetStatus(op, backup.StatusFailed, failure.Error())
				rollbackErrs = append(rollbackErrs, errtax.New(errtax.RollbackUnsafe, "editor.transaction.rollback",
					"file %s changed externally, operation %s", p.edit.Path, op.OperationID).WithPath(p.edit.Path).AsCritical())
				continue
			}
			if werr := atomic.WriteFile(p.disk, strings.NewReader(op.OriginalContent)); werr != nil {
				backup.SetStatus(op, backup.StatusFailed, werr.Error())
				rollbackErrs = append(rollbackErrs, errtax.Wrap(errtax.RollbackFailed, "editor.transaction.rollback", werr,
					"rollback failed for %s, operation %s requires index rebuild", p.edit.Path, op.OperationID).WithPath(p.edit.Path).AsCritical())
				continue
			}
			backup.SetStatus(op, backup.StatusRolledBack, failure.Error())
			e.cache.Invalidate(p.disk)
			_ = e.upd.ForceUpdateFile(p.edit.Path)
		}
	}

	for _, h := range handles {
		_ = h.Release()
	}
	for _, op := range ops {
		e.backups.RemoveBackup(op.FilePath)
	}

	if failure != nil {
		return Result{Error: failure, RollbackErrors: rollbackErrs}
	}

	changed := make([]string, len(preps))
	for i, p := range preps {
		changed[i] = p.edit.Path
	}
	return Result{OK: true, FilesChanged: changed}
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RenameSymbolAtomic implements spec.md §4.10's rename algorithm: find
// every reference to oldName via a symbol search, compute a
// word-boundary substitution per file, and run the result as a
// multi-file transaction.
func (e *Engine) RenameSymbolAtomic(owner, oldName, newName string) Result {
	if !isValidIdentifier(newName) {
		return Result{Error: errtax.New(errtax.InvalidSymbolName, "editor.rename_symbol", "%q is not a valid identifier", newName)}
	}

	hits, serr := e.searcher.Search(search.Query{Type: search.Symbol, Pattern: oldName, CaseSensitive: true})
	if serr != nil {
		return Result{Error: serr}
	}

	filesSeen := make(map[string]bool)
	var files []string
	for _, h := range hits {
		if h.Symbol != oldName || filesSeen[h.File] {
			continue
		}
		filesSeen[h.File] = true
		files = append(files, h.File)
	}

	refHits, _ := e.searcher.Search(search.Query{Type: search.References, Pattern: oldName})
	for _, h := range refHits {
		if !filesSeen[h.File] {
			filesSeen[h.File] = true
			files = append(files, h.File)
		}
	}

	if len(files) == 0 {
		return Result{Error: errtax.New(errtax.SymbolNotFound, "editor.rename_symbol", "no occurrences of %q found", oldName)}
	}

	wordBoundary := regexp.MustCompile(`\b` + regexp.QuoteMeta(oldName) + `\b`)
	edits := make([]AtomicEdit, 0, len(files))
	for _, f := range files {
		disk := e.diskPath(f)
		content, err := os.ReadFile(disk)
		if err != nil {
			continue
		}
		newContent := wordBoundary.ReplaceAllString(string(content), newName)
		if newContent == string(content) {
			continue
		}
		edits = append(edits, AtomicEdit{Path: f, OldContent: string(content), NewContent: newContent})
	}

	if len(edits) == 0 {
		return Result{Error: errtax.New(errtax.SymbolNotFound, "editor.rename_symbol", "no textual occurrences of %q found", oldName)}
	}

	return e.EditFilesTransaction(owner, edits)
}

func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	if !identifierRe.MatchString(name) {
		return false
	}
	return !unicode.IsDigit(rune(name[0]))
}

func refreshSnapshot(relPath, diskPath string) backup.FileStateSnapshot {
	data, err := os.ReadFile(diskPath)
	if err != nil {
		return backup.FileStateSnapshot{Path: relPath, Valid: false}
	}
	return cas.Snapshot(relPath, data)
}
