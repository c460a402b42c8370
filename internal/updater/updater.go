// Package updater implements the Incremental Updater (spec.md §4.5, C5):
// it drives the Walker → Parser Registry → Index Store pipeline, applying
// only the delta between the file system and the current index on each
// refresh, and exposes ForceUpdateFile for the Atomic Edit Engine's
// post-write reindex step.
package updater

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/codeindexd/internal/index"
	"github.com/standardbeagle/codeindexd/internal/parser"
	"github.com/standardbeagle/codeindexd/internal/tracker"
	"github.com/standardbeagle/codeindexd/internal/types"
	"github.com/standardbeagle/codeindexd/internal/walker"
)

// Stats reports the outcome of a single Update call (spec.md §6.1
// refresh_index output).
type Stats struct {
	Updated int
	Added   int
	Removed int
}

// Updater wires the Walker, Parser Registry, Index Store and Change
// Tracker together. It holds no lock of its own: callers (the engine)
// are expected to hold the coordination lock for the duration of Update
// and ForceUpdateFile, per spec.md §5.
type Updater struct {
	root     string
	filter   *walker.Filter
	registry *parser.Registry
	store    *index.Store
	tracker  *tracker.Tracker
}

// New builds an Updater rooted at root.
func New(root string, filter *walker.Filter, registry *parser.Registry, store *index.Store, tr *tracker.Tracker) *Updater {
	return &Updater{root: root, filter: filter, registry: registry, store: store, tracker: tr}
}

// Update performs spec.md §4.5's six-step delta: enumerate, diff against
// the current index keys, reparse changed files, parse new files, and
// drop removed files.
func (u *Updater) Update() (Stats, error) {
	nowFiles, err := u.filter.Walk(u.root)
	if err != nil {
		return Stats{}, err
	}
	nowSet := make(map[string]struct{}, len(nowFiles))
	for _, p := range nowFiles {
		nowSet[p] = struct{}{}
	}

	idxFiles := u.store.FilePaths()
	idxSet := make(map[string]struct{}, len(idxFiles))
	for _, p := range idxFiles {
		idxSet[p] = struct{}{}
	}

	var stats Stats

	// S_now ∩ S_idx: first-seen-by-tracker files are fingerprinted but
	// not counted; changed files are reparsed.
	for _, p := range nowFiles {
		if _, inIdx := idxSet[p]; !inIdx {
			continue
		}
		abs := filepath.Join(u.root, p)
		if !u.tracker.Tracked(abs) {
			if err := u.tracker.UpdateTracking(abs); err != nil {
				continue
			}
			continue
		}
		status, err := u.tracker.IsChanged(abs)
		if err != nil {
			continue
		}
		if status == tracker.StatusChanged {
			if err := u.reparse(p); err != nil {
				continue
			}
			_ = u.tracker.UpdateTracking(abs)
			stats.Updated++
		}
	}

	// S_now \ S_idx: new files.
	for _, p := range nowFiles {
		if _, inIdx := idxSet[p]; inIdx {
			continue
		}
		if err := u.reparse(p); err != nil {
			continue
		}
		abs := filepath.Join(u.root, p)
		_ = u.tracker.UpdateTracking(abs)
		stats.Added++
	}

	// S_idx \ S_now: removed files.
	for _, p := range idxFiles {
		if _, stillThere := nowSet[p]; stillThere {
			continue
		}
		u.store.RemoveFile(p)
		u.tracker.RemoveTracking(filepath.Join(u.root, p))
		stats.Removed++
	}

	return stats, nil
}

// ForceUpdateFile removes and reparses path unconditionally, or removes
// it entirely if it no longer exists on disk (spec.md §4.5). path is
// project-relative.
func (u *Updater) ForceUpdateFile(path string) error {
	abs := filepath.Join(u.root, path)
	if !fileExists(abs) {
		u.store.RemoveFile(path)
		u.tracker.RemoveTracking(abs)
		return nil
	}
	if err := u.reparse(path); err != nil {
		return err
	}
	return u.tracker.UpdateTracking(abs)
}

func (u *Updater) reparse(relPath string) error {
	abs := filepath.Join(u.root, relPath)
	content, err := readFile(abs)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	parsed, parseErr := u.registry.Parse(ext, relPath, content)
	// A recoverable parser error still yields an (empty) ParsedFile per
	// spec.md §4.2; index it anyway so the file is at least tracked.
	_ = parseErr

	u.store.RemoveSymbolsForFile(relPath)
	u.store.AddFile(relPath, types.FileRecord{
		Path:          relPath,
		Language:      parsed.Language,
		LineCount:     parsed.LineCount,
		SymbolsByKind: parsed.SymbolsByKind,
		Imports:       parsed.Imports,
		Exports:       parsed.Exports,
	})
	for name, sym := range parsed.Symbols {
		u.store.AddSymbol(name, types.SymbolRecord{
			Kind:      sym.Kind,
			File:      relPath,
			Line:      sym.Line,
			Signature: sym.Signature,
		})
	}
	return nil
}
