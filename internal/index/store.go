// Package index implements the Index Store (spec.md §4.3, C3): the
// canonical in-memory files/symbols maps. The store is the single
// writable shared resource in the system (spec.md §5); it is mutated
// only by the Incremental Updater, the Atomic Edit Engine and the
// engine's full-rebuild reset, all of which hold the caller-supplied
// coordination lock for the duration of a mutation.
package index

import (
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/codeindexd/internal/types"
)

// Stats reports aggregate counts for observability.
type Stats struct {
	FileCount   int
	SymbolCount int
}

// Store owns the FileRecord and SymbolRecord maps. Its own RWMutex
// guards internal map consistency; it does not provide the cross-field
// transactional guarantees a caller needs across several Store calls —
// that's the job of the engine-wide coordination lock described in
// spec.md §5. Readers that tolerate weak consistency may call the Get*
// methods without any additional synchronization.
type Store struct {
	mu      sync.RWMutex
	files   map[string]types.FileRecord
	symbols map[string][]types.SymbolRecord // name -> all records with that name
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		files:   make(map[string]types.FileRecord),
		symbols: make(map[string][]types.SymbolRecord),
	}
}

// AddFile inserts or replaces the FileRecord for path.
func (s *Store) AddFile(path string, rec types.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Path = path
	s.files[path] = rec
}

// RemoveFile deletes the FileRecord for path and every SymbolRecord whose
// File equals path, preserving the invariant that every symbol's File is
// a key in files (spec.md §3.1).
func (s *Store) RemoveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	s.removeSymbolsForFileLocked(path)
}

// AddSymbol appends a SymbolRecord under name. Multiple records may share
// a name (spec.md §3.1: "not unique across the project").
func (s *Store) AddSymbol(name string, rec types.SymbolRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Name = name
	s.symbols[name] = append(s.symbols[name], rec)
}

// MutateSymbol applies fn to every SymbolRecord under name declared in
// file at line, in place. Used by the Incremental Updater's reverse-edge
// pass to fill in References and CalledBy after the initial parse.
func (s *Store) MutateSymbol(name, file string, line int, fn func(*types.SymbolRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.symbols[name]
	for i := range recs {
		if recs[i].File == file && recs[i].Line == line {
			fn(&recs[i])
		}
	}
}

// RemoveSymbolsForFile deletes every SymbolRecord declared in path,
// without touching the FileRecord itself.
func (s *Store) RemoveSymbolsForFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSymbolsForFileLocked(path)
}

func (s *Store) removeSymbolsForFileLocked(path string) {
	for name, recs := range s.symbols {
		kept := recs[:0:0]
		for _, r := range recs {
			if r.File != path {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.symbols, name)
		} else {
			s.symbols[name] = kept
		}
	}
}

// GetFile returns a copy of the FileRecord for path, if present.
func (s *Store) GetFile(path string) (types.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[path]
	if !ok {
		return types.FileRecord{}, false
	}
	return rec.Clone(), true
}

// GetSymbol returns copies of every SymbolRecord declared under name.
func (s *Store) GetSymbol(name string) ([]types.SymbolRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, ok := s.symbols[name]
	if !ok {
		return nil, false
	}
	out := make([]types.SymbolRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out, true
}

// FindFilesByGlob returns every indexed path matching a doublestar glob
// pattern (spec.md §6.1 find_files), sorted for deterministic output.
func (s *Store) FindFilesByGlob(pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for path := range s.files {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Stats reports file and symbol counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symCount := 0
	for _, recs := range s.symbols {
		symCount += len(recs)
	}
	return Stats{FileCount: len(s.files), SymbolCount: symCount}
}

// FilePaths returns every indexed file path.
func (s *Store) FilePaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AllSymbolNames returns every distinct symbol name known to the store.
func (s *Store) AllSymbolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for name := range s.symbols {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset clears both maps. Used when switching projects (spec.md §9).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]types.FileRecord)
	s.symbols = make(map[string][]types.SymbolRecord)
}
