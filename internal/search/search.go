// Package search implements the Search Engine (spec.md §4.7, C7): a
// fixed dispatch table over query types, backed by the File-Content
// Cache for line data and the Index Store for symbol lookups, with an
// optional parallel scan above a file-count threshold.
package search

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/codeindexd/internal/contentcache"
	"github.com/standardbeagle/codeindexd/internal/errtax"
	"github.com/standardbeagle/codeindexd/internal/index"
	"github.com/standardbeagle/codeindexd/internal/types"
)

// Type is a query's search kind.
type Type string

const (
	Text            Type = "text"
	Regex           Type = "regex"
	Symbol          Type = "symbol"
	References      Type = "references"
	Definition      Type = "definition"
	Callers         Type = "callers"
	Implementations Type = "implementations"
	Hierarchy       Type = "hierarchy"
)

// Query is a single search request (spec.md §4.7).
type Query struct {
	Pattern       string
	Type          Type
	FilePattern   string
	CaseSensitive bool
	Limit         int
}

// Hit is one matched line or symbol record. Fields not applicable to a
// given query type are left zero.
type Hit struct {
	File     string
	Line     int
	Content  string
	Language string
	Symbol   string
	Kind     types.SymbolKind
	RecType  string // "definition" for the definition query type
	Level    int    // hierarchy level; -1 for callers
}

// parallelThreshold is the file count above which text/regex scans
// partition into parallel chunks (spec.md §4.7: "≈50 files").
const parallelThreshold = 50

// Engine dispatches Query values against idx and cache.
type Engine struct {
	idx          *index.Store
	cache        *contentcache.Cache
	root         string
	regexCache   *regexCache
}

// New builds an Engine rooted at root (used to resolve index-relative
// paths to disk paths for the content cache).
func New(root string, idx *index.Store, cache *contentcache.Cache) *Engine {
	return &Engine{idx: idx, cache: cache, root: root, regexCache: newRegexCache(128)}
}

// Search dispatches q to the matching handler. There is exactly one
// branch per query type, per spec.md §4.7's "no conditionals beyond the
// table" directive.
func (e *Engine) Search(q Query) ([]Hit, *errtax.CodeError) {
	switch q.Type {
	case Text:
		return e.searchText(q, nil)
	case Regex:
		return e.searchRegex(q)
	case Symbol:
		return e.searchSymbol(q), nil
	case References:
		return e.searchReferences(q), nil
	case Definition:
		return e.searchDefinition(q), nil
	case Callers:
		return e.searchCallers(q), nil
	case Implementations:
		return e.searchImplementations(q), nil
	case Hierarchy:
		return e.searchHierarchy(q), nil
	default:
		return nil, errtax.New(errtax.InvalidPath, "search", "unknown query type %q", q.Type)
	}
}

func (e *Engine) candidateFiles(filePattern string) []string {
	if filePattern == "" {
		return e.idx.FilePaths()
	}
	files, err := e.idx.FindFilesByGlob(filePattern)
	if err != nil {
		return nil
	}
	return files
}

func matchesCase(haystack, needle string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(haystack, needle)
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// searchText implements the text dispatch branch. matcher, when non-nil,
// overrides the plain-substring test (used by searchRegex to reuse the
// scan/merge machinery).
func (e *Engine) searchText(q Query, matcher func(line string) bool) ([]Hit, *errtax.CodeError) {
	files := e.candidateFiles(q.FilePattern)
	if matcher == nil {
		matcher = func(line string) bool { return matchesCase(line, q.Pattern, q.CaseSensitive) }
	}

	if len(files) > parallelThreshold {
		return e.scanParallel(files, q.Limit, matcher)
	}
	return e.scanSequential(files, q.Limit, matcher)
}

func (e *Engine) scanSequential(files []string, limit int, matcher func(string) bool) ([]Hit, *errtax.CodeError) {
	var hits []Hit
	for _, f := range files {
		if limit > 0 && len(hits) >= limit {
			break
		}
		fh, ok := e.idx.GetFile(f)
		lang := ""
		if ok {
			lang = fh.Language
		}
		lines, err := e.cache.GetFileLines(e.diskPath(f))
		if err != nil {
			continue // per-file read error skips that file only (spec.md §4.7)
		}
		for i, line := range lines {
			if !matcher(line) {
				continue
			}
			hits = append(hits, Hit{File: f, Line: i + 1, Content: line, Language: lang})
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
	}
	return hits, nil
}

// scanParallel partitions files into roughly equal chunks scanned
// concurrently, each observing a per-chunk share of limit, then merges
// results in deterministic (file, line) order (spec.md §4.7).
func (e *Engine) scanParallel(files []string, limit int, matcher func(string) bool) ([]Hit, *errtax.CodeError) {
	const numChunks = 8
	chunks := partition(files, numChunks)

	perChunkLimit := 0
	if limit > 0 {
		perChunkLimit = (limit + len(chunks) - 1) / len(chunks)
	}

	results := make([][]Hit, len(chunks))
	var mu sync.Mutex
	var g errgroup.Group
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			hits, _ := e.scanSequential(chunk, perChunkLimit, matcher)
			mu.Lock()
			results[i] = hits
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var merged []Hit
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].File != merged[j].File {
			return merged[i].File < merged[j].File
		}
		return merged[i].Line < merged[j].Line
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func partition(files []string, n int) [][]string {
	if len(files) == 0 {
		return nil
	}
	if n > len(files) {
		n = len(files)
	}
	chunks := make([][]string, n)
	size := (len(files) + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * size
		if start >= len(files) {
			break
		}
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		chunks[i] = files[start:end]
	}
	return chunks
}

func (e *Engine) diskPath(relPath string) string {
	if e.root == "" {
		return relPath
	}
	return e.root + "/" + relPath
}

func (e *Engine) searchRegex(q Query) ([]Hit, *errtax.CodeError) {
	if isUnsafeRegex(q.Pattern) {
		return nil, errtax.New(errtax.UnsafeRegex, "search.regex", "pattern %q was rejected as potentially catastrophic", q.Pattern)
	}
	re, err := e.regexCache.compile(q.Pattern, q.CaseSensitive)
	if err != nil {
		return nil, errtax.Wrap(errtax.InvalidRegex, "search.regex", err, "invalid regex %q", q.Pattern)
	}
	return e.searchText(q, func(line string) bool { return re.MatchString(line) })
}

func (e *Engine) searchSymbol(q Query) []Hit {
	var hits []Hit
	for _, name := range e.idx.AllSymbolNames() {
		if !matchesCase(name, q.Pattern, q.CaseSensitive) {
			continue
		}
		recs, _ := e.idx.GetSymbol(name)
		for _, r := range recs {
			hits = append(hits, Hit{Symbol: r.Name, Kind: r.Kind, File: r.File, Line: r.Line})
			if q.Limit > 0 && len(hits) >= q.Limit {
				return hits
			}
		}
	}
	return hits
}

func (e *Engine) searchReferences(q Query) []Hit {
	recs, ok := e.idx.GetSymbol(q.Pattern)
	if !ok {
		return nil
	}
	var hits []Hit
	seen := make(map[string]bool)
	for _, r := range recs {
		for _, loc := range r.References {
			if seen[loc] {
				continue
			}
			seen[loc] = true
			file, line := types.SplitRefLocation(loc)
			hits = append(hits, Hit{Symbol: q.Pattern, File: file, Line: line})
			if q.Limit > 0 && len(hits) >= q.Limit {
				return hits
			}
		}
	}
	return hits
}

func (e *Engine) searchDefinition(q Query) []Hit {
	recs, ok := e.idx.GetSymbol(q.Pattern)
	if !ok || len(recs) == 0 {
		return nil
	}
	r := recs[0]
	return []Hit{{Symbol: r.Name, Kind: r.Kind, File: r.File, Line: r.Line, RecType: "definition"}}
}

func (e *Engine) searchCallers(q Query) []Hit {
	recs, ok := e.idx.GetSymbol(q.Pattern)
	if !ok {
		return nil
	}
	var hits []Hit
	seen := make(map[string]bool)
	for _, r := range recs {
		for caller := range r.CalledBy {
			if seen[caller] {
				continue
			}
			seen[caller] = true
			callerRecs, ok := e.idx.GetSymbol(caller)
			if !ok || len(callerRecs) == 0 {
				hits = append(hits, Hit{Symbol: caller})
			} else {
				cr := callerRecs[0]
				hits = append(hits, Hit{Symbol: cr.Name, Kind: cr.Kind, File: cr.File, Line: cr.Line})
			}
			if q.Limit > 0 && len(hits) >= q.Limit {
				return hits
			}
		}
	}
	return hits
}

func (e *Engine) searchImplementations(q Query) []Hit {
	var hits []Hit
	for _, name := range e.idx.AllSymbolNames() {
		recs, _ := e.idx.GetSymbol(name)
		for _, r := range recs {
			if r.Kind != types.KindClass {
				continue
			}
			if !strings.Contains(r.Signature, q.Pattern) {
				continue
			}
			hits = append(hits, Hit{Symbol: r.Name, Kind: r.Kind, File: r.File, Line: r.Line})
			if q.Limit > 0 && len(hits) >= q.Limit {
				return hits
			}
		}
	}
	return hits
}

func (e *Engine) searchHierarchy(q Query) []Hit {
	recs, ok := e.idx.GetSymbol(q.Pattern)
	if !ok || len(recs) == 0 {
		return nil
	}
	r := recs[0]
	hits := []Hit{{Symbol: r.Name, Kind: r.Kind, File: r.File, Line: r.Line}}
	if q.Limit > 0 && len(hits) >= q.Limit {
		return hits
	}
	for caller := range r.CalledBy {
		callerRecs, ok := e.idx.GetSymbol(caller)
		if !ok || len(callerRecs) == 0 {
			hits = append(hits, Hit{Symbol: caller, Level: -1})
		} else {
			cr := callerRecs[0]
			hits = append(hits, Hit{Symbol: cr.Name, Kind: cr.Kind, File: cr.File, Line: cr.Line, Level: -1})
		}
		if q.Limit > 0 && len(hits) >= q.Limit {
			return hits
		}
	}
	return hits
}

// isUnsafeRegex flags patterns with the classic catastrophic-backtracking
// shapes: nested unbounded quantifiers like (a+)+ or (.*)*, and
// unbounded alternations repeated under a quantifier (spec.md §4.7
// "nested unbounded quantifiers, catastrophic alternation").
var (
	nestedQuantifierRe = regexp.MustCompile(`\([^)]*[+*][^)]*\)[+*]`)
	repeatedAlternation = regexp.MustCompile(`\([^)]*\|[^)]*\)[+*]`)
)

func isUnsafeRegex(pattern string) bool {
	return nestedQuantifierRe.MatchString(pattern) || repeatedAlternation.MatchString(pattern)
}
