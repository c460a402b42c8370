// Package walker implements the File Walker + Filter (spec.md §4.1, C1):
// a single recursive enumeration of a project root that yields files which
// are not inside an excluded directory and whose extension is recognized,
// skipping binary/temp files and individual per-entry errors silently.
package walker

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Filter decides, for a single candidate path, whether it should be
// yielded by Walk. It is the "single function" spec.md §4.1 describes:
// no path segment may equal an excluded directory token, and the leaf's
// extension must be registered.
type Filter struct {
	excludeDirs      map[string]struct{}
	extensions       map[string]struct{}
	respectGitignore bool
}

// NewFilter builds a Filter from a set of excluded directory tokens and
// recognized source extensions (including the leading dot, e.g. ".go").
func NewFilter(excludeDirs, extensions []string, respectGitignore bool) *Filter {
	f := &Filter{
		excludeDirs:      toSet(excludeDirs),
		extensions:       toSet(extensions),
		respectGitignore: respectGitignore,
	}
	return f
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}

// DefaultExtensions is the extension set recognized out of the box. The
// Parser Registry (C2) may recognize a broader set via its own fallback
// parser; the walker only needs a coarse "is this plausibly source" gate.
var DefaultExtensions = []string{
	".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".rb", ".rs",
	".c", ".h", ".cc", ".cpp", ".hpp", ".cs", ".php", ".swift", ".kt",
	".scala", ".sh", ".bash", ".zsh", ".lua", ".pl", ".m", ".mm",
	".json", ".yaml", ".yml", ".toml", ".md", ".sql",
}

// excludedSegment reports whether any path segment is an excluded
// directory token.
func (f *Filter) excludedSegment(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if _, ok := f.excludeDirs[seg]; ok {
			return true
		}
	}
	return false
}

func (f *Filter) recognizedExtension(leaf string) bool {
	ext := strings.ToLower(filepath.Ext(leaf))
	_, ok := f.extensions[ext]
	return ok
}

// Walk enumerates project files under root that pass Filter, returning
// project-relative, forward-slash normalized paths. Symbolic links outside
// root are not followed. Per-entry errors (permission, stat failure) are
// skipped silently; traversal continues.
func (f *Filter) Walk(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var ignoreMatcher gitignore.Matcher
	if f.respectGitignore {
		ignoreMatcher = loadGitignore(absRoot)
	}

	var out []string
	walkErr := filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Per-entry errors are skipped silently; traversal continues.
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if f.excludedSegment(rel) {
				return filepath.SkipDir
			}
			if ignoreMatcher != nil && ignoreMatcher.Match(strings.Split(rel, "/"), true) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			// Symlinks are not followed; Walk already reports the link
			// itself as a non-dir entry via Lstat semantics on most
			// platforms, so just skip it defensively.
			return nil
		}

		if f.excludedSegment(rel) {
			return nil
		}
		if !f.recognizedExtension(rel) {
			return nil
		}
		if ignoreMatcher != nil && ignoreMatcher.Match(strings.Split(rel, "/"), false) {
			return nil
		}

		out = append(out, rel)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(out)
	return out, nil
}

// loadGitignore reads a top-level .gitignore at root, if any, and returns
// a matcher for it. Missing or unreadable files yield a nil matcher
// (treated as "no additional exclusions"), matching the walker's policy
// of skipping unreadable entries rather than failing the whole walk.
func loadGitignore(root string) gitignore.Matcher {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if len(patterns) == 0 {
		return nil
	}
	return gitignore.NewMatcher(patterns)
}
