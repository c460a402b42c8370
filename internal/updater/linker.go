package updater

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/standardbeagle/codeindexd/internal/types"
)

// LinkReferences performs the index-wide reverse-edge pass spec.md §9
// describes: for every known symbol name, scan every indexed file's
// content for word-boundary occurrences outside the declaration line
// itself, recording them as References, and — when the occurrence looks
// like a call site — attributing the call to the nearest preceding
// function/method declared in that same file, recorded in CalledBy.
//
// This runs over the whole project rather than incrementally: call sites
// can live in any file, so a single changed file can only ever narrow,
// never safely extend, another file's reference set without a full
// rescan. The engine runs it after each Update, while still holding the
// coordination lock; the edit engine's ForceUpdateFile calls are not
// followed by a linking pass.
func (u *Updater) LinkReferences() error {
	names := u.store.AllSymbolNames()
	if len(names) == 0 {
		return nil
	}

	type callSite struct {
		loc    string
		caller string
	}
	refs := make(map[string][]string)
	calls := make(map[string][]callSite)

	paths := u.store.FilePaths()
	fileLines := make(map[string][]string, len(paths))
	fileDecls := make(map[string][]types.SymbolRecord, len(paths))

	for _, p := range paths {
		content, err := readFile(filepath.Join(u.root, p))
		if err != nil {
			continue
		}
		fileLines[p] = strings.Split(content, "\n")
	}

	for _, name := range names {
		recs, _ := u.store.GetSymbol(name)
		for _, r := range recs {
			if r.Kind == types.KindFunction || r.Kind == types.KindMethod {
				fileDecls[r.File] = append(fileDecls[r.File], r)
			}
		}
	}
	for p := range fileDecls {
		decls := fileDecls[p]
		sort.Slice(decls, func(i, j int) bool { return decls[i].Line < decls[j].Line })
		fileDecls[p] = decls
	}

	for _, name := range names {
		decls, _ := u.store.GetSymbol(name)
		declLines := make(map[string]int, len(decls))
		for _, d := range decls {
			declLines[d.File] = d.Line
		}

		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		callPattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`)

		for p, lines := range fileLines {
			for i, line := range lines {
				if !pattern.MatchString(line) {
					continue
				}
				lineNo := i + 1
				if dl, ok := declLines[p]; ok && dl == lineNo {
					continue
				}
				refs[name] = append(refs[name], types.RefLocation(p, lineNo))

				if callPattern.MatchString(line) {
					caller := enclosingFunction(fileDecls[p], lineNo)
					if caller != "" {
						calls[name] = append(calls[name], callSite{
							loc:    types.RefLocation(p, lineNo),
							caller: caller,
						})
					}
				}
			}
		}
	}

	for name, locs := range refs {
		u.applyReferences(name, locs)
	}
	for name, sites := range calls {
		callers := make(map[string]struct{}, len(sites))
		for _, s := range sites {
			callers[s.caller] = struct{}{}
		}
		u.applyCalledBy(name, callers)
	}
	return nil
}

func (u *Updater) applyReferences(name string, locs []string) {
	recs, ok := u.store.GetSymbol(name)
	if !ok {
		return
	}
	for _, r := range recs {
		u.store.MutateSymbol(name, r.File, r.Line, func(s *types.SymbolRecord) {
			s.References = locs
		})
	}
}

func (u *Updater) applyCalledBy(name string, callers map[string]struct{}) {
	recs, ok := u.store.GetSymbol(name)
	if !ok {
		return
	}
	for _, r := range recs {
		u.store.MutateSymbol(name, r.File, r.Line, func(s *types.SymbolRecord) {
			s.CalledBy = callers
		})
	}
}

// enclosingFunction returns the name of the last function/method declared
// in decls at or before line, or "" if none precedes it.
func enclosingFunction(decls []types.SymbolRecord, line int) string {
	best := ""
	for _, d := range decls {
		if d.Line > line {
			break
		}
		best = d.Name
	}
	return best
}
