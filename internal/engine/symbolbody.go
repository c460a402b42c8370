package engine

import (
	"strings"

	"github.com/standardbeagle/codeindexd/internal/errtax"
	"github.com/standardbeagle/codeindexd/internal/types"
)

// maxBodyLines caps how far get_symbol_body scans forward, so a
// malformed or unrecognized-language file can't make a single lookup
// scan the entire file.
const maxBodyLines = 2000

// SymbolBody is get_symbol_body's success payload (spec.md §6.1).
type SymbolBody struct {
	SymbolName string
	Kind       types.SymbolKind
	StartLine  int
	EndLine    int
	BodyLines  []string
	Signature  string
}

// indentationLanguages use Python-style indentation to delimit blocks;
// everything else is assumed brace-delimited (SPEC_FULL.md §3's
// "get_symbol_body line-range extraction" algorithm).
var indentationLanguages = map[string]bool{
	"python": true,
	"yaml":   true,
}

// GetSymbolBody implements SPEC_FULL.md §3's body-extraction algorithm:
// locate the SymbolRecord (optionally disambiguated by filePath), then
// scan forward from its declaration line using the file's language to
// pick an indentation-based or brace-based block-closing heuristic.
func (e *Engine) GetSymbolBody(symbolName, filePath string) (SymbolBody, *errtax.CodeError) {
	if cerr := e.requireProject(); cerr != nil {
		return SymbolBody{}, cerr
	}

	recs, ok := e.store.GetSymbol(symbolName)
	if !ok || len(recs) == 0 {
		return SymbolBody{}, errtax.New(errtax.SymbolNotFound, "engine.get_symbol_body", "%s not found in index", symbolName)
	}

	rec := recs[0]
	if filePath != "" {
		for _, r := range recs {
			if r.File == filePath {
				rec = r
				break
			}
		}
	}

	lines, err := e.cache.GetFileLines(e.diskPath(rec.File))
	if err != nil {
		return SymbolBody{}, errtax.Wrap(errtax.FileNotFound, "engine.get_symbol_body", err, "cannot read %s", rec.File).WithPath(rec.File)
	}

	language := ""
	if fr, ok := e.store.GetFile(rec.File); ok {
		language = fr.Language
	}

	startIdx := rec.Line - 1
	if startIdx < 0 || startIdx >= len(lines) {
		return SymbolBody{}, errtax.New(errtax.SymbolNotFound, "engine.get_symbol_body", "declaration line %d out of range for %s", rec.Line, rec.File).WithPath(rec.File)
	}

	endIdx := findBlockEnd(lines, startIdx, language)

	body := lines[startIdx:endIdx]
	return SymbolBody{
		SymbolName: rec.Name,
		Kind:       rec.Kind,
		StartLine:  startIdx + 1,
		EndLine:    endIdx,
		BodyLines:  body,
		Signature:  rec.Signature,
	}, nil
}

// findBlockEnd returns the exclusive end line index of the block opened
// at lines[startIdx], using an indentation-return-to-baseline heuristic
// for indentation-based languages and a brace-depth-to-zero heuristic
// otherwise. For indentation-based languages, blank lines after the last
// indented line are not part of the block.
func findBlockEnd(lines []string, startIdx int, language string) int {
	limit := startIdx + maxBodyLines
	if limit > len(lines) {
		limit = len(lines)
	}

	if indentationLanguages[language] {
		baseIndent := indentOf(lines[startIdx])
		lastBody := startIdx
		for i := startIdx + 1; i < limit; i++ {
			trimmed := strings.TrimSpace(lines[i])
			if trimmed == "" {
				continue
			}
			if indentOf(lines[i]) <= baseIndent {
				break
			}
			lastBody = i
		}
		return lastBody + 1
	}

	depth := 0
	seenOpen := false
	for i := startIdx; i < limit; i++ {
		for _, c := range lines[i] {
			switch c {
			case '{':
				depth++
				seenOpen = true
			case '}':
				depth--
			}
		}
		if seenOpen && depth <= 0 {
			return i + 1
		}
	}
	return limit
}

func indentOf(line string) int {
	n := 0
	for _, c := range line {
		if c == ' ' {
			n++
		} else if c == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}
