// Package parser implements the Parser Registry (spec.md §4.2, C2): a
// mapping from file extension to a parser capable of producing a
// uniform types.ParsedFile from (path, content). Per-language parsers are
// pluggable collaborators (spec.md §1 names them out of scope for this
// core); this package ships the registry, the Provider contract, and a
// default fallback parser driven by line-level heuristics.
package parser

import (
	"github.com/standardbeagle/codeindexd/internal/debug"
	"github.com/standardbeagle/codeindexd/internal/types"
)

// Provider is the capability set a language parser must expose (spec.md
// §6.1 "Parser provider"). Providers are held in a table keyed by
// extension rather than a parser class hierarchy (spec.md §9).
type Provider interface {
	SupportedExtensions() []string
	Parse(pathRelative, content string) (types.ParsedFile, error)
}

// Registry maps extension -> Provider, falling back to a heuristic parser
// for any recognized-but-unmapped extension.
type Registry struct {
	byExt    map[string]Provider
	fallback Provider
}

// NewRegistry builds a Registry with the built-in heuristic fallback
// parser and no specialized providers. Callers add specialized providers
// with Register.
func NewRegistry() *Registry {
	return &Registry{
		byExt:    make(map[string]Provider),
		fallback: NewHeuristicParser(),
	}
}

// Register installs a Provider for every extension it declares,
// overwriting any existing mapping for that extension.
func (r *Registry) Register(p Provider) {
	for _, ext := range p.SupportedExtensions() {
		r.byExt[ext] = p
	}
}

// Parse dispatches to the registered provider for ext, or the fallback
// parser when none is registered. Parser failures are recoverable: the
// registry catches them and returns an empty ParsedFile plus the error as
// a warning signal; it never propagates a panic.
func (r *Registry) Parse(ext, pathRelative, content string) (types.ParsedFile, error) {
	p, ok := r.byExt[ext]
	if !ok {
		p = r.fallback
	}

	parsed, err := safeParse(p, pathRelative, content)
	if err != nil {
		debug.Tracef("parser", "parse failed for %s: %v (empty result returned)", pathRelative, err)
		return types.ParsedFile{
			SymbolsByKind: map[types.SymbolKind][]string{},
			Symbols:       map[string]types.ParsedSymbol{},
		}, err
	}
	return parsed, nil
}

// safeParse recovers from a panicking provider, converting it to an
// error so one malformed file never takes down a whole index build.
func safeParse(p Provider, path, content string) (parsed types.ParsedFile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &parsePanic{path: path, value: r}
		}
	}()
	return p.Parse(path, content)
}

type parsePanic struct {
	path  string
	value interface{}
}

func (e *parsePanic) Error() string {
	return "parser panicked for " + e.path
}
