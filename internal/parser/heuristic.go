package parser

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/standardbeagle/codeindexd/internal/types"
)

// HeuristicParser is the default fallback parser invoked when no
// specialized provider matches a known extension (spec.md §4.2). It
// extracts imports and top-level identifiers via line-level regular
// expressions rather than a real AST, matching the spec's "minimal
// symbols it can extract via line-level heuristics" description.
type HeuristicParser struct{}

// NewHeuristicParser constructs the fallback parser.
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

// SupportedExtensions returns nil: the fallback parser is never
// registered directly against an extension, only invoked by the
// Registry when no specific Provider matches.
func (HeuristicParser) SupportedExtensions() []string { return nil }

var (
	goFuncRe     = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	goTypeRe     = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+(struct|interface)\b`)
	goConstVarRe = regexp.MustCompile(`^(const|var)\s+([A-Za-z_][A-Za-z0-9_]*)\b`)
	goImportRe   = regexp.MustCompile(`^\s*"([^"]+)"\s*$`)

	pyDefRe    = regexp.MustCompile(`^(?:\s*)def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	pyClassRe  = regexp.MustCompile(`^(?:\s*)class\s+([A-Za-z_][A-Za-z0-9_]*)\b`)
	pyImportRe = regexp.MustCompile(`^\s*(?:import|from)\s+([A-Za-z0-9_.]+)`)

	jsFuncRe     = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	jsClassRe    = regexp.MustCompile(`^\s*(?:export\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)\b`)
	jsConstFnRe  = regexp.MustCompile(`^\s*(?:export\s+)?const\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s*)?\(`)
	jsImportRe   = regexp.MustCompile(`^\s*import\s+.*from\s+['"]([^'"]+)['"]`)
	jsRequireRe  = regexp.MustCompile(`require\(['"]([^'"]+)['"]\)`)
	jsExportName = regexp.MustCompile(`^\s*export\s+(?:default\s+)?(?:function|class|const|let|var)?\s*([A-Za-z_$][A-Za-z0-9_$]*)`)
)

// Parse applies a small per-language-family set of line regexes chosen by
// extension, falling back to a generic "identifier after a declaration
// keyword" scan for anything else.
func (HeuristicParser) Parse(pathRelative, content string) (types.ParsedFile, error) {
	ext := strings.ToLower(filepath.Ext(pathRelative))
	lines := strings.Split(content, "\n")

	byKind := map[types.SymbolKind][]string{}
	symbols := map[string]types.ParsedSymbol{}
	var imports, exports []string

	add := func(name string, kind types.SymbolKind, line int) {
		if name == "" {
			return
		}
		if _, exists := symbols[name]; exists {
			// Keep the first declaration; duplicates (e.g. overloaded
			// names) are rare for a heuristic scan and not worth a list.
			return
		}
		symbols[name] = types.ParsedSymbol{Kind: kind, Line: line + 1}
		byKind[kind] = append(byKind[kind], name)
	}

	switch ext {
	case ".go":
		for i, line := range lines {
			if m := goFuncRe.FindStringSubmatch(line); m != nil {
				kind := types.KindFunction
				if strings.Contains(line, ")") && strings.Index(line, "(") < strings.Index(line, ")") && strings.HasPrefix(strings.TrimSpace(line), "func (") {
					kind = types.KindMethod
				}
				add(m[1], kind, i)
			}
			if m := goTypeRe.FindStringSubmatch(line); m != nil {
				kind := types.KindStruct
				if m[2] == "interface" {
					kind = types.KindInterface
				}
				add(m[1], kind, i)
			}
			if m := goConstVarRe.FindStringSubmatch(line); m != nil {
				kind := types.KindVariable
				if m[1] == "const" {
					kind = types.KindConstant
				}
				add(m[2], kind, i)
			}
			if m := goImportRe.FindStringSubmatch(line); m != nil && strings.Contains(content, "import") {
				imports = append(imports, m[1])
			}
		}
	case ".py":
		for i, line := range lines {
			if m := pyDefRe.FindStringSubmatch(line); m != nil {
				add(m[1], types.KindFunction, i)
			}
			if m := pyClassRe.FindStringSubmatch(line); m != nil {
				add(m[1], types.KindClass, i)
			}
			if m := pyImportRe.FindStringSubmatch(line); m != nil {
				imports = append(imports, m[1])
			}
		}
	case ".js", ".jsx", ".ts", ".tsx":
		for i, line := range lines {
			if m := jsFuncRe.FindStringSubmatch(line); m != nil {
				add(m[1], types.KindFunction, i)
			}
			if m := jsClassRe.FindStringSubmatch(line); m != nil {
				add(m[1], types.KindClass, i)
			}
			if m := jsConstFnRe.FindStringSubmatch(line); m != nil {
				add(m[1], types.KindFunction, i)
			}
			if m := jsImportRe.FindStringSubmatch(line); m != nil {
				imports = append(imports, m[1])
			}
			for _, m := range jsRequireRe.FindAllStringSubmatch(line, -1) {
				imports = append(imports, m[1])
			}
			if m := jsExportName.FindStringSubmatch(line); m != nil {
				exports = append(exports, m[1])
			}
		}
	default:
		genericScan(lines, add)
	}

	return types.ParsedFile{
		Language:      languageForExt(ext),
		LineCount:     len(lines),
		SymbolsByKind: byKind,
		Imports:       imports,
		Exports:       exports,
		Symbols:       symbols,
	}, nil
}

var genericDeclRe = regexp.MustCompile(`\b(?:function|func|def|class|struct|interface)\s+([A-Za-z_][A-Za-z0-9_]*)`)

func genericScan(lines []string, add func(name string, kind types.SymbolKind, line int)) {
	for i, line := range lines {
		if m := genericDeclRe.FindStringSubmatch(line); m != nil {
			add(m[1], types.KindOther, i)
		}
	}
}

var extLanguage = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".java": "java", ".rb": "ruby",
	".rs": "rust", ".c": "c", ".h": "c", ".cc": "cpp", ".cpp": "cpp",
	".hpp": "cpp", ".cs": "csharp", ".php": "php", ".swift": "swift",
	".kt": "kotlin", ".scala": "scala", ".sh": "shell", ".bash": "shell",
	".lua": "lua", ".sql": "sql", ".md": "markdown", ".json": "json",
	".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
}

func languageForExt(ext string) string {
	if lang, ok := extLanguage[ext]; ok {
		return lang
	}
	return "unknown"
}
