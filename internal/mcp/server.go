// Package mcp exposes internal/engine's named operation table (spec.md
// §6.1) as Model Context Protocol tools, over stdio.
package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/standardbeagle/codeindexd/internal/engine"
)

// Server adapts an *engine.Engine to the MCP tool-call protocol.
type Server struct {
	eng *engine.Engine
	log zerolog.Logger
	srv *mcp.Server
}

// NewServer builds a Server with every spec.md §6.1 operation registered
// as an MCP tool. Call Run to serve over stdio.
func NewServer(eng *engine.Engine, log zerolog.Logger) *Server {
	s := &Server{
		eng: eng,
		log: log,
		srv: mcp.NewServer(&mcp.Implementation{
			Name:    "codeindexd",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves the registered tools over stdio until ctx is cancelled or
// the transport closes.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

func strSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func intSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func boolSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func (s *Server) registerTools() {
	s.srv.AddTool(&mcp.Tool{
		Name:        "set_project_path",
		Description: "Bind the engine to a project root and run a full index.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": strSchema("absolute path to the project root")},
			Required:   []string{"path"},
		},
	}, s.handleSetProjectPath)

	s.srv.AddTool(&mcp.Tool{
		Name:        "refresh_index",
		Description: "Incrementally update the index for files changed since the last index or refresh.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleRefreshIndex)

	s.srv.AddTool(&mcp.Tool{
		Name:        "full_rebuild_index",
		Description: "Discard and rebuild the entire index from scratch.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleFullRebuildIndex)

	s.srv.AddTool(&mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed project: text, regex, or symbol-graph queries (references, definition, callers, implementations, hierarchy).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern":        strSchema("search pattern or symbol name"),
				"type":           strSchema("one of: text, regex, symbol, references, definition, callers, implementations, hierarchy"),
				"file_pattern":   strSchema("optional glob to restrict candidate files"),
				"case_sensitive": boolSchema("case-sensitive text/regex matching"),
				"limit":          intSchema("maximum number of hits to return"),
			},
			Required: []string{"pattern"},
		},
	}, s.handleSearchCode)

	s.srv.AddTool(&mcp.Tool{
		Name:        "find_files",
		Description: "List indexed files matching a glob pattern.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"glob": strSchema("glob pattern, e.g. **/*.go")},
			Required:   []string{"glob"},
		},
	}, s.handleFindFiles)

	s.srv.AddTool(&mcp.Tool{
		Name:        "get_file_summary",
		Description: "Return language, line/symbol counts, imports and exports for an indexed file.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": strSchema("file path, relative to the project root")},
			Required:   []string{"path"},
		},
	}, s.handleGetFileSummary)

	s.srv.AddTool(&mcp.Tool{
		Name:        "get_file_content",
		Description: "Return a file's content, optionally sliced to a line range and prefixed with line numbers.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":         strSchema("file path, relative to the project root"),
				"start_line":   intSchema("1-based start line, inclusive"),
				"end_line":     intSchema("1-based end line, inclusive"),
				"line_numbers": boolSchema("prefix each returned line with its line number"),
			},
			Required: []string{"path"},
		},
	}, s.handleGetFileContent)

	s.srv.AddTool(&mcp.Tool{
		Name:        "get_symbol_body",
		Description: "Return the full source body of a symbol's declaration, using the file's indentation or brace-depth block heuristic.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"symbol_name": strSchema("symbol name to look up"),
				"file_path":   strSchema("optional file path to disambiguate symbols with the same name"),
			},
			Required: []string{"symbol_name"},
		},
	}, s.handleGetSymbolBody)

	s.srv.AddTool(&mcp.Tool{
		Name:        "apply_edit",
		Description: "Atomically replace old_content with new_content in a file, with automatic backup and rollback on failure.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file_path":    strSchema("file path, relative to the project root"),
				"old_content":  strSchema("exact full-file content, or a substring to replace; empty means no validation"),
				"new_content":  strSchema("replacement content"),
			},
			Required: []string{"file_path", "new_content"},
		},
	}, s.handleApplyEdit)

	s.srv.AddTool(&mcp.Tool{
		Name:        "rename_symbol",
		Description: "Rename a symbol across every file that references it, as a single atomic transaction.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"old_name": strSchema("current symbol name"),
				"new_name": strSchema("new symbol name, a valid identifier"),
			},
			Required: []string{"old_name", "new_name"},
		},
	}, s.handleRenameSymbol)

	s.srv.AddTool(&mcp.Tool{
		Name:        "add_import",
		Description: "Insert an import statement into a file, after the last existing import or at the top.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file_path":        strSchema("file path, relative to the project root"),
				"import_statement": strSchema("the import statement to insert"),
			},
			Required: []string{"file_path", "import_statement"},
		},
	}, s.handleAddImport)

	s.registerSymbolGraphTools()
}

func (s *Server) registerSymbolGraphTools() {
	graphTools := []struct {
		name, desc string
		fn         func(string) (engine.SearchResult, error)
	}{
		{"find_references", "Find every reference to a symbol across the indexed project.", func(n string) (engine.SearchResult, error) { r, e := s.eng.FindReferences(n); return r, asErr(e) }},
		{"find_definition", "Find a symbol's declaration site.", func(n string) (engine.SearchResult, error) { r, e := s.eng.FindDefinition(n); return r, asErr(e) }},
		{"find_callers", "Find every symbol that calls a given symbol.", func(n string) (engine.SearchResult, error) { r, e := s.eng.FindCallers(n); return r, asErr(e) }},
		{"find_implementations", "Find classes/types implementing or matching a symbol's signature.", func(n string) (engine.SearchResult, error) { r, e := s.eng.FindImplementations(n); return r, asErr(e) }},
		{"find_hierarchy", "Find a symbol's caller hierarchy.", func(n string) (engine.SearchResult, error) { r, e := s.eng.FindHierarchy(n); return r, asErr(e) }},
	}

	for _, gt := range graphTools {
		gt := gt
		s.srv.AddTool(&mcp.Tool{
			Name:        gt.name,
			Description: gt.desc,
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"symbol_name": strSchema("symbol name to look up")},
				Required:   []string{"symbol_name"},
			},
		}, symbolGraphHandler(gt.fn))
	}
}
