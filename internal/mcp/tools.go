package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/codeindexd/internal/engine"
	"github.com/standardbeagle/codeindexd/internal/errtax"
	"github.com/standardbeagle/codeindexd/internal/search"
)

func decode(req *mcp.CallToolRequest, out interface{}) *errtax.CodeError {
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return errtax.Wrap(errtax.InvalidPath, "mcp.decode", err, "invalid tool arguments")
	}
	return nil
}

func (s *Server) handleSetProjectPath(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("set_project_path", cerr)
	}
	res, cerr := s.eng.SetProjectPath(args.Path)
	if cerr != nil {
		return errResult("set_project_path", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleRefreshIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, cerr := s.eng.RefreshIndex()
	if cerr != nil {
		return errResult("refresh_index", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleFullRebuildIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, cerr := s.eng.FullRebuildIndex()
	if cerr != nil {
		return errResult("full_rebuild_index", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleSearchCode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Pattern       string      `json:"pattern"`
		Type          search.Type `json:"type"`
		FilePattern   string      `json:"file_pattern"`
		CaseSensitive bool        `json:"case_sensitive"`
		Limit         int         `json:"limit"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("search_code", cerr)
	}
	if args.Type == "" {
		args.Type = search.Text
	}
	res, cerr := s.eng.SearchCode(search.Query{
		Pattern:       args.Pattern,
		Type:          args.Type,
		FilePattern:   args.FilePattern,
		CaseSensitive: args.CaseSensitive,
		Limit:         args.Limit,
	})
	if cerr != nil {
		return errResult("search_code", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleFindFiles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Glob string `json:"glob"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("find_files", cerr)
	}
	files, cerr := s.eng.FindFiles(args.Glob)
	if cerr != nil {
		return errResult("find_files", cerr)
	}
	return jsonResult(map[string]interface{}{"files": files})
}

func (s *Server) handleGetFileSummary(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("get_file_summary", cerr)
	}
	res, cerr := s.eng.GetFileSummary(args.Path)
	if cerr != nil {
		return errResult("get_file_summary", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleGetFileContent(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Path        string `json:"path"`
		StartLine   int    `json:"start_line"`
		EndLine     int    `json:"end_line"`
		LineNumbers bool   `json:"line_numbers"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("get_file_content", cerr)
	}
	res, cerr := s.eng.GetFileContent(args.Path, args.StartLine, args.EndLine, args.LineNumbers)
	if cerr != nil {
		return errResult("get_file_content", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleGetSymbolBody(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		SymbolName string `json:"symbol_name"`
		FilePath   string `json:"file_path"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("get_symbol_body", cerr)
	}
	res, cerr := s.eng.GetSymbolBody(args.SymbolName, args.FilePath)
	if cerr != nil {
		return errResult("get_symbol_body", cerr)
	}
	return jsonResult(res)
}

func (s *Server) handleApplyEdit(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		FilePath   string `json:"file_path"`
		OldContent string `json:"old_content"`
		NewContent string `json:"new_content"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("apply_edit", cerr)
	}
	res, cerr := s.eng.ApplyEdit(args.FilePath, args.OldContent, args.NewContent)
	if cerr != nil {
		return errResult("apply_edit", cerr)
	}
	if !res.OK {
		return errResult("apply_edit", res.Error)
	}
	return jsonResult(res)
}

func (s *Server) handleRenameSymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("rename_symbol", cerr)
	}
	res, cerr := s.eng.RenameSymbol(args.OldName, args.NewName)
	if cerr != nil {
		return errResult("rename_symbol", cerr)
	}
	if !res.OK {
		return errResult("rename_symbol", res.Error)
	}
	return jsonResult(res)
}

func (s *Server) handleAddImport(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		FilePath        string `json:"file_path"`
		ImportStatement string `json:"import_statement"`
	}
	if cerr := decode(req, &args); cerr != nil {
		return errResult("add_import", cerr)
	}
	res, cerr := s.eng.AddImport(args.FilePath, args.ImportStatement)
	if cerr != nil {
		return errResult("add_import", cerr)
	}
	if !res.OK {
		return errResult("add_import", res.Error)
	}
	return jsonResult(res)
}

func symbolGraphHandler(fn func(string) (engine.SearchResult, error)) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			SymbolName string `json:"symbol_name"`
		}
		if cerr := decode(req, &args); cerr != nil {
			return errResult("symbol_graph", cerr)
		}
		res, err := fn(args.SymbolName)
		if err != nil {
			if cerr, ok := err.(*errtax.CodeError); ok {
				return errResult("symbol_graph", cerr)
			}
			return errResult("symbol_graph", errtax.Wrap(errtax.IndexInconsistent, "mcp.symbol_graph", err, "unexpected error"))
		}
		return jsonResult(res)
	}
}
