package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/codeindexd/internal/errtax"
)

// jsonResult marshals data as the tool call's single text content block.
func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

// errResult reports cerr as an in-band tool error (IsError=true) rather
// than a protocol-level error, so the calling model can see and react to
// it per the MCP error-handling convention.
func errResult(operation string, cerr *errtax.CodeError) (*mcp.CallToolResult, error) {
	payload := map[string]interface{}{
		"success":   false,
		"operation": operation,
		"error_kind": cerr.Kind,
		"error":     cerr.Error(),
	}
	result, err := jsonResult(payload)
	if err != nil {
		return nil, err
	}
	result.IsError = true
	return result, nil
}

// asErr adapts a *errtax.CodeError into a plain error for call sites that
// want the standard error interface (e.g. the symbol-graph tool table).
func asErr(cerr *errtax.CodeError) error {
	if cerr == nil {
		return nil
	}
	return cerr
}
