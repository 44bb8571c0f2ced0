package actionwatch

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/actionwatch/kit"
)

// RegisterMCP registers the actionwatch tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerResolveTool(srv)
	s.registerScanTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "actionwatch_resolve",
		Description: "Resolve a link to an action endpoint through the trust checkpoints without fetching the action.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Link to resolve"},
		}, []string{"url"}),
	}
	kit.RegisterMCPTool(srv, tool, s.resolveEndpoint(), kit.JSONArgs[ResolveRequest]())
}

func (s *Service) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "actionwatch_scan",
		Description: "Scan an HTML document for action links, mount the approved actions, and return the mount instructions.",
		InputSchema: inputSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "Document markup"},
			"url":      map[string]any{"type": "string", "description": "Page URL the document was loaded from"},
			"platform": map[string]any{"type": "string", "description": "Discovery heuristics: x or feed"},
		}, []string{"html"}),
	}
	kit.RegisterMCPTool(srv, tool, s.scanEndpoint(), kit.JSONArgs[ScanRequest]())
}
