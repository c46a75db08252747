package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDecodeResult is what a tool decoder extracts from a call.
type MCPDecodeResult struct {
	Request any
	UserID  string
}

// MCPDecoder turns raw tool arguments into an endpoint request.
type MCPDecoder func(req mcp.CallToolRequest) (*MCPDecodeResult, error)

// RegisterMCPTool binds endpoint to tool on srv. The endpoint result is
// returned as JSON text; any error becomes a tool error result.
func RegisterMCPTool(srv *server.MCPServer, tool mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, MCPHandler(endpoint, decode))
}

// MCPHandler adapts endpoint to an mcp-go tool handler.
func MCPHandler(endpoint Endpoint, decode MCPDecoder) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		ctx = WithTransport(ctx, TransportMCP)
		ctx = WithRequestID(ctx, uuid.NewString())
		if decoded.UserID != "" {
			ctx = WithUserID(ctx, decoded.UserID)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
