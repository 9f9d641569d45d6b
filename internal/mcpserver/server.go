package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server exposing the txnsentinel tools.
func NewServer(client *Client) *server.MCPServer {
	s := server.NewMCPServer("txnsentinel", "1.0.0")
	h := NewHandlers(client)

	s.AddTool(ToolListAnomalies, h.HandleListAnomalies)
	s.AddTool(ToolListTransactions, h.HandleListTransactions)
	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolExplainTransaction, h.HandleExplainTransaction)
	s.AddTool(ToolRecomputeScores, h.HandleRecomputeScores)
	s.AddTool(ToolGetStats, h.HandleGetStats)

	return s
}
