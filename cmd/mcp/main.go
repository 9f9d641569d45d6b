// txnsentinel MCP server - exposes anomaly inspection tools to LLMs over stdio
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"txnsentinel/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("TXNSENTINEL_API_URL", "http://localhost:8080"),
	}

	client := mcpserver.NewClient(cfg)
	s := mcpserver.NewServer(client)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
