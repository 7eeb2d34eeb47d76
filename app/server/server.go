package server

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCP wraps the registry into a Model Context Protocol server, servable over
// stdio or streamable http. Tool-call failures are returned as tool-error
// payloads, the transport never sees them as protocol errors.
type MCP struct {
	srv *server.MCPServer
	reg *Registry
}

// NewMCP registers every catalog operation and the prompts with an MCP server.
func NewMCP(reg *Registry, version string) *MCP {
	srv := server.NewMCPServer("quickbooks", version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	for _, tl := range reg.list {
		name := tl.Def.Name
		srv.AddTool(tl.Def, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := reg.Invoke(ctx, name, req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		})
	}
	addPrompts(srv)

	return &MCP{srv: srv, reg: reg}
}

// ServeStdio blocks serving the stdio transport until the client disconnects.
func (m *MCP) ServeStdio() error {
	log.Printf("[INFO] serve mcp on stdio, %d operations", len(m.reg.list))
	return server.ServeStdio(m.srv)
}

// ServeHTTP serves the streamable-http transport on the given port, shutting
// down when ctx is cancelled.
func (m *MCP) ServeHTTP(ctx context.Context, port int) error {
	log.Printf("[INFO] serve mcp on port %d, %d operations", port, len(m.reg.list))
	httpSrv := server.NewStreamableHTTPServer(m.srv)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] mcp http shutdown failed, %v", err)
		}
	}()

	return httpSrv.Start(fmt.Sprintf(":%d", port))
}
