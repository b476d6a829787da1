package sse

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
)

/*
MCPBroker exposes an MCP server over SSE, for clients that cannot spawn the
stdio transport.
*/
type MCPBroker struct {
	srv  *server.MCPServer
	sse  *server.SSEServer
	addr string
}

func NewMCPBroker(srv *server.MCPServer, addr string) *MCPBroker {
	return &MCPBroker{
		srv:  srv,
		sse:  server.NewSSEServer(srv),
		addr: addr,
	}
}

func (b *MCPBroker) Start() error {
	return b.sse.Start(b.addr)
}

func (b *MCPBroker) Shutdown(ctx context.Context) error {
	return b.sse.Shutdown(ctx)
}

func (b *MCPBroker) Server() http.Handler {
	return b.sse
}
