package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

/*
MCPDiscoverer lists and calls tools on MCP servers reachable over SSE. Each
label maps to a server base URL; the client connects to <url>/sse.
*/
type MCPDiscoverer struct {
	endpoints map[string]string
}

func NewMCPDiscoverer(endpoints map[string]string) *MCPDiscoverer {
	return &MCPDiscoverer{endpoints: endpoints}
}

// Labels returns the configured labels.
func (discoverer *MCPDiscoverer) Labels() []string {
	labels := make([]string, 0, len(discoverer.endpoints))

	for label := range discoverer.endpoints {
		labels = append(labels, label)
	}

	return labels
}

func (discoverer *MCPDiscoverer) connect(ctx context.Context, label string) (*client.Client, error) {
	url, ok := discoverer.endpoints[label]

	if !ok || url == "" {
		log.Error("endpoint URL not found in config", "label", label)
		return nil, errors.NotFound("no MCP endpoint configured for %s", label)
	}

	sseTransport, err := transport.NewSSE(url + "/sse")

	if err != nil {
		log.Error("failed to create SSE transport", "error", err, "url", url)
		return nil, fmt.Errorf("failed to create SSE transport: %w", err)
	}

	if err := sseTransport.Start(ctx); err != nil {
		log.Error("failed to start SSE transport", "error", err, "url", url)
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}

	c := client.NewClient(sseTransport)

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "agentsdk-discovery",
		Version: "1.0.0",
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	serverInfo, err := c.Initialize(ctx, initRequest)

	if err != nil {
		c.Close()
		log.Error("failed to initialize", "error", err, "label", label)
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	log.Debug("connected to server", "label", label, "serverName", serverInfo.ServerInfo.Name)
	return c, nil
}

func (discoverer *MCPDiscoverer) Discover(ctx context.Context, label string) ([]Tool, error) {
	c, err := discoverer.connect(ctx, label)

	if err != nil {
		return nil, err
	}

	defer c.Close()

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})

	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))

	for _, tool := range result.Tools {
		tools = append(tools, fromMCPTool(label, tool))
	}

	return tools, nil
}

func fromMCPTool(label string, tool mcp.Tool) Tool {
	schema := map[string]any{
		"type":       "object",
		"properties": tool.InputSchema.Properties,
	}

	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}

	return Tool{
		Label:       label,
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}
}

func (discoverer *MCPDiscoverer) CallTool(
	ctx context.Context, label, name string, args map[string]any,
) (string, error) {
	c, err := discoverer.connect(ctx, label)

	if err != nil {
		return "", err
	}

	defer c.Close()

	log.Info("calling tool", "label", label, "toolName", name)

	callToolRequest := mcp.CallToolRequest{}
	callToolRequest.Params.Name = name
	callToolRequest.Params.Arguments = args

	result, err := c.CallTool(ctx, callToolRequest)

	if err != nil {
		log.Error("failed to call tool", "error", err, "tool", name)
		return "", fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	return ResultText(result), nil
}

/*
ResultText flattens a tool result to text; non-text content is JSON encoded.
*/
func ResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "[empty tool result]"
	}

	if text, ok := result.Content[0].(mcp.TextContent); ok {
		return text.Text
	}

	buf, err := json.Marshal(result.Content[0])

	if err != nil {
		log.Warn("failed to marshal tool result content", "error", err)
		return "[error marshalling result]"
	}

	return string(buf)
}
