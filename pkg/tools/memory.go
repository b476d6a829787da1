package tools

// Memory tools let agents, and any MCP client, read and write the engine's
// memory store and conversations.

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

// MemoryLabel is the discovery label the memory tools are registered under.
const MemoryLabel = "memory"

type handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

/*
MemoryTools serves memory_search, memory_add and conversation_get over a
Manager.
*/
type MemoryTools struct {
	manager *memory.Manager
}

func NewMemoryTools(manager *memory.Manager) *MemoryTools {
	return &MemoryTools{manager: manager}
}

func (tools *MemoryTools) entries() []struct {
	tool    mcp.Tool
	handler handler
} {
	return []struct {
		tool    mcp.Tool
		handler handler
	}{
		{buildMemorySearchTool(), tools.handleMemorySearch},
		{buildMemoryAddTool(), tools.handleMemoryAdd},
		{buildConversationGetTool(), tools.handleConversationGet},
	}
}

// RegisterMCP attaches the memory tools to an MCP server.
func (tools *MemoryTools) RegisterMCP(srv *server.MCPServer) {
	for _, entry := range tools.entries() {
		srv.AddTool(entry.tool, server.ToolHandlerFunc(entry.handler))
	}
}

/*
RegisterStatic makes the memory tools discoverable in process under label,
so agent types can list them next to remote MCP servers.
*/
func (tools *MemoryTools) RegisterStatic(d *discovery.StaticDiscoverer, label string) {
	for _, entry := range tools.entries() {
		h := entry.handler
		name := entry.tool.Name

		d.Register(label, discovery.Tool{
			Name:        name,
			Description: entry.tool.Description,
			InputSchema: schemaOf(entry.tool),
		}, func(ctx context.Context, args map[string]any) (string, error) {
			req := mcp.CallToolRequest{}
			req.Params.Name = name
			req.Params.Arguments = args

			result, err := h(ctx, req)

			if err != nil {
				return "", err
			}

			return discovery.ResultText(result), nil
		})
	}
}

func schemaOf(tool mcp.Tool) map[string]any {
	buf, err := json.Marshal(tool.InputSchema)

	if err != nil {
		return nil
	}

	schema := map[string]any{}

	if err := json.Unmarshal(buf, &schema); err != nil {
		return nil
	}

	return schema
}

func buildMemorySearchTool() mcp.Tool {
	return mcp.NewTool(
		"memory_search",
		mcp.WithDescription("Searches long-term memories about the user, best matches first."),
		mcp.WithString("query",
			mcp.Description("Case-insensitive text to look for in memory content or tags"),
		),
		mcp.WithString("type",
			mcp.Description("Only return memories of this type"),
			mcp.Enum("fact", "preference", "relationship", "context", "skill"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of memories to return (default 10)"),
		),
		mcp.WithNumber("minConfidence",
			mcp.Description("Confidence floor between 0 and 1 (default 0.5)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Only return memories carrying at least one of these tags"),
		),
	)
}

func buildMemoryAddTool() mcp.Tool {
	return mcp.NewTool(
		"memory_add",
		mcp.WithDescription("Stores something worth remembering about the user and returns its id."),
		mcp.WithString("content",
			mcp.Description("What to remember"),
			mcp.Required(),
		),
		mcp.WithString("type",
			mcp.Description("Kind of memory (default 'fact')"),
			mcp.Enum("fact", "preference", "relationship", "context", "skill"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("How sure the agent is, between 0 and 1 (default 0.8)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for later lookup"),
		),
	)
}

func buildConversationGetTool() mcp.Tool {
	return mcp.NewTool(
		"conversation_get",
		mcp.WithDescription("Returns a conversation with its messages and summary."),
		mcp.WithString("id",
			mcp.Description("Conversation id"),
			mcp.Required(),
		),
		mcp.WithBoolean("includeContext",
			mcp.Description("Attach the memories most relevant to the conversation"),
		),
	)
}

func (tools *MemoryTools) handleMemorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	query := types.MemoryQuery{
		Tags: stringList(args["tags"]),
	}

	query.Query, _ = args["query"].(string)

	if kind, _ := args["type"].(string); kind != "" {
		query.Type = types.MemoryType(kind)
	}

	if limit, ok := number(args["limit"]); ok {
		query.Limit = int(limit)
	}

	if floor, ok := number(args["minConfidence"]); ok {
		query.MinConfidence = &floor
	}

	found := tools.manager.SearchMemories(ctx, query)

	buf, err := json.Marshal(map[string]any{
		"count":    len(found),
		"memories": found,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to encode memories: %v", err)
	}

	return mcp.NewToolResultText(string(buf)), nil
}

func (tools *MemoryTools) handleMemoryAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	entry := types.MemoryEntry{
		Type:       types.MemoryFact,
		Confidence: 0.8,
		Source:     "tool",
		Tags:       stringList(args["tags"]),
	}

	entry.Content, _ = args["content"].(string)

	if kind, _ := args["type"].(string); kind != "" {
		entry.Type = types.MemoryType(kind)
	}

	if confidence, ok := number(args["confidence"]); ok {
		entry.Confidence = confidence
	}

	if err := types.ValidateMemory(entry); err != nil {
		return nil, err
	}

	id := tools.manager.AddMemory(ctx, entry)
	return mcp.NewToolResultText(id), nil
}

func (tools *MemoryTools) handleConversationGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, _ := args["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	includeContext, _ := args["includeContext"].(bool)
	conv := tools.manager.GetConversation(ctx, id, includeContext)

	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", id)
	}

	buf, err := json.MarshalIndent(conv, "", "  ")

	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %v", err)
	}

	return mcp.NewToolResultText(string(buf)), nil
}

// number accepts JSON numbers and numeric strings.
func number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}

	return 0, false
}

// stringList accepts a JSON array or a comma separated string.
func stringList(raw any) []string {
	var out []string

	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}

	return out
}
