package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

func call(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	return result.Content[0].(mcp.TextContent).Text
}

func TestMemoryTools(t *testing.T) {
	manager := memory.NewManager()
	defer manager.Close()

	tools := NewMemoryTools(manager)
	ctx := context.Background()

	t.Run("memory_add", func(t *testing.T) {
		result, err := tools.handleMemoryAdd(ctx, call("memory_add", map[string]any{
			"content":    "prefers tea",
			"type":       "preference",
			"confidence": 0.9,
			"tags":       []any{"drinks"},
		}))
		require.NoError(t, err)
		assert.NotEmpty(t, text(t, result))

		_, err = tools.handleMemoryAdd(ctx, call("memory_add", map[string]any{"content": ""}))
		assert.Error(t, err)

		_, err = tools.handleMemoryAdd(ctx, call("memory_add", map[string]any{"content": "x", "type": "mood"}))
		assert.Error(t, err)
	})

	t.Run("memory_search", func(t *testing.T) {
		result, err := tools.handleMemorySearch(ctx, call("memory_search", map[string]any{
			"query": "TEA",
			"tags":  "drinks, food",
			"limit": "5",
		}))
		require.NoError(t, err)

		var out struct {
			Count    int                 `json:"count"`
			Memories []types.MemoryEntry `json:"memories"`
		}
		require.NoError(t, json.Unmarshal([]byte(text(t, result)), &out))
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, "tool", out.Memories[0].Source)
	})

	t.Run("conversation_get", func(t *testing.T) {
		id := manager.CreateConversation(ctx, "u1", "chat", "hello")

		result, err := tools.handleConversationGet(ctx, call("conversation_get", map[string]any{"id": id}))
		require.NoError(t, err)

		var conv types.Conversation
		require.NoError(t, json.Unmarshal([]byte(text(t, result)), &conv))
		assert.Equal(t, id, conv.ID)
		assert.Len(t, conv.Messages, 1)

		_, err = tools.handleConversationGet(ctx, call("conversation_get", map[string]any{"id": "missing"}))
		assert.Error(t, err)
	})
}

func TestRegisterStatic(t *testing.T) {
	manager := memory.NewManager()
	defer manager.Close()

	static := discovery.NewStaticDiscoverer()
	NewMemoryTools(manager).RegisterStatic(static, MemoryLabel)

	coordinator := discovery.NewCoordinator(static)
	ctx := context.Background()

	assert.Equal(t, 3, coordinator.Discover(ctx, MemoryLabel))

	names := []string{}
	for _, tool := range coordinator.Tools(MemoryLabel) {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.Equal(t, []string{"memory_search", "memory_add", "conversation_get"}, names)

	id, err := coordinator.Call(ctx, MemoryLabel, "memory_add", map[string]any{"content": "lives in Oslo"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, manager.Stats().Memories)
}

func TestRegisterMCP(t *testing.T) {
	manager := memory.NewManager()
	defer manager.Close()

	srv := server.NewMCPServer("memory", "1.0.0", server.WithToolCapabilities(true))
	assert.NotPanics(t, func() { NewMemoryTools(manager).RegisterMCP(srv) })
}

func TestArgumentHelpers(t *testing.T) {
	f, ok := number("0.25")
	assert.True(t, ok)
	assert.Equal(t, 0.25, f)

	_, ok = number(nil)
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, stringList("a, ,b"))
	assert.Equal(t, []string{"a"}, stringList([]any{"a", 1}))
	assert.Nil(t, stringList(42))
}
