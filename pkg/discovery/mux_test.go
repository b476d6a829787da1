package discovery

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

func TestMux(t *testing.T) {
	static := NewStaticDiscoverer()
	static.Register("local", Tool{Name: "echo"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "echo", nil
	})

	mux := NewMux()
	mux.Handle("local", static)

	tools, err := mux.Discover(context.Background(), "local")
	assert.NoError(t, err)
	assert.Len(t, tools, 1)

	_, err = mux.Discover(context.Background(), "remote")
	assert.True(t, errors.IsNotFound(err))

	out, err := mux.CallTool(context.Background(), "local", "echo", nil)
	assert.NoError(t, err)
	assert.Equal(t, "echo", out)
}

func TestMCPDiscovererUnknownLabel(t *testing.T) {
	discoverer := NewMCPDiscoverer(map[string]string{})
	_, err := discoverer.Discover(context.Background(), "svc-a")
	assert.True(t, errors.IsNotFound(err))
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "hello", ResultText(mcp.NewToolResultText("hello")))
	assert.Equal(t, "[empty tool result]", ResultText(&mcp.CallToolResult{}))
}
