package discovery

import (
	"context"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

/*
StaticHandler executes a locally provided tool.
*/
type StaticHandler func(ctx context.Context, args map[string]any) (string, error)

type staticTool struct {
	tool    Tool
	handler StaticHandler
}

/*
StaticDiscoverer serves tools registered in process. It lets in-process
capabilities, such as the memory tools, sit behind the same Coordinator as
remote MCP servers.
*/
type StaticDiscoverer struct {
	labels map[string][]staticTool
}

func NewStaticDiscoverer() *StaticDiscoverer {
	return &StaticDiscoverer{labels: make(map[string][]staticTool)}
}

// Register adds tool under label. It is not safe to call after serving starts.
func (discoverer *StaticDiscoverer) Register(label string, tool Tool, handler StaticHandler) {
	tool.Label = label
	discoverer.labels[label] = append(discoverer.labels[label], staticTool{tool: tool, handler: handler})
}

func (discoverer *StaticDiscoverer) Discover(ctx context.Context, label string) ([]Tool, error) {
	entries, ok := discoverer.labels[label]

	if !ok {
		return nil, errors.NotFound("label %s", label)
	}

	tools := make([]Tool, len(entries))

	for i, entry := range entries {
		tools[i] = entry.tool
	}

	return tools, nil
}

func (discoverer *StaticDiscoverer) CallTool(
	ctx context.Context, label, name string, args map[string]any,
) (string, error) {
	for _, entry := range discoverer.labels[label] {
		if entry.tool.Name == name {
			return entry.handler(ctx, args)
		}
	}

	return "", errors.NotFound("tool %s under %s", name, label)
}
