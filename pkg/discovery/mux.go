package discovery

import (
	"context"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

/*
Mux routes labels to the first discoverer that knows them, so remote MCP
servers and in-process tools can share one Coordinator.
*/
type Mux struct {
	routes map[string]Discoverer
}

func NewMux() *Mux {
	return &Mux{routes: make(map[string]Discoverer)}
}

func (mux *Mux) Handle(label string, discoverer Discoverer) {
	mux.routes[label] = discoverer
}

func (mux *Mux) Discover(ctx context.Context, label string) ([]Tool, error) {
	discoverer, ok := mux.routes[label]

	if !ok {
		return nil, errors.NotFound("no discoverer for %s", label)
	}

	return discoverer.Discover(ctx, label)
}

func (mux *Mux) CallTool(ctx context.Context, label, name string, args map[string]any) (string, error) {
	discoverer, ok := mux.routes[label]

	if !ok {
		return "", errors.NotFound("no discoverer for %s", label)
	}

	caller, ok := discoverer.(Caller)

	if !ok {
		return "", errors.Validation("tools under %s cannot be called", label)
	}

	return caller.CallTool(ctx, label, name, args)
}
