package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

/*
Tool describes one externally provided tool that can be offered to the
agent.
*/
type Tool struct {
	Label       string         `json:"label"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

/*
Discoverer lists the tools published under a label. It is the slow external
call the Coordinator deduplicates.
*/
type Discoverer interface {
	Discover(ctx context.Context, label string) ([]Tool, error)
}

/*
Caller executes a tool published under a label and returns its textual
result.
*/
type Caller interface {
	CallTool(ctx context.Context, label, name string, args map[string]any) (string, error)
}

/*
Coordinator makes sure at most one discovery per label is in flight and
remembers successful, non-empty results. Failures and empty results are not
cached so a later call retries.
*/
type Coordinator struct {
	group      singleflight.Group
	mu         sync.RWMutex
	cache      map[string][]Tool
	generation map[string]uint64
	discoverer Discoverer
	timeout    time.Duration
}

type CoordinatorOption func(*Coordinator)

func NewCoordinator(discoverer Discoverer, options ...CoordinatorOption) *Coordinator {
	coordinator := &Coordinator{
		cache:      make(map[string][]Tool),
		generation: make(map[string]uint64),
		discoverer: discoverer,
		timeout:    30 * time.Second,
	}

	for _, option := range options {
		option(coordinator)
	}

	return coordinator
}

// WithTimeout bounds a single discovery call.
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(coordinator *Coordinator) {
		if timeout > 0 {
			coordinator.timeout = timeout
		}
	}
}

/*
Discover returns the number of tools available under label. Concurrent
callers for the same label share one underlying call. A caller whose context
ends stops waiting; the shared call carries on for the others.
*/
func (coordinator *Coordinator) Discover(ctx context.Context, label string) int {
	if tools, ok := coordinator.cached(label); ok {
		return len(tools)
	}

	ch := coordinator.group.DoChan(label, func() (any, error) {
		if tools, ok := coordinator.cached(label); ok {
			return tools, nil
		}

		coordinator.mu.RLock()
		generation := coordinator.generation[label]
		coordinator.mu.RUnlock()

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), coordinator.timeout)
		defer cancel()

		tools, err := coordinator.discoverer.Discover(callCtx, label)

		if err != nil {
			return nil, errors.Transient(err, "discover %s", label)
		}

		// an Invalidate during the call discards this result
		if len(tools) > 0 {
			coordinator.mu.Lock()
			if coordinator.generation[label] == generation {
				coordinator.cache[label] = tools
			}
			coordinator.mu.Unlock()
		}

		log.Debug("tools discovered", "label", label, "count", len(tools))
		return tools, nil
	})

	select {
	case <-ctx.Done():
		log.Warn("discovery wait abandoned", "label", label, "error", ctx.Err())
		return 0
	case res := <-ch:
		if res.Err != nil {
			log.Error("tool discovery failed", "label", label, "error", res.Err)
			return 0
		}

		return len(res.Val.([]Tool))
	}
}

func (coordinator *Coordinator) cached(label string) ([]Tool, bool) {
	coordinator.mu.RLock()
	defer coordinator.mu.RUnlock()

	tools, ok := coordinator.cache[label]
	return tools, ok && len(tools) > 0
}

// Tools returns the cached tools for label, if any.
func (coordinator *Coordinator) Tools(label string) []Tool {
	tools, _ := coordinator.cached(label)
	return append([]Tool(nil), tools...)
}

/*
Invalidate forgets the cached tools for label. A discovery already in flight
keeps serving its waiters and any caller that joins it, but its result is not
cached.
*/
func (coordinator *Coordinator) Invalidate(label string) {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	delete(coordinator.cache, label)
	coordinator.generation[label]++
}

/*
ToolSet discovers every label and returns the union of their tools, in
label order. Labels whose discovery fails contribute nothing.
*/
func (coordinator *Coordinator) ToolSet(ctx context.Context, labels []string) []Tool {
	var out []Tool

	for _, label := range labels {
		if coordinator.Discover(ctx, label) == 0 {
			continue
		}

		out = append(out, coordinator.Tools(label)...)
	}

	return out
}

/*
Call executes a tool through the underlying discoverer when it can also call
tools.
*/
func (coordinator *Coordinator) Call(
	ctx context.Context, label, name string, args map[string]any,
) (string, error) {
	caller, ok := coordinator.discoverer.(Caller)

	if !ok {
		return "", errors.Validation("tools under %s cannot be called", label)
	}

	return caller.CallTool(ctx, label, name, args)
}
