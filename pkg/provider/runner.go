package provider

import (
	"context"
	"encoding/json"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
ToolExecutor runs a tool requested by the model. Arguments arrive as the raw
JSON string the model produced.
*/
type ToolExecutor func(ctx context.Context, name, arguments string) (string, error)

/*
Request is everything a runner needs for one agent turn: the instructions,
the working context, the new input and the tools it may call.
*/
type Request struct {
	Instructions string
	History      []types.Message
	Input        string
	Tools        []discovery.Tool
	Execute      ToolExecutor
}

type EventType string

const (
	EventText         EventType = "text"
	EventToolStart    EventType = "tool_start"
	EventToolComplete EventType = "tool_complete"
	EventError        EventType = "error"
)

type ToolCallEvent struct {
	ID        string
	Name      string
	Arguments string
	Result    string
}

/*
Event is one item in a runner's output stream. Streams end by closing the
channel; an EventError is always the last event before that.
*/
type Event struct {
	Type     EventType
	Text     string
	ToolCall *ToolCallEvent
	Err      error
}

type Response struct {
	Text      string
	ToolCalls []types.ToolCall
}

/*
Runner is the agent runtime. Run blocks until the final text; Stream reports
text deltas and tool activity as they are produced.
*/
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

/*
ToToolCall converts a finished tool event into the stored representation,
keeping only valid JSON in the opaque fields.
*/
func ToToolCall(ev *ToolCallEvent) types.ToolCall {
	call := types.ToolCall{ID: ev.ID, ToolName: ev.Name}

	if ev.Arguments != "" && json.Valid([]byte(ev.Arguments)) {
		call.Parameters = json.RawMessage(ev.Arguments)
	}

	if ev.Result != "" {
		if json.Valid([]byte(ev.Result)) {
			call.Result = json.RawMessage(ev.Result)
		} else if buf, err := json.Marshal(ev.Result); err == nil {
			call.Result = buf
		}
	}

	return call
}

func execute(ctx context.Context, req Request, name, arguments string) string {
	if req.Execute == nil {
		return "error: no tool executor available"
	}

	result, err := req.Execute(ctx, name, arguments)

	if err != nil {
		return "error: " + err.Error()
	}

	return result
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- ev:
		return true
	}
}
