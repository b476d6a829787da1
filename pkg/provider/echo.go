package provider

import (
	"context"
	"strings"
)

/*
EchoRunner answers every turn by repeating the input back in small chunks.
It needs no credentials, which makes it the default for local use.
*/
type EchoRunner struct {
	ChunkSize int
}

func NewEchoRunner() *EchoRunner {
	return &EchoRunner{ChunkSize: 8}
}

func (runner *EchoRunner) Run(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	return Response{Text: "echo: " + req.Input}, nil
}

func (runner *EchoRunner) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	ch := make(chan Event)
	text := "echo: " + req.Input
	size := max(runner.ChunkSize, 1)

	go func() {
		defer close(ch)

		runes := []rune(text)

		for start := 0; start < len(runes); start += size {
			end := min(start+size, len(runes))

			if !send(ctx, ch, Event{Type: EventText, Text: string(runes[start:end])}) {
				return
			}
		}
	}()

	return ch, nil
}

/*
ScriptedRunner replays a fixed list of events. Tool events with an empty
Result are executed through the request's executor first.
*/
type ScriptedRunner struct {
	Events []Event
	Err    error
}

func (runner *ScriptedRunner) Run(ctx context.Context, req Request) (Response, error) {
	if runner.Err != nil {
		return Response{}, runner.Err
	}

	var (
		out  Response
		text strings.Builder
	)

	for _, ev := range runner.Events {
		switch ev.Type {
		case EventText:
			text.WriteString(ev.Text)
		case EventToolComplete:
			done := *ev.ToolCall

			if done.Result == "" {
				done.Result = execute(ctx, req, done.Name, done.Arguments)
			}

			out.ToolCalls = append(out.ToolCalls, ToToolCall(&done))
		case EventError:
			return out, ev.Err
		}
	}

	out.Text = text.String()

	return out, nil
}

func (runner *ScriptedRunner) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if runner.Err != nil {
		return nil, runner.Err
	}

	ch := make(chan Event)

	go func() {
		defer close(ch)

		for _, ev := range runner.Events {
			if ev.Type == EventToolComplete && ev.ToolCall != nil && ev.ToolCall.Result == "" {
				done := *ev.ToolCall
				done.Result = execute(ctx, req, done.Name, done.Arguments)
				ev.ToolCall = &done
			}

			if !send(ctx, ch, ev) {
				return
			}
		}
	}()

	return ch, nil
}
