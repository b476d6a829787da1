package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
AnthropicRunner runs agent turns against the Anthropic messages API.
*/
type AnthropicRunner struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	maxRounds int
}

type AnthropicRunnerOption func(*AnthropicRunner)

func NewAnthropicRunner(options ...AnthropicRunnerOption) *AnthropicRunner {
	runner := &AnthropicRunner{
		model:     "claude-3-5-haiku-latest",
		maxTokens: 4096,
		maxRounds: 8,
	}

	for _, option := range options {
		option(runner)
	}

	if runner.client == nil {
		client := anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
		runner.client = &client
	}

	return runner
}

func WithAnthropicClient(client *anthropic.Client) AnthropicRunnerOption {
	return func(runner *AnthropicRunner) {
		runner.client = client
	}
}

func WithAnthropicModel(model string) AnthropicRunnerOption {
	return func(runner *AnthropicRunner) {
		if model != "" {
			runner.model = model
		}
	}
}

func (runner *AnthropicRunner) params(req Request, messages []anthropic.MessageParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(runner.model),
		Messages:  messages,
		MaxTokens: runner.maxTokens,
		Tools:     convertAnthropicTools(req.Tools),
	}

	if system := systemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return params
}

func (runner *AnthropicRunner) Run(ctx context.Context, req Request) (Response, error) {
	var (
		out      Response
		messages = convertAnthropicMessages(req)
	)

	for round := 0; round < runner.maxRounds; round++ {
		reply, err := runner.client.Messages.New(ctx, runner.params(req, messages))

		if err != nil {
			return out, err
		}

		messages = append(messages, reply.ToParam())
		text, results := runner.handleBlocks(ctx, req, reply, func(ev *ToolCallEvent) {
			out.ToolCalls = append(out.ToolCalls, ToToolCall(ev))
		})

		if len(results) == 0 {
			out.Text = text
			return out, nil
		}

		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	return out, fmt.Errorf("tool loop exceeded %d rounds", runner.maxRounds)
}

/*
handleBlocks executes every tool_use block of reply and returns the text
blocks joined together plus the tool results to send back.
*/
func (runner *AnthropicRunner) handleBlocks(
	ctx context.Context, req Request, reply *anthropic.Message, onDone func(*ToolCallEvent),
) (string, []anthropic.ContentBlockParamUnion) {
	var (
		text    strings.Builder
		results []anthropic.ContentBlockParamUnion
	)

	for _, block := range reply.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			ev := &ToolCallEvent{ID: content.ID, Name: content.Name, Arguments: string(content.Input)}
			ev.Result = execute(ctx, req, ev.Name, ev.Arguments)
			onDone(ev)
			results = append(results, anthropic.NewToolResultBlock(content.ID, ev.Result, strings.HasPrefix(ev.Result, "error: ")))
		}
	}

	return text.String(), results
}

func (runner *AnthropicRunner) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	ch := make(chan Event)

	go func() {
		defer close(ch)

		messages := convertAnthropicMessages(req)

		for round := 0; round < runner.maxRounds; round++ {
			stream := runner.client.Messages.NewStreaming(ctx, runner.params(req, messages))
			message := anthropic.Message{}

			for stream.Next() {
				event := stream.Current()

				if err := message.Accumulate(event); err != nil {
					log.Error("failed to accumulate message event", "error", err)
					continue
				}

				if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok && delta.Delta.Text != "" {
					if !send(ctx, ch, Event{Type: EventText, Text: delta.Delta.Text}) {
						stream.Close()
						return
					}
				}
			}

			err := stream.Err()
			stream.Close()

			if err != nil {
				log.Error("anthropic stream failed", "error", err)
				send(ctx, ch, Event{Type: EventError, Err: err})
				return
			}

			messages = append(messages, message.ToParam())

			var results []anthropic.ContentBlockParamUnion

			for _, block := range message.Content {
				use, ok := block.AsAny().(anthropic.ToolUseBlock)

				if !ok {
					continue
				}

				ev := &ToolCallEvent{ID: use.ID, Name: use.Name, Arguments: string(use.Input)}

				if !send(ctx, ch, Event{Type: EventToolStart, ToolCall: ev}) {
					return
				}

				done := *ev
				done.Result = execute(ctx, req, ev.Name, ev.Arguments)

				if !send(ctx, ch, Event{Type: EventToolComplete, ToolCall: &done}) {
					return
				}

				results = append(results, anthropic.NewToolResultBlock(use.ID, done.Result, strings.HasPrefix(done.Result, "error: ")))
			}

			if len(results) == 0 {
				return
			}

			messages = append(messages, anthropic.NewUserMessage(results...))
		}

		send(ctx, ch, Event{Type: EventError, Err: fmt.Errorf("tool loop exceeded %d rounds", runner.maxRounds)})
	}()

	return ch, nil
}

func systemPrompt(req Request) string {
	parts := []string{}

	if req.Instructions != "" {
		parts = append(parts, req.Instructions)
	}

	for _, msg := range req.History {
		if msg.Role == types.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}

	return strings.Join(parts, "\n\n")
}

func convertAnthropicMessages(req Request) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(req.History)+1)

	for _, msg := range req.History {
		if msg.Content == "" {
			continue
		}

		switch msg.Role {
		case types.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case types.RoleAgent:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)))
}

func convertAnthropicTools(tools []discovery.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.InputSchema["properties"],
			},
		}

		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	return out
}
