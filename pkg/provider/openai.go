package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
roleMap picks the chat completion message constructor for each history role.
*/
var roleMap = map[types.Role]func(string) openai.ChatCompletionMessageParamUnion{
	types.RoleSystem: openai.SystemMessage[string],
	types.RoleUser:   openai.UserMessage[string],
	types.RoleAgent:  openai.AssistantMessage[string],
}

/*
OpenAIRunner runs agent turns against the OpenAI chat completions API,
looping while the model keeps requesting tools.
*/
type OpenAIRunner struct {
	client    *openai.Client
	model     string
	maxRounds int
}

type OpenAIRunnerOption func(*OpenAIRunner)

func NewOpenAIRunner(options ...OpenAIRunnerOption) *OpenAIRunner {
	runner := &OpenAIRunner{
		model:     openai.ChatModelGPT4oMini,
		maxRounds: 8,
	}

	for _, option := range options {
		option(runner)
	}

	if runner.client == nil {
		client := openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
		runner.client = &client
	}

	return runner
}

func WithOpenAIClient(client *openai.Client) OpenAIRunnerOption {
	return func(runner *OpenAIRunner) {
		runner.client = client
	}
}

func WithOpenAIModel(model string) OpenAIRunnerOption {
	return func(runner *OpenAIRunner) {
		if model != "" {
			runner.model = model
		}
	}
}

func WithOpenAIMaxRounds(n int) OpenAIRunnerOption {
	return func(runner *OpenAIRunner) {
		runner.maxRounds = n
	}
}

func (runner *OpenAIRunner) params(messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(runner.model),
		Messages: messages,
	}

	if len(tools) > 0 {
		params.Tools = tools
	}

	return params
}

func (runner *OpenAIRunner) Run(ctx context.Context, req Request) (Response, error) {
	var (
		out      Response
		messages = convertMessages(req)
		tools    = convertTools(req.Tools)
	)

	for round := 0; round < runner.maxRounds; round++ {
		completion, err := runner.client.Chat.Completions.New(ctx, runner.params(messages, tools))

		if err != nil {
			return out, err
		}

		if len(completion.Choices) == 0 {
			return out, fmt.Errorf("completion returned no choices")
		}

		reply := completion.Choices[0].Message

		if len(reply.ToolCalls) == 0 {
			out.Text = reply.Content
			return out, nil
		}

		messages = append(messages, reply.ToParam())

		for _, call := range reply.ToolCalls {
			ev := &ToolCallEvent{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}
			ev.Result = execute(ctx, req, ev.Name, ev.Arguments)
			out.ToolCalls = append(out.ToolCalls, ToToolCall(ev))
			messages = append(messages, openai.ToolMessage(ev.Result, call.ID))
		}
	}

	return out, fmt.Errorf("tool loop exceeded %d rounds", runner.maxRounds)
}

func (runner *OpenAIRunner) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	ch := make(chan Event)

	go func() {
		defer close(ch)

		messages := convertMessages(req)
		tools := convertTools(req.Tools)

		for round := 0; round < runner.maxRounds; round++ {
			stream := runner.client.Chat.Completions.NewStreaming(ctx, runner.params(messages, tools))
			acc := openai.ChatCompletionAccumulator{}

			for stream.Next() {
				chunk := stream.Current()
				acc.AddChunk(chunk)

				if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
					if !send(ctx, ch, Event{Type: EventText, Text: chunk.Choices[0].Delta.Content}) {
						stream.Close()
						return
					}
				}
			}

			err := stream.Err()
			stream.Close()

			if err != nil {
				log.Error("openai stream failed", "error", err)
				send(ctx, ch, Event{Type: EventError, Err: err})
				return
			}

			if len(acc.Choices) == 0 || len(acc.Choices[0].Message.ToolCalls) == 0 {
				return
			}

			reply := acc.Choices[0].Message
			messages = append(messages, reply.ToParam())

			for _, call := range reply.ToolCalls {
				ev := &ToolCallEvent{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}

				if !send(ctx, ch, Event{Type: EventToolStart, ToolCall: ev}) {
					return
				}

				done := *ev
				done.Result = execute(ctx, req, ev.Name, ev.Arguments)

				if !send(ctx, ch, Event{Type: EventToolComplete, ToolCall: &done}) {
					return
				}

				messages = append(messages, openai.ToolMessage(done.Result, call.ID))
			}
		}

		send(ctx, ch, Event{Type: EventError, Err: fmt.Errorf("tool loop exceeded %d rounds", runner.maxRounds)})
	}()

	return ch, nil
}

func convertMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)

	if req.Instructions != "" {
		out = append(out, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.History {
		if msg.Content == "" {
			continue
		}

		if fn, ok := roleMap[msg.Role]; ok {
			out = append(out, fn(msg.Content))
		}
	}

	return append(out, openai.UserMessage(req.Input))
}

func convertTools(tools []discovery.Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))

	for _, tool := range tools {
		schema := tool.InputSchema

		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}

	return out
}
