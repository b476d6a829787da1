package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/metrics"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/provider"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

const failureMessage = "The agent could not complete this request. Please try again."

/*
AgentConfig is what a session's agent type resolves to. Tools named in
Approve only run once the session's user approves the call.
*/
type AgentConfig struct {
	Instructions string   `mapstructure:"instructions"`
	ToolLabels   []string `mapstructure:"tools"`
	Approve      []string `mapstructure:"approve"`
}

/*
Result is what one request produced. Failed is set when the agent runtime
broke off; Text then holds whatever arrived before that.
*/
type Result struct {
	Text      string           `json:"text"`
	ToolCalls []types.ToolCall `json:"toolCalls,omitempty"`
	Failed    bool             `json:"failed"`
}

/*
Relay runs agent turns for sessions and forwards their output to the
connection layer in order, then records the exchange in the conversation.
*/
type Relay struct {
	registry    *session.Registry
	manager     *memory.Manager
	coordinator *discovery.Coordinator
	runner      provider.Runner
	emitter     Emitter
	agents      map[string]AgentConfig
	metrics     *metrics.StreamingMetrics
	now         func() time.Time
}

type RelayOption func(*Relay)

func NewRelay(
	registry *session.Registry,
	manager *memory.Manager,
	coordinator *discovery.Coordinator,
	runner provider.Runner,
	emitter Emitter,
	options ...RelayOption,
) *Relay {
	relay := &Relay{
		registry:    registry,
		manager:     manager,
		coordinator: coordinator,
		runner:      runner,
		emitter:     emitter,
		agents:      make(map[string]AgentConfig),
		metrics:     metrics.NewStreamingMetrics(),
		now:         time.Now,
	}

	for _, option := range options {
		option(relay)
	}

	return relay
}

func WithAgents(agents map[string]AgentConfig) RelayOption {
	return func(relay *Relay) {
		for name, cfg := range agents {
			relay.agents[name] = cfg
		}
	}
}

func WithMetrics(m *metrics.StreamingMetrics) RelayOption {
	return func(relay *Relay) {
		relay.metrics = m
	}
}

func (relay *Relay) Metrics() *metrics.StreamingMetrics {
	return relay.metrics
}

/*
emit delivers event unless the session stopped being active. The check runs
here, at delivery, so a turn that outlives its session is swallowed.
*/
func (relay *Relay) emit(ctx context.Context, sessionID string, eventType EventType, payload any) {
	if !relay.registry.IsActive(sessionID) {
		relay.metrics.RecordEvent(true)
		log.Debug("dropping event for inactive session", "session", sessionID, "type", eventType)
		return
	}

	relay.metrics.RecordEvent(false)

	event := Event{Type: eventType, SessionID: sessionID, Payload: payload}

	if err := relay.emitter.Emit(ctx, event); err != nil {
		log.Warn("failed to emit event", "session", sessionID, "type", eventType, "error", err)
	}
}

/*
SessionCreated announces a new session on its own channel.
*/
func (relay *Relay) SessionCreated(ctx context.Context, s *types.Session) {
	relay.emit(ctx, s.ID, EventSessionCreated, SessionPayload{Session: s})
}

/*
NotifyMemories tells every session bound to conversationID about newly
extracted memories.
*/
func (relay *Relay) NotifyMemories(ctx context.Context, conversationID string, entries []types.MemoryEntry) {
	for _, id := range relay.registry.FindByConversation(conversationID) {
		relay.emit(ctx, id, EventMemoryUpdated, MemoryPayload{Memories: entries})
	}
}

/*
prepare joins the session and builds the runner request for input. held is
called for every tool call that waits on an approval.
*/
func (relay *Relay) prepare(
	ctx context.Context, sessionID, input string, held func(context.Context, types.Approval),
) (*types.Session, provider.Request, error) {
	if strings.TrimSpace(input) == "" {
		return nil, provider.Request{}, errors.Validation("message content must not be blank")
	}

	s, err := relay.registry.JoinSession(ctx, sessionID)

	if err != nil {
		return nil, provider.Request{}, err
	}

	if !s.IsActive {
		return nil, provider.Request{}, errors.Validation("session %s is closed", sessionID)
	}

	relay.registry.Touch(sessionID)

	agent := relay.agents[s.AgentType]
	req := provider.Request{Instructions: agent.Instructions, Input: input}

	if s.ConversationID != "" {
		if conv := relay.manager.GetConversation(ctx, s.ConversationID, false); conv != nil && conv.Summary != nil {
			req.Instructions = strings.TrimSpace(req.Instructions + "\n\n" + *conv.Summary)
		}

		if window, ok := relay.manager.GetContextWindow(ctx, s.ConversationID); ok {
			req.History = window.Messages
		}
	}

	if len(agent.ToolLabels) > 0 && relay.coordinator != nil {
		relay.emit(ctx, sessionID, EventAgentThinking, ThinkingPayload{Step: "discovering tools"})
		req.Tools = relay.coordinator.ToolSet(ctx, agent.ToolLabels)
		req.Execute = relay.executor(sessionID, req.Tools, agent.Approve, held)
	}

	return s, req, nil
}

func (relay *Relay) executor(
	sessionID string, tools []discovery.Tool, approve []string, held func(context.Context, types.Approval),
) provider.ToolExecutor {
	labels := make(map[string]string, len(tools))

	for _, tool := range tools {
		labels[tool.Name] = tool.Label
	}

	gated := make(map[string]bool, len(approve))

	for _, name := range approve {
		gated[name] = true
	}

	return func(ctx context.Context, name, arguments string) (string, error) {
		label, ok := labels[name]

		if !ok {
			return "", errors.NotFound("tool %s", name)
		}

		args := map[string]any{}

		if arguments != "" {
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", errors.Validation("arguments for %s are not a JSON object", name)
			}
		}

		if gated[name] {
			if denial, err := relay.await(ctx, sessionID, name, arguments, held); err != nil || denial != "" {
				return denial, err
			}
		}

		relay.metrics.RecordToolCall()

		return relay.coordinator.Call(ctx, label, name, args)
	}
}

/*
await records a pending approval for the call and blocks until the user
resolves it. A rejected call yields the denial result handed back to the
model in place of the tool's output.
*/
func (relay *Relay) await(
	ctx context.Context, sessionID, name, arguments string, held func(context.Context, types.Approval),
) (string, error) {
	params := json.RawMessage("{}")

	if arguments != "" {
		params = json.RawMessage(arguments)
	}

	pending, err := relay.registry.AddPendingApproval(sessionID, name, params)

	if err != nil {
		return "", err
	}

	log.Info("tool call awaiting approval", "session", sessionID, "tool", name, "approval", pending.ID)

	if held != nil {
		held(ctx, *pending)
	}

	decided, err := relay.registry.WaitForApproval(ctx, sessionID, pending.ID)

	if err != nil {
		return "", err
	}

	if decided.Approved == nil || !*decided.Approved {
		log.Info("tool call denied", "session", sessionID, "tool", name, "approval", pending.ID)

		buf, _ := json.Marshal(map[string]any{
			"denied":  true,
			"tool":    name,
			"message": "the user did not approve this tool call",
		})

		return string(buf), nil
	}

	return "", nil
}

/*
Stream runs one agent turn and relays it as it is produced. Exactly one
start and one terminal streaming event are emitted for every request that
gets past validation, whatever the runner does.
*/
func (relay *Relay) Stream(ctx context.Context, sessionID, input string) (Result, error) {
	// approvals reach the event order through the loop below
	approvals := make(chan types.Approval)

	s, req, err := relay.prepare(ctx, sessionID, input, func(ctx context.Context, approval types.Approval) {
		select {
		case approvals <- approval:
		case <-ctx.Done():
		}
	})

	if err != nil {
		return Result{}, err
	}

	var (
		result  Result
		text    strings.Builder
		started = relay.now()
		first   = true
		seen    = map[string]bool{}
	)

	relay.emit(ctx, sessionID, EventAgentThinking, ThinkingPayload{Step: "generating response"})
	relay.emit(ctx, sessionID, EventMessageStreaming, StreamingPayload{IsStart: true})

	events, err := relay.runner.Stream(ctx, req)

	if err != nil {
		log.Error("agent runtime failed to start", "session", sessionID, "error", errors.Transient(err, "stream"))
		result.Failed = true
		events = closed()
	}

	for {
		var (
			ev provider.Event
			ok bool
		)

		select {
		case approval := <-approvals:
			relay.emit(ctx, sessionID, EventApprovalRequired, ApprovalPayload{Approval: approval})
			continue
		case ev, ok = <-events:
		}

		if !ok {
			break
		}

		switch ev.Type {
		case provider.EventText:
			if first {
				relay.metrics.RecordFirstChunk(relay.now().Sub(started))
				first = false
			}

			text.WriteString(ev.Text)
			relay.emit(ctx, sessionID, EventMessageStreaming, StreamingPayload{Chunk: ev.Text})
		case provider.EventToolStart:
			seen[ev.ToolCall.ID] = true
			relay.emit(ctx, sessionID, EventToolCallStart, toolStart(ev.ToolCall))
		case provider.EventToolComplete:
			if !seen[ev.ToolCall.ID] {
				seen[ev.ToolCall.ID] = true
				relay.emit(ctx, sessionID, EventToolCallStart, toolStart(ev.ToolCall))
			}

			call := provider.ToToolCall(ev.ToolCall)
			result.ToolCalls = append(result.ToolCalls, call)
			relay.emit(ctx, sessionID, EventToolCallComplete, ToolCompletePayload{
				ID: call.ID, Name: call.ToolName, Result: call.Result,
			})
		case provider.EventError:
			log.Error("agent runtime failed", "session", sessionID, "error", errors.Transient(ev.Err, "stream"))
			result.Failed = true
		}
	}

	if !result.Failed && ctx.Err() != nil {
		result.Failed = true
	}

	result.Text = text.String()

	terminal := StreamingPayload{
		IsComplete: true,
		Content:    result.Text,
		ToolCalls:  result.ToolCalls,
		Error:      result.Failed,
	}

	if result.Failed {
		terminal.Message = failureMessage
	}

	relay.emit(ctx, sessionID, EventMessageStreaming, terminal)
	relay.metrics.RecordStream(!result.Failed, relay.now().Sub(started))
	relay.persist(ctx, s, input, result)

	return result, nil
}

/*
Send runs one agent turn without streaming and delivers the reply as a
single message.received event.
*/
func (relay *Relay) Send(ctx context.Context, sessionID, input string) (Result, error) {
	s, req, err := relay.prepare(ctx, sessionID, input, func(ctx context.Context, approval types.Approval) {
		relay.emit(ctx, sessionID, EventApprovalRequired, ApprovalPayload{Approval: approval})
	})

	if err != nil {
		return Result{}, err
	}

	started := relay.now()
	relay.emit(ctx, sessionID, EventAgentThinking, ThinkingPayload{Step: "generating response"})

	res, err := relay.runner.Run(ctx, req)
	result := Result{Text: res.Text, ToolCalls: res.ToolCalls}

	if err != nil {
		log.Error("agent runtime failed", "session", sessionID, "error", errors.Transient(err, "run"))
		result.Failed = true
		relay.emit(ctx, sessionID, EventSessionError, ErrorPayload{Message: failureMessage})
	} else {
		relay.emit(ctx, sessionID, EventMessageReceived, ReceivedPayload{FullMessage: types.Message{
			Role:      types.RoleAgent,
			Content:   result.Text,
			Timestamp: relay.now(),
			AgentName: agentName(s),
			ToolCalls: result.ToolCalls,
		}})
	}

	relay.metrics.RecordStream(!result.Failed, relay.now().Sub(started))
	relay.persist(ctx, s, input, result)

	return result, nil
}

/*
persist appends the exchange to the session's conversation. Failures are
logged; the reply has already been delivered.
*/
func (relay *Relay) persist(ctx context.Context, s *types.Session, input string, result Result) {
	if s.ConversationID == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)

	if _, err := relay.manager.AddMessage(ctx, s.ConversationID, types.MessageInput{
		Role:    types.RoleUser,
		Content: input,
	}); err != nil {
		log.Warn("failed to record user message", "session", s.ID, "error", errors.BestEffort(err, "persist"))
	}

	if result.Text == "" && len(result.ToolCalls) == 0 {
		return
	}

	in := types.MessageInput{
		Role:      types.RoleAgent,
		Content:   result.Text,
		AgentName: agentName(s),
		ToolCalls: result.ToolCalls,
	}

	if result.Failed {
		in.Metadata = map[string]any{"partial": true}
	}

	if _, err := relay.manager.AddMessage(ctx, s.ConversationID, in); err != nil {
		log.Warn("failed to record agent message", "session", s.ID, "error", errors.BestEffort(err, "persist"))
	}
}

func closed() <-chan provider.Event {
	ch := make(chan provider.Event)
	close(ch)
	return ch
}

func toolStart(ev *provider.ToolCallEvent) ToolStartPayload {
	call := provider.ToToolCall(ev)
	return ToolStartPayload{ID: call.ID, Name: call.ToolName, Params: call.Parameters}
}

func agentName(s *types.Session) *string {
	if s.AgentType == "" {
		return nil
	}

	name := s.AgentType
	return &name
}
