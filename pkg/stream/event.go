package stream

import (
	"context"
	"encoding/json"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionError     EventType = "session.error"
	EventAgentThinking    EventType = "agent.thinking"
	EventMessageStreaming EventType = "message.streaming"
	EventToolCallStart    EventType = "tool.call.start"
	EventToolCallComplete EventType = "tool.call.complete"
	EventMessageReceived  EventType = "message.received"
	EventMemoryUpdated    EventType = "memory.updated"
	EventApprovalRequired EventType = "approval.required"
)

/*
Event is what the relay hands to the connection layer. Payload is one of the
payload types below, chosen by Type.
*/
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Payload   any       `json:"payload,omitempty"`
}

type ThinkingPayload struct {
	Step string `json:"step"`
}

/*
StreamingPayload frames a streamed reply. The first one for a request has
IsStart set, the last one IsComplete with the accumulated Content.
*/
type StreamingPayload struct {
	Chunk      string           `json:"chunk"`
	IsStart    bool             `json:"isStart,omitempty"`
	IsComplete bool             `json:"isComplete"`
	Error      bool             `json:"error,omitempty"`
	Message    string           `json:"message,omitempty"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []types.ToolCall `json:"toolCalls,omitempty"`
}

type ToolStartPayload struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

type ToolCompletePayload struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result,omitempty"`
}

type ReceivedPayload struct {
	FullMessage types.Message `json:"fullMessage"`
}

type MemoryPayload struct {
	Memories []types.MemoryEntry `json:"memories"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

/*
ApprovalPayload announces a tool call held until the session's user resolves
it through the approvals endpoint.
*/
type ApprovalPayload struct {
	Approval types.Approval `json:"approval"`
}

type SessionPayload struct {
	Session *types.Session `json:"session"`
}

/*
Emitter delivers events to whatever is connected to a session. Calls for a
single session are made sequentially, in the order events must arrive.
*/
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

type EmitterFunc func(ctx context.Context, event Event) error

func (fn EmitterFunc) Emit(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

/*
Decode rebuilds an event read off the wire, typing the payload by eventType.
Unknown types keep the raw payload.
*/
func Decode(eventType string, data []byte) (Event, error) {
	var raw struct {
		Type      EventType       `json:"type"`
		SessionID string          `json:"sessionId"`
		Payload   json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, err
	}

	ev := Event{Type: raw.Type, SessionID: raw.SessionID}

	if ev.Type == "" {
		ev.Type = EventType(eventType)
	}

	var payload any

	switch ev.Type {
	case EventAgentThinking:
		payload = &ThinkingPayload{}
	case EventMessageStreaming:
		payload = &StreamingPayload{}
	case EventToolCallStart:
		payload = &ToolStartPayload{}
	case EventToolCallComplete:
		payload = &ToolCompletePayload{}
	case EventMessageReceived:
		payload = &ReceivedPayload{}
	case EventMemoryUpdated:
		payload = &MemoryPayload{}
	case EventSessionError:
		payload = &ErrorPayload{}
	case EventSessionCreated:
		payload = &SessionPayload{}
	case EventApprovalRequired:
		payload = &ApprovalPayload{}
	default:
		ev.Payload = raw.Payload
		return ev, nil
	}

	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return Event{}, err
		}
	}

	switch p := payload.(type) {
	case *ThinkingPayload:
		ev.Payload = *p
	case *StreamingPayload:
		ev.Payload = *p
	case *ToolStartPayload:
		ev.Payload = *p
	case *ToolCompletePayload:
		ev.Payload = *p
	case *ReceivedPayload:
		ev.Payload = *p
	case *MemoryPayload:
		ev.Payload = *p
	case *ErrorPayload:
		ev.Payload = *p
	case *SessionPayload:
		ev.Payload = *p
	case *ApprovalPayload:
		ev.Payload = *p
	}

	return ev, nil
}
