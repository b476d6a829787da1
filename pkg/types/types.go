package types

// This package holds the data model shared by the memory manager, the
// session registry and the streaming relay. Field names are camel-cased in
// JSON so the default encoding/json marshaller serves both the HTTP layer and
// the durable stores without bespoke glue.

import (
	"encoding/json"
	"time"
)

// ===== Conversations ============================================================================

type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

/*
Conversation is the ordered record of everything said between an owner and
the agents serving them. Messages only ever grow; LastActivity tracks the
timestamp of the newest message.
*/
type Conversation struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"ownerId"`
	Title        string         `json:"title"`
	StartTime    time.Time      `json:"startTime"`
	LastActivity time.Time      `json:"lastActivity"`
	Messages     []Message      `json:"messages"`
	Tags         []string       `json:"tags,omitempty"`
	Summary      *string        `json:"summary,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

/*
Clone returns a copy that can be handed to callers without exposing the
stored slices and maps.
*/
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))

	for i, msg := range c.Messages {
		out.Messages[i] = msg.Clone()
	}

	out.Tags = append([]string(nil), c.Tags...)
	out.Context = make(map[string]any, len(c.Context))

	for k, v := range c.Context {
		out.Context[k] = v
	}

	if c.Summary != nil {
		s := *c.Summary
		out.Summary = &s
	}

	return &out
}

// AddTag inserts tag if it is not already present.
func (c *Conversation) AddTag(tag string) {
	for _, t := range c.Tags {
		if t == tag {
			return
		}
	}

	c.Tags = append(c.Tags, tag)
}

type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	AgentName *string        `json:"agentName,omitempty"`
	ToolCalls []ToolCall     `json:"toolCalls,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m Message) Clone() Message {
	out := m
	out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)

	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))

		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}

	return out
}

// HasToolCalls reports whether the message recorded any tool invocation.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

/*
ToolCall records one tool invocation. Parameters and Result are opaque JSON
values; Result is attached at most once after the call completes.
*/
type ToolCall struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"toolName"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

/*
MessageInput is what callers supply when appending; the manager assigns the
id and timestamp.
*/
type MessageInput struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	AgentName *string        `json:"agentName,omitempty"`
	ToolCalls []ToolCall     `json:"toolCalls,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ===== Memories =================================================================================

type MemoryType string

const (
	MemoryFact         MemoryType = "fact"
	MemoryPreference   MemoryType = "preference"
	MemoryRelationship MemoryType = "relationship"
	MemoryContext      MemoryType = "context"
	MemorySkill        MemoryType = "skill"
)

/*
MemoryEntry is a durable fact about the user. Entries are never mutated after
creation; a changed fact is stored as a new entry.
*/
type MemoryEntry struct {
	ID         string         `json:"id"`
	Type       MemoryType     `json:"type"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the entry has an expiry at or before now.
func (m MemoryEntry) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

/*
MemoryQuery filters and ranks memories. Zero values for Limit and
MinConfidence are replaced by the defaults (10 and 0.5).
*/
type MemoryQuery struct {
	Query         string     `json:"query,omitempty"`
	Type          MemoryType `json:"type,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	MinConfidence *float64   `json:"minConfidence,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	TimeRange     *TimeRange `json:"timeRange,omitempty"`
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ===== Context window ===========================================================================

/*
ContextWindow is the token-bounded view of a conversation that is sent to
the agent. Its messages are always a subset of the conversation's messages in
their original order.
*/
type ContextWindow struct {
	ConversationID string    `json:"conversationId"`
	MaxTokens      int       `json:"maxTokens"`
	CurrentTokens  int       `json:"currentTokens"`
	Messages       []Message `json:"messages"`
	PriorityScore  float64   `json:"priorityScore"`
}
