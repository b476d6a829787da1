package types

import (
	"encoding/json"
	"time"
)

// ===== Sessions =================================================================================

/*
Session binds one live client connection to a conversation and an agent
configuration. Closed sessions stay queryable until the idle sweep removes
them.
*/
type Session struct {
	ID               string               `json:"id"`
	ConversationID   string               `json:"conversationId,omitempty"`
	OwnerID          string               `json:"ownerId"`
	AgentType        string               `json:"agentType"`
	IsActive         bool                 `json:"isActive"`
	StartTime        time.Time            `json:"startTime"`
	LastActivity     time.Time            `json:"lastActivity"`
	PendingApprovals map[string]*Approval `json:"pendingApprovals,omitempty"`
}

// HasUnresolvedApprovals reports whether any approval is still waiting.
func (s *Session) HasUnresolvedApprovals() bool {
	for _, a := range s.PendingApprovals {
		if !a.Resolved {
			return true
		}
	}

	return false
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

/*
SessionRecord is the durable projection of a Session.
*/
type SessionRecord struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId,omitempty"`
	OwnerID        string        `json:"ownerId"`
	AgentType      string        `json:"agentType"`
	Status         SessionStatus `json:"status"`
	StartTime      time.Time     `json:"startTime"`
	LastActivity   time.Time     `json:"lastActivity"`
}

/*
Approval is a tool call waiting for a user decision. It is resolved exactly
once; Approved is nil until then.
*/
type Approval struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"toolName"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Resolved   bool            `json:"resolved"`
	Approved   *bool           `json:"approved,omitempty"`
}
