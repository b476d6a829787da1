package stores

// Store is the durable side of the engine: conversations and session records
// are mirrored here so a session can be rejoined after the process that
// created it is gone. Every method is safe for concurrent use. Callers treat
// failures as transient; the in-memory state stays authoritative for live
// sessions.

import (
	"context"
	"time"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

type Store interface {
	SaveConversation(ctx context.Context, conv *types.Conversation) error
	AppendMessage(ctx context.Context, conversationID string, msg types.Message) error
	LoadConversation(ctx context.Context, id string) (*types.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SaveSession(ctx context.Context, record types.SessionRecord) error
	LoadSession(ctx context.Context, id string) (*types.SessionRecord, error)
	UpdateSessionStatus(ctx context.Context, id string, status types.SessionStatus, lastActivity time.Time) error
	Close() error
}
