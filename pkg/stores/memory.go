package stores

import (
	"context"
	"sync"
	"time"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
InMemoryStore is the default Store. It keeps deep copies so callers cannot
reach into stored state, which makes it a faithful stand-in for a real
database in development and tests.
*/
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*types.Conversation
	sessions      map[string]types.SessionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*types.Conversation),
		sessions:      make(map[string]types.SessionRecord),
	}
}

func (s *InMemoryStore) SaveConversation(ctx context.Context, conv *types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv.Clone()
	return nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]

	if !ok {
		return errors.NotFound("conversation %s", conversationID)
	}

	for _, existing := range conv.Messages {
		if existing.ID == msg.ID {
			return nil
		}
	}

	conv.Messages = append(conv.Messages, msg.Clone())
	conv.LastActivity = msg.Timestamp
	return nil
}

func (s *InMemoryStore) LoadConversation(ctx context.Context, id string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]

	if !ok {
		return nil, errors.NotFound("conversation %s", id)
	}

	return conv.Clone(), nil
}

func (s *InMemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) SaveSession(ctx context.Context, record types.SessionRecord) error {
	s.mu.Lock()
	s.sessions[record.ID] = record
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) LoadSession(ctx context.Context, id string) (*types.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[id]

	if !ok {
		return nil, errors.NotFound("session %s", id)
	}

	return &record, nil
}

func (s *InMemoryStore) UpdateSessionStatus(
	ctx context.Context, id string, status types.SessionStatus, lastActivity time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]

	if !ok {
		return errors.NotFound("session %s", id)
	}

	record.Status = status
	record.LastActivity = lastActivity
	s.sessions[id] = record
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
