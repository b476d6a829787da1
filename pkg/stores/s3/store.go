package s3

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
Store mirrors conversations and session records into an S3 bucket as one
JSON object each, under conversations/<id>.json and sessions/<id>.json.
Appends are read-modify-write and serialised per store.
*/
type Store struct {
	conn *Conn
	mu   sync.Mutex
}

func NewStore(conn *Conn) *Store {
	return &Store{conn: conn}
}

func conversationKey(id string) string {
	return "conversations/" + id + ".json"
}

func sessionKey(id string) string {
	return "sessions/" + id + ".json"
}

func (store *Store) SaveConversation(ctx context.Context, conv *types.Conversation) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	return store.put(ctx, conversationKey(conv.ID), conv)
}

func (store *Store) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	conv := &types.Conversation{}

	if err := store.get(ctx, conversationKey(conversationID), conv); err != nil {
		return err
	}

	for _, existing := range conv.Messages {
		if existing.ID == msg.ID {
			return nil
		}
	}

	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = msg.Timestamp

	return store.put(ctx, conversationKey(conversationID), conv)
}

func (store *Store) LoadConversation(ctx context.Context, id string) (*types.Conversation, error) {
	conv := &types.Conversation{}

	if err := store.get(ctx, conversationKey(id), conv); err != nil {
		return nil, err
	}

	return conv, nil
}

/*
DeleteConversation removes the object. Missing objects are not an error.
*/
func (store *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := store.conn.Delete(ctx, conversationKey(id)); err != nil && !IsNoSuchKey(err) {
		log.Error("failed to delete conversation", "id", id, "error", err)
		return errors.Transient(err, "delete conversation %s", id)
	}

	return nil
}

func (store *Store) SaveSession(ctx context.Context, record types.SessionRecord) error {
	return store.put(ctx, sessionKey(record.ID), record)
}

func (store *Store) LoadSession(ctx context.Context, id string) (*types.SessionRecord, error) {
	record := &types.SessionRecord{}

	if err := store.get(ctx, sessionKey(id), record); err != nil {
		return nil, err
	}

	return record, nil
}

func (store *Store) UpdateSessionStatus(
	ctx context.Context, id string, status types.SessionStatus, lastActivity time.Time,
) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	record := &types.SessionRecord{}

	if err := store.get(ctx, sessionKey(id), record); err != nil {
		return err
	}

	record.Status = status
	record.LastActivity = lastActivity

	return store.put(ctx, sessionKey(id), record)
}

func (store *Store) Close() error {
	return nil
}

func (store *Store) get(ctx context.Context, key string, out any) error {
	data, err := store.conn.Get(ctx, key)

	if err != nil {
		if IsNoSuchKey(err) {
			return errors.NotFound("object %s", key)
		}

		log.Error("failed to get object", "key", key, "error", err)
		return errors.Transient(err, "get %s", key)
	}

	if err := json.Unmarshal(data, out); err != nil {
		log.Error("failed to unmarshal object", "key", key, "error", err)
		return errors.Transient(err, "decode %s", key)
	}

	return nil
}

func (store *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)

	if err != nil {
		return errors.Validation("failed to marshal %s: %v", key, err)
	}

	if err := store.conn.Put(ctx, key, data); err != nil {
		log.Error("failed to store object", "key", key, "error", err)
		return errors.Transient(err, "put %s", key)
	}

	return nil
}
