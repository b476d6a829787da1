package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	title         TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	tags          TEXT,
	summary       TEXT,
	context       TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	timestamp       INTEGER NOT NULL,
	agent_name      TEXT,
	tool_calls      TEXT,
	metadata        TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT,
	owner_id        TEXT NOT NULL,
	agent_type      TEXT NOT NULL,
	status          TEXT NOT NULL,
	start_time      INTEGER NOT NULL,
	last_activity   INTEGER NOT NULL
);
`

/*
Store is a Store backed by a SQLite database through the pure Go
modernc.org/sqlite driver. Messages live in their own table so an append is
a single insert; the AUTOINCREMENT sequence preserves insertion order.
*/
type Store struct {
	db *sql.DB
}

/*
Open opens (or creates) the database at path and applies the schema. Use
":memory:" for an ephemeral database.
*/
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Debug("sqlite store opened", "path", path)
	return &Store{db: db}, nil
}

func (store *Store) SaveConversation(ctx context.Context, conv *types.Conversation) error {
	tags, err := marshalNullable(conv.Tags)
	if err != nil {
		return err
	}

	convCtx, err := marshalNullable(conv.Context)
	if err != nil {
		return err
	}

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Transient(err, "begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, start_time, last_activity, tags, summary, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			title = excluded.title,
			last_activity = excluded.last_activity,
			tags = excluded.tags,
			summary = excluded.summary,
			context = excluded.context`,
		conv.ID, conv.OwnerID, conv.Title,
		conv.StartTime.UnixNano(), conv.LastActivity.UnixNano(),
		tags, nullString(conv.Summary), convCtx,
	)
	if err != nil {
		return errors.Transient(err, "save conversation %s", conv.ID)
	}

	for _, msg := range conv.Messages {
		if err := insertMessage(ctx, tx, conv.ID, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Transient(err, "commit conversation %s", conv.ID)
	}

	return nil
}

func (store *Store) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Transient(err, "begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET last_activity = ? WHERE id = ?",
		msg.Timestamp.UnixNano(), conversationID,
	)
	if err != nil {
		return errors.Transient(err, "touch conversation %s", conversationID)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("conversation %s", conversationID)
	}

	if err := insertMessage(ctx, tx, conversationID, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Transient(err, "commit message %s", msg.ID)
	}

	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, conversationID string, msg types.Message) error {
	calls, err := marshalNullable(msg.ToolCalls)
	if err != nil {
		return err
	}

	meta, err := marshalNullable(msg.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, agent_name, tool_calls, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tool_calls = excluded.tool_calls`,
		msg.ID, conversationID, string(msg.Role), msg.Content,
		msg.Timestamp.UnixNano(), nullString(msg.AgentName), calls, meta,
	)
	if err != nil {
		return errors.Transient(err, "insert message %s", msg.ID)
	}

	return nil
}

func (store *Store) LoadConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var (
		conv                = &types.Conversation{ID: id}
		start, last         int64
		tags, summary, cctx sql.NullString
	)

	err := store.db.QueryRowContext(ctx,
		"SELECT owner_id, title, start_time, last_activity, tags, summary, context FROM conversations WHERE id = ?",
		id,
	).Scan(&conv.OwnerID, &conv.Title, &start, &last, &tags, &summary, &cctx)

	if err == sql.ErrNoRows {
		return nil, errors.NotFound("conversation %s", id)
	}

	if err != nil {
		return nil, errors.Transient(err, "load conversation %s", id)
	}

	conv.StartTime = time.Unix(0, start)
	conv.LastActivity = time.Unix(0, last)

	if summary.Valid {
		s := summary.String
		conv.Summary = &s
	}

	if err := unmarshalNullable(tags, &conv.Tags); err != nil {
		return nil, err
	}

	if err := unmarshalNullable(cctx, &conv.Context); err != nil {
		return nil, err
	}

	rows, err := store.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, agent_name, tool_calls, metadata
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, errors.Transient(err, "load messages for %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg             types.Message
			role            string
			ts              int64
			agent, calls, m sql.NullString
		)

		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts, &agent, &calls, &m); err != nil {
			return nil, errors.Transient(err, "scan message")
		}

		msg.Role = types.Role(role)
		msg.Timestamp = time.Unix(0, ts)

		if agent.Valid {
			name := agent.String
			msg.AgentName = &name
		}

		if err := unmarshalNullable(calls, &msg.ToolCalls); err != nil {
			return nil, err
		}

		if err := unmarshalNullable(m, &msg.Metadata); err != nil {
			return nil, err
		}

		conv.Messages = append(conv.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Transient(err, "rows iteration error")
	}

	return conv, nil
}

func (store *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := store.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return errors.Transient(err, "delete conversation %s", id)
	}

	return nil
}

func (store *Store) SaveSession(ctx context.Context, record types.SessionRecord) error {
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, conversation_id, owner_id, agent_type, status, start_time, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			status = excluded.status,
			last_activity = excluded.last_activity`,
		record.ID, record.ConversationID, record.OwnerID, record.AgentType,
		string(record.Status), record.StartTime.UnixNano(), record.LastActivity.UnixNano(),
	)
	if err != nil {
		return errors.Transient(err, "save session %s", record.ID)
	}

	return nil
}

func (store *Store) LoadSession(ctx context.Context, id string) (*types.SessionRecord, error) {
	var (
		record      = &types.SessionRecord{ID: id}
		status      string
		start, last int64
		convID      sql.NullString
	)

	err := store.db.QueryRowContext(ctx,
		"SELECT conversation_id, owner_id, agent_type, status, start_time, last_activity FROM sessions WHERE id = ?",
		id,
	).Scan(&convID, &record.OwnerID, &record.AgentType, &status, &start, &last)

	if err == sql.ErrNoRows {
		return nil, errors.NotFound("session %s", id)
	}

	if err != nil {
		return nil, errors.Transient(err, "load session %s", id)
	}

	record.ConversationID = convID.String
	record.Status = types.SessionStatus(status)
	record.StartTime = time.Unix(0, start)
	record.LastActivity = time.Unix(0, last)
	return record, nil
}

func (store *Store) UpdateSessionStatus(
	ctx context.Context, id string, status types.SessionStatus, lastActivity time.Time,
) error {
	res, err := store.db.ExecContext(ctx,
		"UPDATE sessions SET status = ?, last_activity = ? WHERE id = ?",
		string(status), lastActivity.UnixNano(), id,
	)
	if err != nil {
		return errors.Transient(err, "update session %s", id)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("session %s", id)
	}

	return nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

func marshalNullable(v any) (sql.NullString, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, errors.Validation("value is not serialisable: %v", err)
	}

	if string(buf) == "null" {
		return sql.NullString{}, nil
	}

	return sql.NullString{String: string(buf), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, out any) error {
	if !s.Valid || s.String == "" {
		return nil
	}

	if err := json.Unmarshal([]byte(s.String), out); err != nil {
		return errors.Transient(err, "decode stored json")
	}

	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}
