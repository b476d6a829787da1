package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

const (
	DefaultSweepInterval = 30 * time.Minute
	DefaultIdleTimeout   = 60 * time.Minute
)

/*
CreateParams describes a new session. With ContextAware set and no
ConversationID a fresh conversation is created for the owner.
*/
type CreateParams struct {
	AgentType      string `json:"agentType"`
	OwnerID        string `json:"ownerId"`
	ContextAware   bool   `json:"contextAware"`
	ConversationID string `json:"conversationId,omitempty"`
	Title          string `json:"title,omitempty"`
}

/*
Registry tracks live sessions. A session is created against the durable
store so that its id survives the process; joining an id that is not in
memory reconstructs it from the durable record.
*/
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	waiters  map[string]chan struct{}
	joins    singleflight.Group
	memory   *memory.Manager
	durable  stores.Store
	retry    *errors.RetryConfig
	now      func() time.Time
}

type RegistryOption func(*Registry)

func NewRegistry(manager *memory.Manager, durable stores.Store, options ...RegistryOption) *Registry {
	registry := &Registry{
		sessions: make(map[string]*types.Session),
		waiters:  make(map[string]chan struct{}),
		memory:   manager,
		durable:  durable,
		retry:    errors.DefaultRetryConfig(),
		now:      time.Now,
	}

	for _, option := range options {
		option(registry)
	}

	return registry
}

func WithClock(now func() time.Time) RegistryOption {
	return func(registry *Registry) {
		registry.now = now
	}
}

func WithRetry(cfg *errors.RetryConfig) RegistryOption {
	return func(registry *Registry) {
		registry.retry = cfg
	}
}

/*
CreateSession registers a new active session. The id is the id of the
durable record; when the durable write fails the session still starts under
that id and the failure is logged.
*/
func (registry *Registry) CreateSession(ctx context.Context, params CreateParams) (*types.Session, error) {
	if err := types.ValidateOwner(params.OwnerID); err != nil {
		return nil, err
	}

	conversationID := params.ConversationID

	if conversationID != "" && registry.memory != nil {
		if _, err := registry.memory.Restore(ctx, conversationID); err != nil {
			return nil, err
		}
	}

	if conversationID == "" && params.ContextAware && registry.memory != nil {
		title := params.Title

		if title == "" {
			title = params.AgentType + " session"
		}

		conversationID = registry.memory.CreateConversation(ctx, params.OwnerID, title, "")
	}

	now := registry.now()

	record := types.SessionRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		OwnerID:        params.OwnerID,
		AgentType:      params.AgentType,
		Status:         types.SessionActive,
		StartTime:      now,
		LastActivity:   now,
	}

	if registry.durable != nil {
		if err := errors.RetryWithBackoff(ctx, registry.retry, func() error {
			return registry.durable.SaveSession(ctx, record)
		}); err != nil {
			log.Warn("session not persisted", "session", record.ID, "error", err)
		}
	}

	session := fromRecord(record)

	registry.mu.Lock()
	registry.sessions[session.ID] = session
	registry.mu.Unlock()

	log.Info("session created", "session", session.ID, "conversation", conversationID, "agent", params.AgentType)
	return cloneSession(session), nil
}

func fromRecord(record types.SessionRecord) *types.Session {
	return &types.Session{
		ID:               record.ID,
		ConversationID:   record.ConversationID,
		OwnerID:          record.OwnerID,
		AgentType:        record.AgentType,
		IsActive:         record.Status == types.SessionActive,
		StartTime:        record.StartTime,
		LastActivity:     record.LastActivity,
		PendingApprovals: map[string]*types.Approval{},
	}
}

/*
JoinSession returns the live session, reconstructing it from the durable
record when it is not in memory. Concurrent joins for one id share a single
reconstruction.
*/
func (registry *Registry) JoinSession(ctx context.Context, id string) (*types.Session, error) {
	if session, ok := registry.lookup(id); ok {
		return session, nil
	}

	if registry.durable == nil {
		return nil, errors.NotFound("session %s", id)
	}

	res, err, _ := registry.joins.Do(id, func() (any, error) {
		if session, ok := registry.lookup(id); ok {
			return session, nil
		}

		record, err := registry.durable.LoadSession(ctx, id)

		if err != nil {
			return nil, err
		}

		if record.ConversationID != "" && registry.memory != nil {
			if _, err := registry.memory.Restore(ctx, record.ConversationID); err != nil {
				log.Warn("conversation not restored", "session", id, "conversation", record.ConversationID, "error", err)
			}
		}

		session := fromRecord(*record)

		registry.mu.Lock()
		if existing, ok := registry.sessions[id]; ok {
			session = existing
		} else {
			registry.sessions[id] = session
		}
		out := cloneSession(session)
		registry.mu.Unlock()

		log.Info("session rejoined", "session", id, "active", out.IsActive)
		return out, nil
	})

	if err != nil {
		return nil, err
	}

	return res.(*types.Session), nil
}

func (registry *Registry) lookup(id string) (*types.Session, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	session, ok := registry.sessions[id]

	if !ok {
		return nil, false
	}

	return cloneSession(session), true
}

// Get returns a copy of the in-memory session without touching the durable store.
func (registry *Registry) Get(id string) (*types.Session, bool) {
	return registry.lookup(id)
}

// IsActive reports whether id is a live, active session.
func (registry *Registry) IsActive(id string) bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	session, ok := registry.sessions[id]
	return ok && session.IsActive
}

// Touch records activity on the session.
func (registry *Registry) Touch(id string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if session, ok := registry.sessions[id]; ok {
		session.LastActivity = registry.now()
	}
}

/*
CloseSession marks the session inactive and denies its pending approvals.
It stays in the registry until the next sweep.
*/
func (registry *Registry) CloseSession(ctx context.Context, id string) bool {
	registry.mu.Lock()
	session, ok := registry.sessions[id]

	if !ok {
		registry.mu.Unlock()
		return false
	}

	session.IsActive = false
	session.LastActivity = registry.now()
	last := session.LastActivity
	denied := registry.denyPending(session)
	registry.mu.Unlock()

	if denied > 0 {
		log.Info("pending approvals denied on close", "session", id, "count", denied)
	}

	if registry.durable != nil {
		if err := registry.durable.UpdateSessionStatus(ctx, id, types.SessionClosed, last); err != nil {
			log.Warn("session close not persisted", "session", id, "error", err)
		}
	}

	log.Info("session closed", "session", id)
	return true
}

/*
SweepIdle removes sessions that are inactive or idle for longer than maxAge
and returns how many went. Sessions with an unresolved approval are kept.
Idle sessions are also marked closed in the durable store.
*/
func (registry *Registry) SweepIdle(ctx context.Context, maxAge time.Duration) int {
	cutoff := registry.now().Add(-maxAge)

	registry.mu.Lock()

	removed := 0
	expired := map[string]time.Time{}

	for id, session := range registry.sessions {
		if session.IsActive && !session.LastActivity.Before(cutoff) {
			continue
		}

		if session.HasUnresolvedApprovals() {
			log.Info("sweep blocked by pending approval", "session", id)
			continue
		}

		if session.IsActive {
			expired[id] = session.LastActivity
		}

		delete(registry.sessions, id)
		removed++
	}

	remaining := len(registry.sessions)
	registry.mu.Unlock()

	// idle sessions close for good, so a later join finds them closed
	if registry.durable != nil {
		for id, last := range expired {
			if err := registry.durable.UpdateSessionStatus(ctx, id, types.SessionClosed, last); err != nil {
				log.Warn("idle session close not persisted", "session", id, "error", err)
			}
		}
	}

	if removed > 0 {
		log.Info("idle sessions swept", "removed", removed, "idle", len(expired), "remaining", remaining)
	}

	return removed
}

// Run sweeps on every interval until ctx is done.
func (registry *Registry) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.SweepIdle(ctx, maxAge)
		}
	}
}

// FindByConversation returns the ids of active sessions bound to conversationID.
func (registry *Registry) FindByConversation(conversationID string) []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var ids []string

	for id, session := range registry.sessions {
		if session.IsActive && session.ConversationID == conversationID {
			ids = append(ids, id)
		}
	}

	return ids
}

func (registry *Registry) Count() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.sessions)
}

/*
AddPendingApproval records a tool call that waits for the user.
*/
func (registry *Registry) AddPendingApproval(
	sessionID, toolName string, params json.RawMessage,
) (*types.Approval, error) {
	if len(params) > 0 && !json.Valid(params) {
		return nil, errors.Validation("approval parameters are not valid JSON")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	session, ok := registry.sessions[sessionID]

	if !ok {
		return nil, errors.NotFound("session %s", sessionID)
	}

	approval := &types.Approval{
		ID:         uuid.NewString(),
		ToolName:   toolName,
		Parameters: params,
		Timestamp:  registry.now(),
	}

	session.PendingApprovals[approval.ID] = approval
	registry.waiters[approval.ID] = make(chan struct{})

	out := *approval
	return &out, nil
}

/*
ResolvePendingApproval records the decision once. Resolving again returns
the stored decision unchanged.
*/
func (registry *Registry) ResolvePendingApproval(
	sessionID, approvalID string, approved bool,
) (*types.Approval, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	session, ok := registry.sessions[sessionID]

	if !ok {
		return nil, errors.NotFound("session %s", sessionID)
	}

	approval, ok := session.PendingApprovals[approvalID]

	if !ok {
		return nil, errors.NotFound("approval %s", approvalID)
	}

	if !approval.Resolved {
		registry.resolve(approval, approved)
		log.Info("approval resolved", "session", sessionID, "approval", approvalID, "approved", approved)
	}

	out := *approval
	return &out, nil
}

// resolve records the decision and wakes waiters. Callers hold mu.
func (registry *Registry) resolve(approval *types.Approval, approved bool) {
	approval.Resolved = true
	approval.Approved = &approved

	if waiter, ok := registry.waiters[approval.ID]; ok {
		close(waiter)
		delete(registry.waiters, approval.ID)
	}
}

// denyPending rejects every unresolved approval of session. Callers hold mu.
func (registry *Registry) denyPending(session *types.Session) int {
	denied := 0

	for _, approval := range session.PendingApprovals {
		if !approval.Resolved {
			registry.resolve(approval, false)
			denied++
		}
	}

	return denied
}

/*
WaitForApproval blocks until the approval is resolved or ctx ends, and
returns the decision. Closing the session resolves its approvals as denied.
*/
func (registry *Registry) WaitForApproval(ctx context.Context, sessionID, approvalID string) (*types.Approval, error) {
	lookup := func() (*types.Approval, chan struct{}, error) {
		registry.mu.RLock()
		defer registry.mu.RUnlock()

		session, ok := registry.sessions[sessionID]

		if !ok {
			return nil, nil, errors.NotFound("session %s", sessionID)
		}

		approval, ok := session.PendingApprovals[approvalID]

		if !ok {
			return nil, nil, errors.NotFound("approval %s", approvalID)
		}

		out := *approval
		return &out, registry.waiters[approvalID], nil
	}

	approval, waiter, err := lookup()

	if err != nil || approval.Resolved {
		return approval, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-waiter:
	}

	approval, _, err = lookup()
	return approval, err
}

// PendingApprovals lists the unresolved approvals of a session.
func (registry *Registry) PendingApprovals(sessionID string) []types.Approval {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	session, ok := registry.sessions[sessionID]

	if !ok {
		return nil
	}

	var out []types.Approval

	for _, approval := range session.PendingApprovals {
		if !approval.Resolved {
			out = append(out, *approval)
		}
	}

	return out
}

func cloneSession(session *types.Session) *types.Session {
	out := *session
	out.PendingApprovals = make(map[string]*types.Approval, len(session.PendingApprovals))

	for id, approval := range session.PendingApprovals {
		a := *approval
		out.PendingApprovals[id] = &a
	}

	return &out
}
