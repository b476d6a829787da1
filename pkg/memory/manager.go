package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

const (
	defaultSummaryThreshold = 50
	defaultSummaryWindow    = 20
	defaultSummaryTruncate  = 200
	defaultMaxMemories      = 10000
	defaultMaxConversations = 1000
	defaultRelevantMemories = 10
)

/*
MemoriesListener is told about memories derived from a conversation.
*/
type MemoriesListener func(conversationID string, entries []types.MemoryEntry)

/*
Manager is the facade over conversations, their context windows and the
memory store. The manager lock only guards the pairing of conversations with
their windows and is never held across durable I/O. Each conversation has
its own lock: appends to one conversation are serialised, including their
durable mirror writes, while other conversations proceed.
*/
type Manager struct {
	mu            sync.RWMutex
	conversations *ConversationStore
	windows       *WindowManager
	memories      *MemoryStore
	locks         sync.Map

	durable   stores.Store
	extractor Extractor
	hooks     *hookQueue
	retry     *errors.RetryConfig
	now       func() time.Time

	listenersMu sync.RWMutex
	listeners   []MemoriesListener

	maxTokens            int
	compressionThreshold int
	recentMessages       int
	summaryThreshold     int
	maxMemories          int
	maxConversations     int
	relevantMemories     int
	hookWorkers          int
	hookQueueSize        int
}

type ManagerOption func(*Manager)

func NewManager(options ...ManagerOption) *Manager {
	manager := &Manager{
		memories:         NewMemoryStore(),
		conversations:    NewConversationStore(),
		extractor:        NewHeuristicExtractor(),
		retry:            errors.DefaultRetryConfig(),
		now:              time.Now,
		maxTokens:        defaultMaxTokens,
		recentMessages:   defaultRecentMessages,
		summaryThreshold: defaultSummaryThreshold,
		maxMemories:      defaultMaxMemories,
		maxConversations: defaultMaxConversations,
		relevantMemories: defaultRelevantMemories,
		hookWorkers:      2,
		hookQueueSize:    256,
	}

	for _, option := range options {
		option(manager)
	}

	manager.windows = NewWindowManager(manager.maxTokens, manager.compressionThreshold, manager.recentMessages)
	manager.hooks = newHookQueue(manager.hookWorkers, manager.hookQueueSize)

	return manager
}

func WithDurableStore(store stores.Store) ManagerOption {
	return func(manager *Manager) {
		manager.durable = store
	}
}

// WithExtractor replaces the heuristic extractor; nil disables extraction.
func WithExtractor(extractor Extractor) ManagerOption {
	return func(manager *Manager) {
		manager.extractor = extractor
	}
}

func WithMaxTokens(n int) ManagerOption {
	return func(manager *Manager) {
		manager.maxTokens = n
	}
}

func WithCompressionThreshold(n int) ManagerOption {
	return func(manager *Manager) {
		manager.compressionThreshold = n
	}
}

func WithRecentMessages(n int) ManagerOption {
	return func(manager *Manager) {
		manager.recentMessages = n
	}
}

func WithSummaryThreshold(n int) ManagerOption {
	return func(manager *Manager) {
		manager.summaryThreshold = n
	}
}

func WithMaxMemories(n int) ManagerOption {
	return func(manager *Manager) {
		manager.maxMemories = n
	}
}

func WithMaxConversations(n int) ManagerOption {
	return func(manager *Manager) {
		manager.maxConversations = n
	}
}

func WithRelevantMemories(n int) ManagerOption {
	return func(manager *Manager) {
		manager.relevantMemories = n
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(manager *Manager) {
		manager.now = now
	}
}

func WithHookWorkers(workers, queueSize int) ManagerOption {
	return func(manager *Manager) {
		manager.hookWorkers = workers
		manager.hookQueueSize = queueSize
	}
}

func WithRetry(cfg *errors.RetryConfig) ManagerOption {
	return func(manager *Manager) {
		manager.retry = cfg
	}
}

// OnMemoriesExtracted registers fn to run after extraction stores new memories.
func (manager *Manager) OnMemoriesExtracted(fn MemoriesListener) {
	manager.listenersMu.Lock()
	manager.listeners = append(manager.listeners, fn)
	manager.listenersMu.Unlock()
}

func (manager *Manager) lockFor(conversationID string) *sync.Mutex {
	lock, _ := manager.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

/*
acquire returns the live conversation with its lock held. mu is never held
while waiting for a conversation lock, so a slow holder of one conversation
cannot stall the others.
*/
func (manager *Manager) acquire(conversationID string) (*types.Conversation, *sync.Mutex, bool) {
	manager.mu.RLock()
	conv, ok := manager.conversations.Get(conversationID)
	manager.mu.RUnlock()

	if !ok {
		return nil, nil, false
	}

	lock := manager.lockFor(conversationID)
	lock.Lock()

	// removed or replaced while we waited
	if current, ok := manager.conversations.Get(conversationID); !ok || current != conv {
		lock.Unlock()
		return nil, nil, false
	}

	return conv, lock, true
}

/*
remove drops the conversation and its window from memory under the
conversation lock, so no append can land in between.
*/
func (manager *Manager) remove(conversationID string) bool {
	lock := manager.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	manager.mu.Lock()
	defer manager.mu.Unlock()

	manager.locks.Delete(conversationID)

	if !manager.conversations.Delete(conversationID) {
		return false
	}

	manager.windows.Remove(conversationID)
	return true
}

/*
CreateConversation allocates a conversation and its empty context window. A
non-empty firstMessage is appended as a user message.
*/
func (manager *Manager) CreateConversation(ctx context.Context, ownerID, title, firstMessage string) string {
	now := manager.now()

	conv := &types.Conversation{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        title,
		StartTime:    now,
		LastActivity: now,
		Messages:     []types.Message{},
		Context:      map[string]any{},
	}

	manager.mu.Lock()
	manager.conversations.Put(conv)
	manager.windows.Init(conv.ID)
	manager.mu.Unlock()

	if manager.durable != nil {
		snapshot := conv.Clone()

		if err := errors.RetryWithBackoff(ctx, manager.retry, func() error {
			return manager.durable.SaveConversation(ctx, snapshot)
		}); err != nil {
			log.Warn("failed to mirror conversation", "conversation", conv.ID, "error", err)
		}
	}

	log.Debug("conversation created", "conversation", conv.ID, "owner", ownerID)

	if strings.TrimSpace(firstMessage) != "" {
		if _, err := manager.AddMessage(ctx, conv.ID, types.MessageInput{
			Role:    types.RoleUser,
			Content: firstMessage,
		}); err != nil {
			log.Warn("failed to append first message", "conversation", conv.ID, "error", err)
		}
	}

	return conv.ID
}

/*
AddMessage appends a message. The append, the activity update, the window
push and any compression happen before it returns; summarisation and
memory extraction are queued and never affect the result.
*/
func (manager *Manager) AddMessage(
	ctx context.Context, conversationID string, in types.MessageInput,
) (types.Message, error) {
	if err := types.ValidateMessage(in); err != nil {
		return types.Message{}, err
	}

	conv, lock, ok := manager.acquire(conversationID)

	if !ok {
		return types.Message{}, errors.NotFound("conversation %s", conversationID)
	}

	msg := types.Message{
		ID:        uuid.NewString(),
		Role:      in.Role,
		Content:   in.Content,
		Timestamp: manager.now(),
		AgentName: in.AgentName,
		ToolCalls: append([]types.ToolCall(nil), in.ToolCalls...),
		Metadata:  in.Metadata,
	}

	if last := len(conv.Messages); last > 0 && msg.Timestamp.Before(conv.Messages[last-1].Timestamp) {
		msg.Timestamp = conv.Messages[last-1].Timestamp
	}

	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = msg.Timestamp

	if manager.windows.Push(conversationID, msg) {
		manager.compress(conversationID)
	}

	needsSummary := conv.Summary == nil && len(conv.Messages) >= manager.summaryThreshold

	if manager.durable != nil {
		if err := manager.durable.AppendMessage(ctx, conversationID, msg.Clone()); err != nil {
			log.Warn("failed to mirror message", "conversation", conversationID, "message", msg.ID, "error", err)
		}
	}

	lock.Unlock()

	hookCtx := context.WithoutCancel(ctx)

	if needsSummary {
		manager.hooks.submit("summarize", func() error {
			return manager.summarize(hookCtx, conversationID)
		})
	}

	if manager.extractor != nil {
		extracted := msg.Clone()

		manager.hooks.submit("extract", func() error {
			return manager.extract(hookCtx, conversationID, extracted)
		})
	}

	return msg.Clone(), nil
}

func (manager *Manager) compress(conversationID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("compression failed", "conversation", conversationID, "error", r)
		}
	}()

	before, after := manager.windows.Compress(conversationID)
	log.Debug("context window compressed", "conversation", conversationID, "before", before, "after", after)
}

/*
summarize stores an extractive summary of the last messages. It is a no-op
when a summary already exists.
*/
func (manager *Manager) summarize(ctx context.Context, conversationID string) error {
	conv, lock, ok := manager.acquire(conversationID)

	if !ok {
		return nil
	}

	if conv.Summary != nil || len(conv.Messages) < manager.summaryThreshold {
		lock.Unlock()
		return nil
	}

	summary := Summarize(conv.Messages, defaultSummaryWindow, defaultSummaryTruncate)
	conv.Summary = &summary
	snapshot := conv.Clone()

	lock.Unlock()

	log.Info("conversation summarized", "conversation", conversationID, "messages", len(snapshot.Messages))

	if manager.durable != nil {
		if err := manager.durable.SaveConversation(ctx, snapshot); err != nil {
			return errors.BestEffort(err, "mirror summary of %s", conversationID)
		}
	}

	return nil
}

/*
Summarize concatenates the last window messages, each truncated to limit
characters, under a descriptive header.
*/
func Summarize(messages []types.Message, window, limit int) string {
	start := len(messages) - window
	if start < 0 {
		start = 0
	}

	builder := &strings.Builder{}
	fmt.Fprintf(builder, "Summary of %d messages (last %d shown):", len(messages), len(messages)-start)

	for _, msg := range messages[start:] {
		content := []rune(msg.Content)

		if len(content) > limit {
			content = content[:limit]
		}

		fmt.Fprintf(builder, "\n%s: %s", msg.Role, string(content))
	}

	return builder.String()
}

func (manager *Manager) extract(ctx context.Context, conversationID string, msg types.Message) error {
	entries, err := manager.extractor.Extract(ctx, msg)

	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	stored := make([]types.MemoryEntry, 0, len(entries))

	for _, entry := range entries {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}

		entry.Metadata["conversationId"] = conversationID
		entry.ID = manager.AddMemory(ctx, entry)
		stored = append(stored, entry)
	}

	manager.listenersMu.RLock()
	listeners := append([]MemoriesListener(nil), manager.listeners...)
	manager.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(conversationID, stored)
	}

	return nil
}

/*
GetConversation returns a copy of the conversation, or nil. With
includeContext the copy carries the best ranked memories matching the title
under Context["relevantMemories"]; the stored conversation is not touched.
*/
func (manager *Manager) GetConversation(ctx context.Context, id string, includeContext bool) *types.Conversation {
	conv, lock, ok := manager.acquire(id)

	if !ok {
		return nil
	}

	out := conv.Clone()
	lock.Unlock()

	if includeContext {
		out.Context["relevantMemories"] = manager.SearchMemories(ctx, types.MemoryQuery{
			Query: out.Title,
			Limit: manager.relevantMemories,
		})
	}

	return out
}

// ListConversations returns the conversations of ownerID, newest activity first.
func (manager *Manager) ListConversations(ctx context.Context, ownerID string) []*types.Conversation {
	var out []*types.Conversation

	for _, id := range manager.conversations.IDs(ownerID) {
		if conv := manager.GetConversation(ctx, id, false); conv != nil {
			out = append(out, conv)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})

	return out
}

func (manager *Manager) GetContextWindow(ctx context.Context, conversationID string) (*types.ContextWindow, bool) {
	return manager.windows.Get(conversationID)
}

func (manager *Manager) SearchMemories(ctx context.Context, query types.MemoryQuery) []types.MemoryEntry {
	return manager.memories.Search(query, manager.now())
}

/*
AddMemory stores entry and returns its id. When the store grows past its cap
expired entries are dropped first, then the lowest scoring ones.
*/
func (manager *Manager) AddMemory(ctx context.Context, entry types.MemoryEntry) string {
	now := manager.now()
	id := manager.memories.Add(entry, now)

	if manager.memories.Len() > manager.maxMemories {
		manager.evictMemories(now)
	}

	return id
}

// GetMemory returns the stored entry with id.
func (manager *Manager) GetMemory(ctx context.Context, id string) (types.MemoryEntry, bool) {
	return manager.memories.Get(id)
}

// ListMemories returns every stored memory, oldest first.
func (manager *Manager) ListMemories(ctx context.Context) []types.MemoryEntry {
	return manager.memories.All()
}

/*
DeleteMemory forgets a single memory. It reports false when id is unknown.
*/
func (manager *Manager) DeleteMemory(ctx context.Context, id string) bool {
	if !manager.memories.Remove(id) {
		return false
	}

	log.Info("memory deleted", "memory", id)
	return true
}

func (manager *Manager) evictMemories(now time.Time) (expired, evicted int) {
	expired = manager.memories.RemoveExpired(now)
	evicted = manager.memories.EvictTo(manager.maxMemories, now)

	if expired+evicted > 0 {
		log.Info("memories evicted", "expired", expired, "capacity", evicted)
	}

	return expired, evicted
}

/*
DeleteConversation removes the conversation and its window together.
*/
func (manager *Manager) DeleteConversation(ctx context.Context, id string) bool {
	removed := manager.remove(id)

	if removed && manager.durable != nil {
		if err := manager.durable.DeleteConversation(ctx, id); err != nil {
			log.Warn("failed to delete mirrored conversation", "conversation", id, "error", err)
		}
	}

	return removed
}

/*
AttachToolResult records the result of a tool call on an earlier message. A
result can be attached once per call.
*/
func (manager *Manager) AttachToolResult(
	ctx context.Context, conversationID, messageID, callID string, result json.RawMessage,
) error {
	if !json.Valid(result) {
		return errors.Validation("tool result for %s is not valid JSON", callID)
	}

	conv, lock, ok := manager.acquire(conversationID)

	if !ok {
		return errors.NotFound("conversation %s", conversationID)
	}

	defer lock.Unlock()

	for i := range conv.Messages {
		if conv.Messages[i].ID != messageID {
			continue
		}

		for j := range conv.Messages[i].ToolCalls {
			call := &conv.Messages[i].ToolCalls[j]

			if call.ID != callID {
				continue
			}

			if len(call.Result) > 0 {
				return errors.Validation("tool call %s already has a result", callID)
			}

			call.Result = append(json.RawMessage(nil), result...)
			manager.windows.AttachResult(conversationID, messageID, callID, result)

			if manager.durable != nil {
				if err := manager.durable.SaveConversation(ctx, conv.Clone()); err != nil {
					log.Warn("failed to mirror tool result", "conversation", conversationID, "error", err)
				}
			}

			return nil
		}

		return errors.NotFound("tool call %s", callID)
	}

	return errors.NotFound("message %s", messageID)
}

/*
Restore makes sure the conversation is live, loading it from the durable
store and rebuilding its window when it is not.
*/
func (manager *Manager) Restore(ctx context.Context, conversationID string) (*types.Conversation, error) {
	if conv := manager.GetConversation(ctx, conversationID, false); conv != nil {
		return conv, nil
	}

	if manager.durable == nil {
		return nil, errors.NotFound("conversation %s", conversationID)
	}

	loaded, err := manager.durable.LoadConversation(ctx, conversationID)

	if err != nil {
		return nil, err
	}

	if loaded.Messages == nil {
		loaded.Messages = []types.Message{}
	}

	if loaded.Context == nil {
		loaded.Context = map[string]any{}
	}

	manager.mu.Lock()
	if _, inserted := manager.conversations.PutIfAbsent(loaded); inserted {
		manager.windows.Rebuild(conversationID, loaded.Messages)
		log.Info("conversation restored", "conversation", conversationID, "messages", len(loaded.Messages))
	}
	manager.mu.Unlock()

	return manager.GetConversation(ctx, conversationID, false), nil
}

type CleanupResult struct {
	ExpiredMemories      int
	EvictedMemories      int
	EvictedConversations int
}

/*
Cleanup drops expired memories, trims the memory store to its cap and then
evicts the least recently active conversations beyond the conversation cap.
*/
func (manager *Manager) Cleanup(ctx context.Context) CleanupResult {
	var result CleanupResult

	result.ExpiredMemories, result.EvictedMemories = manager.evictMemories(manager.now())

	if manager.conversations.Len() <= manager.maxConversations {
		return result
	}

	type activity struct {
		id   string
		last time.Time
	}

	var ordered []activity

	for _, id := range manager.conversations.IDs("") {
		conv, lock, ok := manager.acquire(id)

		if !ok {
			continue
		}

		ordered = append(ordered, activity{id: id, last: conv.LastActivity})
		lock.Unlock()
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].last.Before(ordered[j].last)
	})

	for _, a := range ordered {
		if manager.conversations.Len() <= manager.maxConversations {
			break
		}

		if manager.remove(a.id) {
			result.EvictedConversations++
		}
	}

	if result.EvictedConversations > 0 {
		log.Info("conversations evicted", "count", result.EvictedConversations)
	}

	return result
}

// Run calls Cleanup every interval until ctx is done.
func (manager *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.Cleanup(ctx)
		}
	}
}

type Stats struct {
	Conversations int `json:"conversations"`
	Windows       int `json:"windows"`
	Memories      int `json:"memories"`
}

func (manager *Manager) Stats() Stats {
	return Stats{
		Conversations: manager.conversations.Len(),
		Windows:       manager.windows.Len(),
		Memories:      manager.memories.Len(),
	}
}

// Wait blocks until queued summarisation and extraction work has finished.
func (manager *Manager) Wait() {
	manager.hooks.wait()
}

func (manager *Manager) Close() {
	manager.hooks.close()
}
