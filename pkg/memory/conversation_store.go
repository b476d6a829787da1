package memory

import (
	"sort"
	"sync"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
ConversationStore owns the live Conversation objects. It hands out the stored
pointers to the Manager, which serialises mutation per conversation; every
other caller receives a clone.
*/
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*types.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*types.Conversation),
	}
}

func (store *ConversationStore) Put(conv *types.Conversation) {
	store.mu.Lock()
	store.conversations[conv.ID] = conv
	store.mu.Unlock()
}

// PutIfAbsent stores conv unless the id is taken and reports which one won.
func (store *ConversationStore) PutIfAbsent(conv *types.Conversation) (*types.Conversation, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if existing, ok := store.conversations[conv.ID]; ok {
		return existing, false
	}

	store.conversations[conv.ID] = conv
	return conv, true
}

func (store *ConversationStore) Get(id string) (*types.Conversation, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	conv, ok := store.conversations[id]
	return conv, ok
}

func (store *ConversationStore) Delete(id string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.conversations[id]; !ok {
		return false
	}

	delete(store.conversations, id)
	return true
}

func (store *ConversationStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.conversations)
}

// IDs returns every conversation id owned by ownerID, or all ids when empty.
func (store *ConversationStore) IDs(ownerID string) []string {
	store.mu.RLock()
	defer store.mu.RUnlock()

	ids := make([]string, 0, len(store.conversations))

	for id, conv := range store.conversations {
		if ownerID == "" || conv.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	return ids
}
