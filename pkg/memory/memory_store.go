package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

const (
	defaultSearchLimit   = 10
	defaultMinConfidence = 0.5
)

type storedMemory struct {
	entry types.MemoryEntry
	seq   uint64
}

/*
MemoryStore keeps MemoryEntry objects keyed by id. Every entry remembers the
order in which it was inserted so ranking ties resolve deterministically.
*/
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*storedMemory
	seq     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*storedMemory),
	}
}

/*
Add stores entry, assigning an id and timestamp when missing. Re-adding an
existing id replaces the entry and moves it to the end of the insertion
order.
*/
func (store *MemoryStore) Add(entry types.MemoryEntry, now time.Time) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}

	entry.Tags = append([]string(nil), entry.Tags...)

	store.mu.Lock()
	store.seq++
	store.entries[entry.ID] = &storedMemory{entry: entry, seq: store.seq}
	store.mu.Unlock()

	return entry.ID
}

func (store *MemoryStore) Get(id string) (types.MemoryEntry, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	stored, ok := store.entries[id]

	if !ok {
		return types.MemoryEntry{}, false
	}

	return stored.entry, true
}

func (store *MemoryStore) Remove(id string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.entries[id]; !ok {
		return false
	}

	delete(store.entries, id)
	return true
}

func (store *MemoryStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.entries)
}

/*
Search applies the filters in a fixed order: type, confidence floor, tag
intersection, time range and finally a case-insensitive substring match on
content or tags. Results are ranked by score with insertion order breaking
ties.
*/
func (store *MemoryStore) Search(query types.MemoryQuery, now time.Time) []types.MemoryEntry {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	floor := defaultMinConfidence
	if query.MinConfidence != nil {
		floor = *query.MinConfidence
	}

	needle := strings.ToLower(strings.TrimSpace(query.Query))

	store.mu.RLock()
	candidates := make([]*storedMemory, 0, len(store.entries))

	for _, stored := range store.entries {
		entry := stored.entry

		if query.Type != "" && entry.Type != query.Type {
			continue
		}

		if entry.Confidence < floor {
			continue
		}

		if len(query.Tags) > 0 && !intersects(entry.Tags, query.Tags) {
			continue
		}

		if query.TimeRange != nil &&
			(entry.Timestamp.Before(query.TimeRange.Start) || entry.Timestamp.After(query.TimeRange.End)) {
			continue
		}

		if needle != "" && !matches(entry, needle) {
			continue
		}

		candidates = append(candidates, stored)
	}
	store.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := Score(candidates[i].entry, now), Score(candidates[j].entry, now)

		if si != sj {
			return si > sj
		}

		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]types.MemoryEntry, len(candidates))

	for i, stored := range candidates {
		out[i] = stored.entry
	}

	return out
}

// RemoveExpired deletes entries whose expiry has elapsed and returns how many.
func (store *MemoryStore) RemoveExpired(now time.Time) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	removed := 0

	for id, stored := range store.entries {
		if stored.entry.Expired(now) {
			delete(store.entries, id)
			removed++
		}
	}

	return removed
}

/*
EvictTo removes the lowest scoring entries until at most capacity remain.
Among equal scores the oldest insertion goes first.
*/
func (store *MemoryStore) EvictTo(capacity int, now time.Time) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	excess := len(store.entries) - capacity

	if capacity < 0 || excess <= 0 {
		return 0
	}

	ordered := make([]*storedMemory, 0, len(store.entries))

	for _, stored := range store.entries {
		ordered = append(ordered, stored)
	}

	sort.Slice(ordered, func(i, j int) bool {
		si, sj := Score(ordered[i].entry, now), Score(ordered[j].entry, now)

		if si != sj {
			return si < sj
		}

		return ordered[i].seq < ordered[j].seq
	})

	for _, stored := range ordered[:excess] {
		delete(store.entries, stored.entry.ID)
	}

	return excess
}

// All returns every entry in insertion order.
func (store *MemoryStore) All() []types.MemoryEntry {
	store.mu.RLock()
	ordered := make([]*storedMemory, 0, len(store.entries))

	for _, stored := range store.entries {
		ordered = append(ordered, stored)
	}
	store.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].seq < ordered[j].seq
	})

	out := make([]types.MemoryEntry, len(ordered))

	for i, stored := range ordered {
		out[i] = stored.entry
	}

	return out
}

/*
Score ranks an entry as 0.7*confidence + 0.3*(timestamp/now), both
timestamps taken in milliseconds since the epoch.
*/
func Score(entry types.MemoryEntry, now time.Time) float64 {
	recency := 0.0

	if n := now.UnixMilli(); n > 0 {
		recency = float64(entry.Timestamp.UnixMilli()) / float64(n)
	}

	return 0.7*entry.Confidence + 0.3*recency
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}

	return false
}

func matches(entry types.MemoryEntry, needle string) bool {
	if strings.Contains(strings.ToLower(entry.Content), needle) {
		return true
	}

	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}

	return false
}
