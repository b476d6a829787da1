package memory

import (
	"sync"
	"unicode/utf8"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

const (
	defaultMaxTokens      = 32000
	defaultRecentMessages = 20
	highValueLength       = 500
)

// EstimateTokens approximates the token count of text at four characters per token.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

func messageTokens(msg types.Message) int {
	return EstimateTokens(msg.Content)
}

/*
IsHighValue reports whether compression must try to keep msg regardless of
its age.
*/
func IsHighValue(msg types.Message) bool {
	return msg.HasToolCalls() ||
		msg.Role == types.RoleSystem ||
		utf8.RuneCountInString(msg.Content) > highValueLength
}

/*
WindowManager tracks one ContextWindow per conversation and compresses it
once its token estimate passes the threshold.
*/
type WindowManager struct {
	mu        sync.RWMutex
	windows   map[string]*types.ContextWindow
	maxTokens int
	threshold int
	recent    int
}

func NewWindowManager(maxTokens, threshold, recent int) *WindowManager {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	if threshold <= 0 || threshold > maxTokens {
		threshold = maxTokens * 8 / 10
	}

	if recent <= 0 {
		recent = defaultRecentMessages
	}

	return &WindowManager{
		windows:   make(map[string]*types.ContextWindow),
		maxTokens: maxTokens,
		threshold: threshold,
		recent:    recent,
	}
}

// Init allocates an empty window for conversationID.
func (wm *WindowManager) Init(conversationID string) {
	wm.mu.Lock()
	wm.windows[conversationID] = &types.ContextWindow{
		ConversationID: conversationID,
		MaxTokens:      wm.maxTokens,
		Messages:       []types.Message{},
	}
	wm.mu.Unlock()
}

/*
Push appends msg and reports whether the window now exceeds the compression
threshold.
*/
func (wm *WindowManager) Push(conversationID string, msg types.Message) bool {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	window, ok := wm.windows[conversationID]

	if !ok {
		window = &types.ContextWindow{ConversationID: conversationID, MaxTokens: wm.maxTokens}
		wm.windows[conversationID] = window
	}

	window.Messages = append(window.Messages, msg.Clone())
	window.CurrentTokens += messageTokens(msg)

	return window.CurrentTokens > wm.threshold
}

/*
Compress replaces the window's messages with the most recent ones united with
every high-value message, in their original order. If that still does not
fit in MaxTokens the oldest non-recent messages go first, then the oldest
recent ones.
*/
func (wm *WindowManager) Compress(conversationID string) (before, after int) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	window, ok := wm.windows[conversationID]

	if !ok {
		return 0, 0
	}

	before = len(window.Messages)
	window.Messages, window.CurrentTokens = compress(window.Messages, wm.recent, wm.maxTokens)
	window.PriorityScore = priority(window.Messages)

	return before, len(window.Messages)
}

func compress(messages []types.Message, recent, maxTokens int) ([]types.Message, int) {
	cut := len(messages) - recent
	if cut < 0 {
		cut = 0
	}

	type kept struct {
		msg    types.Message
		recent bool
	}

	retained := make([]kept, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	tokens := 0

	for i, msg := range messages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}

		isRecent := i >= cut

		if !isRecent && !IsHighValue(msg) {
			continue
		}

		seen[msg.ID] = struct{}{}
		retained = append(retained, kept{msg: msg, recent: isRecent})
		tokens += messageTokens(msg)
	}

	// Drop older high-value messages before touching the recent tail.
	for _, recentPass := range []bool{false, true} {
		for i := 0; i < len(retained) && tokens > maxTokens; {
			if retained[i].recent != recentPass {
				i++
				continue
			}

			tokens -= messageTokens(retained[i].msg)
			retained = append(retained[:i], retained[i+1:]...)
		}
	}

	out := make([]types.Message, len(retained))

	for i, k := range retained {
		out[i] = k.msg
	}

	return out, tokens
}

func priority(messages []types.Message) float64 {
	if len(messages) == 0 {
		return 0
	}

	score := 0.0

	for _, msg := range messages {
		if IsHighValue(msg) {
			score += 1
			continue
		}

		score += 0.5
	}

	return score / float64(len(messages))
}

/*
Rebuild resets the window for conversationID from messages, compressing if
needed. Used when a conversation is restored from the durable store.
*/
func (wm *WindowManager) Rebuild(conversationID string, messages []types.Message) {
	wm.Init(conversationID)

	over := false

	for _, msg := range messages {
		over = wm.Push(conversationID, msg)
	}

	if over {
		wm.Compress(conversationID)
	}
}

// AttachResult mirrors a late tool result into the window copy of a message.
func (wm *WindowManager) AttachResult(conversationID, messageID, callID string, result []byte) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	window, ok := wm.windows[conversationID]

	if !ok {
		return
	}

	for i := range window.Messages {
		if window.Messages[i].ID != messageID {
			continue
		}

		for j := range window.Messages[i].ToolCalls {
			if window.Messages[i].ToolCalls[j].ID == callID {
				window.Messages[i].ToolCalls[j].Result = append([]byte(nil), result...)
			}
		}
	}
}

// Get returns a copy of the window.
func (wm *WindowManager) Get(conversationID string) (*types.ContextWindow, bool) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	window, ok := wm.windows[conversationID]

	if !ok {
		return nil, false
	}

	out := *window
	out.Messages = make([]types.Message, len(window.Messages))

	for i, msg := range window.Messages {
		out.Messages[i] = msg.Clone()
	}

	return &out, true
}

func (wm *WindowManager) Remove(conversationID string) {
	wm.mu.Lock()
	delete(wm.windows, conversationID)
	wm.mu.Unlock()
}

func (wm *WindowManager) Len() int {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return len(wm.windows)
}

func (wm *WindowManager) Threshold() int {
	return wm.threshold
}
