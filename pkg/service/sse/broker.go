package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

type subscriber struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (sub *subscriber) leave() {
	sub.once.Do(func() { close(sub.done) })
}

/*
SSEBroker keeps the open event streams of every session and delivers relay
events to the streams of the session they belong to. Each event is written
as:

event: {type}\ndata: {json}\n\n
*/
type SSEBroker struct {
	mu        sync.RWMutex
	sessions  map[string]map[*subscriber]struct{}
	closed    bool
	heartbeat time.Duration
}

/*
NewSSEBroker creates a new SSEBroker.
*/
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{
		sessions:  make(map[string]map[*subscriber]struct{}),
		heartbeat: 25 * time.Second,
	}
}

/*
NewTestSSEBroker creates a broker with a shorter heartbeat for testing
*/
func NewTestSSEBroker() *SSEBroker {
	broker := NewSSEBroker()
	broker.heartbeat = 100 * time.Millisecond
	return broker
}

/*
Subscribe upgrades the HTTP connection to an SSE stream for sessionID and
blocks until the client disconnects or the broker closes.
*/
func (broker *SSEBroker) Subscribe(sessionID string, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := &subscriber{ch: make(chan []byte, 32), done: make(chan struct{})}

	broker.mu.Lock()

	if broker.closed {
		broker.mu.Unlock()
		http.Error(w, "broker closed", http.StatusGone)
		return
	}

	if broker.sessions[sessionID] == nil {
		broker.sessions[sessionID] = make(map[*subscriber]struct{})
	}

	broker.sessions[sessionID][sub] = struct{}{}
	broker.mu.Unlock()

	defer broker.remove(sessionID, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(broker.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.done:
			return
		case msg := <-sub.ch:
			_, _ = w.Write(msg)
			flusher.Flush()
		case <-ticker.C:
			// comment heartbeat keeps proxies from closing the stream
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

/*
Emit implements stream.Emitter. Delivery to each subscriber blocks until the
subscriber takes the event, leaves, or ctx ends, so a session's events reach
every stream in the order they were emitted.
*/
func (broker *SSEBroker) Emit(ctx context.Context, event stream.Event) error {
	data, err := json.Marshal(event)

	if err != nil {
		return err
	}

	msg := make([]byte, 0, len(data)+len(event.Type)+16)
	msg = append(msg, "event: "...)
	msg = append(msg, string(event.Type)...)
	msg = append(msg, "\ndata: "...)
	msg = append(msg, data...)
	msg = append(msg, "\n\n"...)

	for _, sub := range broker.subscribers(event.SessionID) {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

/*
Subscribers reports how many streams are open for sessionID.
*/
func (broker *SSEBroker) Subscribers(sessionID string) int {
	broker.mu.RLock()
	defer broker.mu.RUnlock()
	return len(broker.sessions[sessionID])
}

func (broker *SSEBroker) subscribers(sessionID string) []*subscriber {
	broker.mu.RLock()
	defer broker.mu.RUnlock()

	out := make([]*subscriber, 0, len(broker.sessions[sessionID]))

	for sub := range broker.sessions[sessionID] {
		out = append(out, sub)
	}

	return out
}

/*
Disconnect ends every stream of sessionID.
*/
func (broker *SSEBroker) Disconnect(sessionID string) {
	for _, sub := range broker.subscribers(sessionID) {
		sub.leave()
	}
}

/*
Close disconnects all clients and prevents further subscriptions.
*/
func (broker *SSEBroker) Close() {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		return
	}

	broker.closed = true

	for _, subs := range broker.sessions {
		for sub := range subs {
			sub.leave()
		}
	}

	broker.sessions = map[string]map[*subscriber]struct{}{}
}

/*
remove removes a client from the broker.
*/
func (broker *SSEBroker) remove(sessionID string, sub *subscriber) {
	sub.leave()

	broker.mu.Lock()
	defer broker.mu.Unlock()

	if subs, ok := broker.sessions[sessionID]; ok {
		delete(subs, sub)

		if len(subs) == 0 {
			delete(broker.sessions, sessionID)
		}
	}
}
