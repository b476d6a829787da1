package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

func sessionHandler(broker *SSEBroker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/events")
		broker.Subscribe(id, w, r)
	})
}

func TestSSEBrokerEmit(t *testing.T) {
	broker := NewTestSSEBroker()
	defer broker.Close()

	ts, errTS := newTestServerSSE(sessionHandler(broker))
	if errTS != nil {
		t.Skip("network disabled; skipping SSE test")
	}
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/s0/events")
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan stream.Event, 8)

	go func() {
		_ = NewClient(ts.URL, "s1").Subscribe(ctx, func(ev stream.Event) {
			received <- ev
		})
	}()

	require.Eventually(t, func() bool { return broker.Subscribers("s1") == 1 }, time.Second, 10*time.Millisecond)

	// events for other sessions never reach this stream
	require.NoError(t, broker.Emit(ctx, stream.Event{Type: stream.EventAgentThinking, SessionID: "s2"}))

	for _, chunk := range []string{"a", "b", "c"} {
		require.NoError(t, broker.Emit(ctx, stream.Event{
			Type:      stream.EventMessageStreaming,
			SessionID: "s1",
			Payload:   stream.StreamingPayload{Chunk: chunk},
		}))
	}

	chunks := []string{}

	for len(chunks) < 3 {
		select {
		case ev := <-received:
			assert.Equal(t, stream.EventMessageStreaming, ev.Type)
			assert.Equal(t, "s1", ev.SessionID)

			frame, ok := ev.Payload.(stream.StreamingPayload)
			require.True(t, ok)
			chunks = append(chunks, frame.Chunk)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Equal(t, []string{"a", "b", "c"}, chunks)
}

func TestReadFrame(t *testing.T) {
	raw := ": heartbeat\n\n" +
		"event: memory.updated\n" +
		"data: {\"type\":\"memory.updated\",\"sessionId\":\"s1\",\"payload\":{\"memories\":[{\"content\":\"likes Go\"}]}}\n\n"

	eventType, data, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "memory.updated", eventType)

	ev, err := stream.Decode(eventType, data)
	require.NoError(t, err)

	payload, ok := ev.Payload.(stream.MemoryPayload)
	require.True(t, ok)
	require.Len(t, payload.Memories, 1)
	assert.Equal(t, "likes Go", payload.Memories[0].Content)

	_, _, err = readFrame(bufio.NewReader(strings.NewReader("data: partial")))
	assert.Equal(t, io.EOF, err)
}

func TestClientSessionNotFound(t *testing.T) {
	ts, errTS := newTestServerSSE(http.NotFoundHandler())
	if errTS != nil {
		t.Skip("network disabled; skipping SSE test")
	}
	defer ts.Close()

	err := NewClient(ts.URL, "missing").Subscribe(context.Background(), func(stream.Event) {})
	assert.True(t, errors.IsNotFound(err))
}

func TestSSEBrokerWithoutSubscribers(t *testing.T) {
	broker := NewTestSSEBroker()

	err := broker.Emit(context.Background(), stream.Event{Type: stream.EventAgentThinking, SessionID: "nobody"})
	assert.NoError(t, err)
	assert.Equal(t, 0, broker.Subscribers("nobody"))

	broker.Close()
	broker.Close()
}

func TestSSEBrokerDisconnect(t *testing.T) {
	broker := NewTestSSEBroker()
	defer broker.Close()

	ts, errTS := newTestServerSSE(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		broker.Subscribe("s1", w, r)
	}))
	if errTS != nil {
		t.Skip("network disabled; skipping SSE test")
	}
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return broker.Subscribers("s1") == 1 }, time.Second, 10*time.Millisecond)

	broker.Disconnect("s1")

	assert.Eventually(t, func() bool { return broker.Subscribers("s1") == 0 }, time.Second, 10*time.Millisecond)
	assert.NoError(t, broker.Emit(context.Background(), stream.Event{Type: stream.EventAgentThinking, SessionID: "s1"}))
}

// newTestServerSSE recovers from sandboxes that forbid opening listeners.
func newTestServerSSE(h http.Handler) (*httptest.Server, error) {
	var srv *httptest.Server
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener not permitted: %v", r)
			}
		}()
		srv = httptest.NewServer(h)
	}()
	return srv, err
}
