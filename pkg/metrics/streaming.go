package metrics

import (
	"sync"
	"time"
)

// StreamingMetrics counts what a relay delivers and how long agent turns take.
type StreamingMetrics struct {
	mu sync.RWMutex

	// Turn metrics
	TotalStreams   int64
	FailedStreams  int64
	StreamDuration time.Duration
	FirstChunk     time.Duration

	// Event metrics
	TotalEvents   int64
	DroppedEvents int64
	ToolCalls     int64
}

// NewStreamingMetrics creates a new StreamingMetrics instance
func NewStreamingMetrics() *StreamingMetrics {
	return &StreamingMetrics{}
}

// RecordStream records one finished agent turn.
func (m *StreamingMetrics) RecordStream(success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalStreams++
	if !success {
		m.FailedStreams++
	}
	m.StreamDuration += duration
}

// RecordFirstChunk records the delay until a turn produced its first text.
func (m *StreamingMetrics) RecordFirstChunk(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FirstChunk += latency
}

// RecordEvent records an event handed to the connection layer, or swallowed.
func (m *StreamingMetrics) RecordEvent(dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalEvents++
	if dropped {
		m.DroppedEvents++
	}
}

func (m *StreamingMetrics) RecordToolCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ToolCalls++
}

// GetMetrics returns a snapshot of the current metrics
func (m *StreamingMetrics) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avg := func(d time.Duration) float64 {
		if m.TotalStreams == 0 {
			return 0
		}
		return d.Seconds() / float64(m.TotalStreams)
	}

	return map[string]any{
		"total_streams":       m.TotalStreams,
		"failed_streams":      m.FailedStreams,
		"total_events":        m.TotalEvents,
		"dropped_events":      m.DroppedEvents,
		"tool_calls":          m.ToolCalls,
		"avg_stream_duration": avg(m.StreamDuration),
		"avg_first_chunk":     avg(m.FirstChunk),
	}
}

// Reset clears every counter.
func (m *StreamingMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalStreams = 0
	m.FailedStreams = 0
	m.StreamDuration = 0
	m.FirstChunk = 0
	m.TotalEvents = 0
	m.DroppedEvents = 0
	m.ToolCalls = 0
}
