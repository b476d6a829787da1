package types

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

func TestConversationClone(t *testing.T) {
	Convey("Given a conversation with messages", t, func() {
		summary := "short"
		conv := &Conversation{
			ID:       "c-1",
			Messages: []Message{{ID: "m-1", Role: RoleUser, Content: "hi"}},
			Tags:     []string{"a"},
			Summary:  &summary,
			Context:  map[string]any{"k": "v"},
		}

		clone := conv.Clone()

		Convey("Then mutating the clone leaves the original untouched", func() {
			clone.Messages = append(clone.Messages, Message{ID: "m-2"})
			clone.Messages[0].Content = "changed"
			clone.Context["k"] = "other"
			*clone.Summary = "long"

			So(len(conv.Messages), ShouldEqual, 1)
			So(conv.Messages[0].Content, ShouldEqual, "hi")
			So(conv.Context["k"], ShouldEqual, "v")
			So(*conv.Summary, ShouldEqual, "short")
		})
	})
}

func TestAddTag(t *testing.T) {
	conv := &Conversation{}
	conv.AddTag("go")
	conv.AddTag("go")
	conv.AddTag("memory")
	assert.Equal(t, []string{"go", "memory"}, conv.Tags)
}

func TestMemoryExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, MemoryEntry{}.Expired(now))
	assert.True(t, MemoryEntry{ExpiresAt: &past}.Expired(now))
	assert.False(t, MemoryEntry{ExpiresAt: &future}.Expired(now))
}

func TestHasUnresolvedApprovals(t *testing.T) {
	s := &Session{PendingApprovals: map[string]*Approval{
		"a": {ID: "a", Resolved: true},
	}}
	assert.False(t, s.HasUnresolvedApprovals())

	s.PendingApprovals["b"] = &Approval{ID: "b"}
	assert.True(t, s.HasUnresolvedApprovals())
}

func TestValidateMessage(t *testing.T) {
	Convey("Given message inputs", t, func() {
		Convey("When the role is known", func() {
			So(ValidateMessage(MessageInput{Role: RoleUser, Content: "hello"}), ShouldBeNil)
		})

		Convey("When the role is unknown", func() {
			err := ValidateMessage(MessageInput{Role: "robot", Content: "hello"})
			So(errors.IsValidation(err), ShouldBeTrue)
		})

		Convey("When tool parameters are malformed JSON", func() {
			err := ValidateMessage(MessageInput{
				Role: RoleAgent,
				ToolCalls: []ToolCall{{
					ID:         "call-1",
					ToolName:   "search",
					Parameters: json.RawMessage(`{"q":`),
				}},
			})
			So(errors.IsValidation(err), ShouldBeTrue)
		})

		Convey("When tool parameters are valid JSON", func() {
			err := ValidateMessage(MessageInput{
				Role: RoleAgent,
				ToolCalls: []ToolCall{{
					ID:         "call-1",
					ToolName:   "search",
					Parameters: json.RawMessage(`{"q":"go"}`),
				}},
			})
			So(err, ShouldBeNil)
		})
	})
}

func TestValidateMemory(t *testing.T) {
	tests := []struct {
		name  string
		entry MemoryEntry
		ok    bool
	}{
		{"valid", MemoryEntry{Type: MemoryFact, Content: "likes go", Confidence: 0.9}, true},
		{"blank content", MemoryEntry{Type: MemoryFact, Content: "  ", Confidence: 0.9}, false},
		{"unknown type", MemoryEntry{Type: "rumour", Content: "x", Confidence: 0.9}, false},
		{"confidence too high", MemoryEntry{Type: MemorySkill, Content: "x", Confidence: 1.5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMemory(tt.entry)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsValidation(err))
		})
	}
}
