package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

type failingStore struct {
	*stores.InMemoryStore
}

func (store failingStore) SaveSession(ctx context.Context, record types.SessionRecord) error {
	return fmt.Errorf("database is down")
}

var fastRetry = &errors.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

func TestCreateAndJoin(t *testing.T) {
	Convey("Given a registry with a durable store", t, func() {
		ctx := context.Background()
		durable := stores.NewInMemoryStore()
		manager := memory.NewManager(memory.WithDurableStore(durable))
		defer manager.Close()

		registry := NewRegistry(manager, durable)

		session, err := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u1", ContextAware: true})
		So(err, ShouldBeNil)

		Convey("Then the session is active and bound to a new conversation", func() {
			So(session.IsActive, ShouldBeTrue)
			So(session.ConversationID, ShouldNotBeEmpty)
			So(manager.GetConversation(ctx, session.ConversationID, false), ShouldNotBeNil)
		})

		Convey("Then the in-memory id equals the durable id", func() {
			record, err := durable.LoadSession(ctx, session.ID)
			So(err, ShouldBeNil)
			So(record.ID, ShouldEqual, session.ID)
			So(record.ConversationID, ShouldEqual, session.ConversationID)
		})

		Convey("When joined immediately", func() {
			joined, err := registry.JoinSession(ctx, session.ID)
			So(err, ShouldBeNil)
			So(joined.ID, ShouldEqual, session.ID)
			So(joined.ConversationID, ShouldEqual, session.ConversationID)
		})

		Convey("When joined from a fresh process with the durable record intact", func() {
			_, err := manager.AddMessage(ctx, session.ConversationID, types.MessageInput{Role: types.RoleUser, Content: "remember this"})
			So(err, ShouldBeNil)

			freshManager := memory.NewManager(memory.WithDurableStore(durable))
			defer freshManager.Close()
			fresh := NewRegistry(freshManager, durable)

			joined, err := fresh.JoinSession(ctx, session.ID)
			So(err, ShouldBeNil)

			Convey("Then the session is reconstructed with the same conversation and content", func() {
				So(joined.ConversationID, ShouldEqual, session.ConversationID)
				So(joined.IsActive, ShouldBeTrue)
				conv := freshManager.GetConversation(ctx, joined.ConversationID, false)
				So(conv, ShouldNotBeNil)
				So(conv.Messages[0].Content, ShouldEqual, "remember this")
			})
		})

		Convey("When joining an unknown id", func() {
			_, err := registry.JoinSession(ctx, "missing")
			So(errors.IsNotFound(err), ShouldBeTrue)
		})
	})
}

func TestConcurrentColdJoin(t *testing.T) {
	ctx := context.Background()
	durable := stores.NewInMemoryStore()

	first := NewRegistry(nil, durable)
	session, err := first.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u1"})
	assert.NoError(t, err)

	second := NewRegistry(nil, durable)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			joined, err := second.JoinSession(ctx, session.ID)
			assert.NoError(t, err)
			assert.Equal(t, session.ID, joined.ID)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, second.Count())
}

func TestCreateDegradesWhenDurableFails(t *testing.T) {
	Convey("Given a durable store that rejects session writes", t, func() {
		ctx := context.Background()
		registry := NewRegistry(nil, failingStore{stores.NewInMemoryStore()}, WithRetry(fastRetry))

		session, err := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u1"})

		Convey("Then the session still starts under a local id", func() {
			So(err, ShouldBeNil)
			So(session.ID, ShouldNotBeEmpty)
			So(registry.IsActive(session.ID), ShouldBeTrue)
		})
	})
}

func TestCreateValidatesOwner(t *testing.T) {
	registry := NewRegistry(nil, nil)
	_, err := registry.CreateSession(context.Background(), CreateParams{AgentType: "general"})
	assert.True(t, errors.IsValidation(err))
}

func TestCloseAndSweep(t *testing.T) {
	Convey("Given sessions in several states", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		durable := stores.NewInMemoryStore()
		registry := NewRegistry(nil, durable, WithClock(clock))

		active, _ := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u1"})
		closed, _ := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u2"})
		idle, _ := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u3"})
		waiting, _ := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u4"})

		_, err := registry.AddPendingApproval(waiting.ID, "delete_files", json.RawMessage(`{"path":"/tmp"}`))
		So(err, ShouldBeNil)

		So(registry.CloseSession(ctx, closed.ID), ShouldBeTrue)

		Convey("Then a closed session stays queryable and inactive", func() {
			got, ok := registry.Get(closed.ID)
			So(ok, ShouldBeTrue)
			So(got.IsActive, ShouldBeFalse)

			record, err := durable.LoadSession(ctx, closed.ID)
			So(err, ShouldBeNil)
			So(record.Status, ShouldEqual, types.SessionClosed)
		})

		Convey("When time passes and the sweep runs", func() {
			now = now.Add(2 * time.Hour)
			registry.Touch(active.ID)

			removed := registry.SweepIdle(ctx, time.Hour)

			Convey("Then closed and idle sessions are removed", func() {
				So(removed, ShouldEqual, 2)
				_, ok := registry.Get(closed.ID)
				So(ok, ShouldBeFalse)
				_, ok = registry.Get(idle.ID)
				So(ok, ShouldBeFalse)
			})

			Convey("Then the idle session is closed durably and rejoins inactive", func() {
				record, err := durable.LoadSession(ctx, idle.ID)
				So(err, ShouldBeNil)
				So(record.Status, ShouldEqual, types.SessionClosed)

				rejoined, err := registry.JoinSession(ctx, idle.ID)
				So(err, ShouldBeNil)
				So(rejoined.IsActive, ShouldBeFalse)
				So(registry.IsActive(idle.ID), ShouldBeFalse)
			})

			Convey("Then active and approval-blocked sessions remain", func() {
				_, ok := registry.Get(active.ID)
				So(ok, ShouldBeTrue)
				_, ok = registry.Get(waiting.ID)
				So(ok, ShouldBeTrue)
			})
		})
	})
}

func TestApprovals(t *testing.T) {
	Convey("Given a session with a pending approval", t, func() {
		ctx := context.Background()
		registry := NewRegistry(nil, nil)
		session, _ := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u1"})

		approval, err := registry.AddPendingApproval(session.ID, "send_email", nil)
		So(err, ShouldBeNil)
		So(len(registry.PendingApprovals(session.ID)), ShouldEqual, 1)

		Convey("When it is resolved twice with different decisions", func() {
			first, err := registry.ResolvePendingApproval(session.ID, approval.ID, true)
			So(err, ShouldBeNil)
			second, err := registry.ResolvePendingApproval(session.ID, approval.ID, false)
			So(err, ShouldBeNil)

			Convey("Then the first decision stands", func() {
				So(*first.Approved, ShouldBeTrue)
				So(*second.Approved, ShouldBeTrue)
				So(second.Resolved, ShouldBeTrue)
				So(len(registry.PendingApprovals(session.ID)), ShouldEqual, 0)
			})
		})

		Convey("When a caller waits for the decision", func() {
			decided := make(chan *types.Approval, 1)

			go func() {
				got, _ := registry.WaitForApproval(ctx, session.ID, approval.ID)
				decided <- got
			}()

			_, err := registry.ResolvePendingApproval(session.ID, approval.ID, false)
			So(err, ShouldBeNil)

			Convey("Then it wakes with the decision", func() {
				got := <-decided
				So(got.Resolved, ShouldBeTrue)
				So(*got.Approved, ShouldBeFalse)
			})
		})

		Convey("When the waiter's context ends first", func() {
			waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			_, err := registry.WaitForApproval(waitCtx, session.ID, approval.ID)
			So(err, ShouldEqual, context.DeadlineExceeded)
			So(len(registry.PendingApprovals(session.ID)), ShouldEqual, 1)
		})

		Convey("When the session closes with the approval pending", func() {
			So(registry.CloseSession(ctx, session.ID), ShouldBeTrue)

			Convey("Then the approval is denied", func() {
				got, err := registry.WaitForApproval(ctx, session.ID, approval.ID)
				So(err, ShouldBeNil)
				So(*got.Approved, ShouldBeFalse)
				So(registry.PendingApprovals(session.ID), ShouldBeEmpty)
			})
		})

		Convey("When resolving an unknown approval", func() {
			_, err := registry.ResolvePendingApproval(session.ID, "nope", true)
			So(errors.IsNotFound(err), ShouldBeTrue)
		})

		Convey("When adding an approval with malformed parameters", func() {
			_, err := registry.AddPendingApproval(session.ID, "x", json.RawMessage(`{`))
			So(errors.IsValidation(err), ShouldBeTrue)
		})
	})
}

func TestFindByConversation(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil, nil)

	a, _ := registry.CreateSession(ctx, CreateParams{AgentType: "general", OwnerID: "u1", ConversationID: ""})
	assert.Empty(t, registry.FindByConversation("c-1"))
	assert.Equal(t, 1, registry.Count())
	assert.True(t, registry.IsActive(a.ID))
}
