package stores

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

func TestInMemoryStore(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		store := NewInMemoryStore()
		now := time.Now()

		So(store.SaveConversation(ctx, &types.Conversation{ID: "c-1", OwnerID: "u-1", StartTime: now}), ShouldBeNil)

		Convey("When messages are appended", func() {
			So(store.AppendMessage(ctx, "c-1", types.Message{ID: "m-1", Role: types.RoleUser, Content: "a", Timestamp: now}), ShouldBeNil)
			So(store.AppendMessage(ctx, "c-1", types.Message{ID: "m-2", Role: types.RoleAgent, Content: "b", Timestamp: now.Add(time.Second)}), ShouldBeNil)
			So(store.AppendMessage(ctx, "c-1", types.Message{ID: "m-1", Role: types.RoleUser, Content: "a", Timestamp: now}), ShouldBeNil)

			conv, err := store.LoadConversation(ctx, "c-1")
			So(err, ShouldBeNil)

			Convey("Then they are returned in order without duplicates", func() {
				So(len(conv.Messages), ShouldEqual, 2)
				So(conv.Messages[0].ID, ShouldEqual, "m-1")
				So(conv.Messages[1].ID, ShouldEqual, "m-2")
				So(conv.LastActivity.Equal(now.Add(time.Second)), ShouldBeTrue)
			})
		})

		Convey("When appending to an unknown conversation", func() {
			err := store.AppendMessage(ctx, "nope", types.Message{ID: "m-1"})
			So(errors.IsNotFound(err), ShouldBeTrue)
		})

		Convey("When a conversation is deleted", func() {
			So(store.DeleteConversation(ctx, "c-1"), ShouldBeNil)
			_, err := store.LoadConversation(ctx, "c-1")
			So(errors.IsNotFound(err), ShouldBeTrue)
		})

		Convey("When a session record is saved and its status updated", func() {
			So(store.SaveSession(ctx, types.SessionRecord{ID: "s-1", Status: types.SessionActive}), ShouldBeNil)
			So(store.UpdateSessionStatus(ctx, "s-1", types.SessionClosed, now), ShouldBeNil)

			record, err := store.LoadSession(ctx, "s-1")
			So(err, ShouldBeNil)
			So(record.Status, ShouldEqual, types.SessionClosed)
		})

		Convey("When loading an unknown session", func() {
			_, err := store.LoadSession(ctx, "missing")
			So(errors.IsNotFound(err), ShouldBeTrue)
		})
	})
}
