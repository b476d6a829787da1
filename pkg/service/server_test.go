package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/provider"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/service/sse"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

func newTestServer() (*Server, *memory.Manager) {
	manager := memory.NewManager()
	registry := session.NewRegistry(manager, stores.NewInMemoryStore())
	broker := sse.NewTestSSEBroker()
	relay := stream.NewRelay(registry, manager, nil, provider.NewEchoRunner(), broker)

	return NewServer(registry, manager, relay, broker), manager
}

func do(srv *Server, method, path string, body any) (int, []byte) {
	var reader io.Reader

	if body != nil {
		buf, err := json.Marshal(body)
		So(err, ShouldBeNil)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)

	return resp.StatusCode, out
}

func TestSessionRoutes(t *testing.T) {
	Convey("Given a server with an echo agent", t, func() {
		srv, manager := newTestServer()
		defer manager.Close()

		status, body := do(srv, http.MethodPost, "/sessions", session.CreateParams{
			AgentType: "assistant", OwnerID: "u1", ContextAware: true,
		})
		So(status, ShouldEqual, http.StatusCreated)

		var created types.Session
		So(json.Unmarshal(body, &created), ShouldBeNil)
		So(created.ConversationID, ShouldNotBeEmpty)

		Convey("The session can be fetched", func() {
			status, body := do(srv, http.MethodGet, "/sessions/"+created.ID, nil)
			So(status, ShouldEqual, http.StatusOK)

			var got types.Session
			So(json.Unmarshal(body, &got), ShouldBeNil)
			So(got.IsActive, ShouldBeTrue)
		})

		Convey("Messages run through the relay on both paths", func() {
			for _, path := range []string{"/messages", "/messages?stream=false"} {
				status, body := do(srv, http.MethodPost, "/sessions/"+created.ID+path, messageRequest{Content: "ping"})
				So(status, ShouldEqual, http.StatusOK)

				var result stream.Result
				So(json.Unmarshal(body, &result), ShouldBeNil)
				So(result.Text, ShouldEqual, "echo: ping")
			}

			status, body := do(srv, http.MethodGet, "/conversations/"+created.ConversationID, nil)
			So(status, ShouldEqual, http.StatusOK)

			var conv types.Conversation
			So(json.Unmarshal(body, &conv), ShouldBeNil)
			So(len(conv.Messages), ShouldEqual, 4)
		})

		Convey("Blank messages are rejected", func() {
			status, _ := do(srv, http.MethodPost, "/sessions/"+created.ID+"/messages", messageRequest{Content: " "})
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Approvals resolve once", func() {
			status, body := do(srv, http.MethodPost, "/sessions/"+created.ID+"/approvals", approvalRequest{
				ToolName: "delete_file", Parameters: json.RawMessage(`{"path":"/tmp/x"}`),
			})
			So(status, ShouldEqual, http.StatusCreated)

			var approval types.Approval
			So(json.Unmarshal(body, &approval), ShouldBeNil)

			path := "/sessions/" + created.ID + "/approvals/" + approval.ID
			_, first := do(srv, http.MethodPost, path, decisionRequest{Approved: true})
			_, second := do(srv, http.MethodPost, path, decisionRequest{Approved: false})
			So(string(second), ShouldEqual, string(first))

			_, body = do(srv, http.MethodGet, "/sessions/"+created.ID+"/approvals", nil)
			So(string(body), ShouldEqual, "[]")
		})

		Convey("A closed session refuses new messages", func() {
			status, _ := do(srv, http.MethodDelete, "/sessions/"+created.ID, nil)
			So(status, ShouldEqual, http.StatusNoContent)

			status, _ = do(srv, http.MethodPost, "/sessions/"+created.ID+"/messages", messageRequest{Content: "hi"})
			So(status, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given invalid session requests", t, func() {
		srv, manager := newTestServer()
		defer manager.Close()

		status, _ := do(srv, http.MethodPost, "/sessions", session.CreateParams{AgentType: "assistant"})
		So(status, ShouldEqual, http.StatusBadRequest)

		status, body := do(srv, http.MethodGet, "/sessions/missing", nil)
		So(status, ShouldEqual, http.StatusNotFound)
		So(string(body), ShouldContainSubstring, "not_found")

		status, _ = do(srv, http.MethodDelete, "/sessions/missing", nil)
		So(status, ShouldEqual, http.StatusNotFound)
	})
}

func TestMemoryRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		srv, manager := newTestServer()
		defer manager.Close()

		Convey("Valid memories are stored and searchable", func() {
			status, _ := do(srv, http.MethodPost, "/memories", types.MemoryEntry{
				Type: types.MemoryPreference, Content: "likes coffee", Confidence: 0.9, Tags: []string{"drinks"},
			})
			So(status, ShouldEqual, http.StatusCreated)

			status, body := do(srv, http.MethodGet, "/memories?query=COFFEE&tags=drinks&minConfidence=0.8", nil)
			So(status, ShouldEqual, http.StatusOK)

			var found []types.MemoryEntry
			So(json.Unmarshal(body, &found), ShouldBeNil)
			So(len(found), ShouldEqual, 1)
			So(found[0].Source, ShouldEqual, "api")
		})

		Convey("A stored memory can be fetched and then deleted", func() {
			status, body := do(srv, http.MethodPost, "/memories", types.MemoryEntry{
				Type: types.MemoryFact, Content: "lives in oslo", Confidence: 0.7,
			})
			So(status, ShouldEqual, http.StatusCreated)

			var created struct {
				ID string `json:"id"`
			}
			So(json.Unmarshal(body, &created), ShouldBeNil)

			status, body = do(srv, http.MethodGet, "/memories/"+created.ID, nil)
			So(status, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "lives in oslo")

			status, _ = do(srv, http.MethodDelete, "/memories/"+created.ID, nil)
			So(status, ShouldEqual, http.StatusNoContent)

			status, _ = do(srv, http.MethodGet, "/memories/"+created.ID, nil)
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = do(srv, http.MethodDelete, "/memories/"+created.ID, nil)
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("Invalid memories are rejected", func() {
			status, _ := do(srv, http.MethodPost, "/memories", types.MemoryEntry{
				Type: types.MemoryFact, Content: "x", Confidence: 2,
			})
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Malformed search parameters are rejected", func() {
			status, _ := do(srv, http.MethodGet, "/memories?minConfidence=abc", nil)
			So(status, ShouldEqual, http.StatusBadRequest)

			status, _ = do(srv, http.MethodGet, "/memories?from=2024-02-01T00:00:00Z&to=2024-01-01T00:00:00Z", nil)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Unknown conversations are not found", func() {
			status, _ := do(srv, http.MethodGet, "/conversations/missing", nil)
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = do(srv, http.MethodDelete, "/conversations/missing", nil)
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("Health reports ok", func() {
			status, body := do(srv, http.MethodGet, "/health", nil)
			So(status, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, `"status":"ok"`)
		})
	})
}

func TestMessageRateLimit(t *testing.T) {
	Convey("Given a server allowing one message per minute", t, func() {
		manager := memory.NewManager()
		defer manager.Close()

		registry := session.NewRegistry(manager, stores.NewInMemoryStore())
		broker := sse.NewTestSSEBroker()
		relay := stream.NewRelay(registry, manager, nil, provider.NewEchoRunner(), broker)
		srv := NewServer(registry, manager, relay, broker, WithRateLimit(1, time.Minute))

		status, body := do(srv, http.MethodPost, "/sessions", session.CreateParams{AgentType: "assistant", OwnerID: "u1", ContextAware: true})
		So(status, ShouldEqual, http.StatusCreated)

		var created types.Session
		So(json.Unmarshal(body, &created), ShouldBeNil)

		Convey("The second message is turned away", func() {
			status, _ := do(srv, http.MethodPost, "/sessions/"+created.ID+"/messages", messageRequest{Content: "one"})
			So(status, ShouldEqual, http.StatusOK)

			status, body := do(srv, http.MethodPost, "/sessions/"+created.ID+"/messages", messageRequest{Content: "two"})
			So(status, ShouldEqual, http.StatusTooManyRequests)
			So(string(body), ShouldContainSubstring, "Too many messages")
		})
	})
}
