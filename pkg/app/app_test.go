package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/provider"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

type recorder struct {
	mu     sync.Mutex
	events []stream.Event
}

func (r *recorder) Emit(ctx context.Context, event stream.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) count(kind stream.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, ev := range r.events {
		if ev.Type == kind {
			n++
		}
	}

	return n
}

func TestLoadConfig(t *testing.T) {
	Convey("Given a partial configuration", t, func() {
		v := viper.New()
		v.SetConfigType("yml")
		So(v.ReadConfig(strings.NewReader(`
store:
  backend: sqlite
  sqlite:
    path: ~/data/engine.db
memory:
  maxMemories: 50
  cleanupInterval: 10m
agents:
  researcher:
    instructions: dig deep
    tools: [memory, web]
`)), ShouldBeNil)

		cfg, err := LoadConfig(v)
		So(err, ShouldBeNil)

		Convey("Set keys override the defaults", func() {
			So(cfg.Store.Backend, ShouldEqual, "sqlite")
			So(cfg.Memory.MaxMemories, ShouldEqual, 50)
			So(cfg.Memory.CleanupInterval.Minutes(), ShouldEqual, 10)
			So(cfg.Agents["researcher"].ToolLabels, ShouldResemble, []string{"memory", "web"})
			So(strings.HasPrefix(cfg.Store.SQLite.Path, "~"), ShouldBeFalse)
		})

		Convey("Unset keys keep their defaults", func() {
			So(cfg.Memory.SummaryThreshold, ShouldEqual, 50)
			So(cfg.Session.IdleTimeout, ShouldEqual, session.DefaultIdleTimeout)
			So(cfg.Runner.Provider, ShouldEqual, "echo")
		})
	})
}

func TestNew(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		rec := &recorder{}
		app, err := New(context.Background(), DefaultConfig(), rec)
		So(err, ShouldBeNil)
		defer app.Close()

		ctx := context.Background()

		s, err := app.Registry.CreateSession(ctx, session.CreateParams{
			AgentType: "assistant", OwnerID: "u1", ContextAware: true,
		})
		So(err, ShouldBeNil)

		Convey("The memory tools are available to the default agent", func() {
			So(app.Coordinator.Discover(ctx, "memory"), ShouldEqual, 3)
		})

		Convey("A turn is relayed, recorded and mined for memories", func() {
			result, err := app.Relay.Stream(ctx, s.ID, "my name is Sam")
			So(err, ShouldBeNil)
			So(result.Text, ShouldEqual, "echo: my name is Sam")

			app.Manager.Wait()

			conv := app.Manager.GetConversation(ctx, s.ConversationID, false)
			So(len(conv.Messages), ShouldEqual, 2)
			So(app.Manager.Stats().Memories, ShouldEqual, 1)
			So(rec.count(stream.EventMemoryUpdated), ShouldEqual, 1)
		})

		Convey("Sessions survive in the durable store", func() {
			record, err := app.Store.LoadSession(ctx, s.ID)
			So(err, ShouldBeNil)
			So(record.ConversationID, ShouldEqual, s.ConversationID)
		})
	})

	Convey("Given a sqlite backend and an injected runner", t, func() {
		cfg := DefaultConfig()
		cfg.Store.Backend = "sqlite"
		cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "db", "engine.db")

		app, err := New(context.Background(), cfg, &recorder{}, WithRunner(&provider.ScriptedRunner{}))
		So(err, ShouldBeNil)
		So(app.Runner, ShouldHaveSameTypeAs, &provider.ScriptedRunner{})
		So(app.Close(), ShouldBeNil)
	})

	Convey("Given an unknown backend", t, func() {
		cfg := DefaultConfig()
		cfg.Store.Backend = "tape"

		_, err := New(context.Background(), cfg, &recorder{})
		So(err, ShouldNotBeNil)
	})
}
