package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/discovery"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/provider"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores/s3"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stores/sqlite"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/tools"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
App owns the shared services of one engine instance. Commands build one App
and hand its parts to whatever front end they run.
*/
type App struct {
	Config      Config
	Store       stores.Store
	Manager     *memory.Manager
	Registry    *session.Registry
	Coordinator *discovery.Coordinator
	Runner      provider.Runner
	Relay       *stream.Relay
	MemoryTools *tools.MemoryTools
	remote      *discovery.MCPDiscoverer
}

type AppOption func(*App)

// WithRunner replaces the runner chosen by configuration.
func WithRunner(runner provider.Runner) AppOption {
	return func(app *App) {
		app.Runner = runner
	}
}

// WithStore replaces the store chosen by configuration.
func WithStore(store stores.Store) AppOption {
	return func(app *App) {
		app.Store = store
	}
}

/*
New wires the engine: store, memory manager, session registry, discovery
and the relay that emits to emitter.
*/
func New(ctx context.Context, cfg Config, emitter stream.Emitter, options ...AppOption) (*App, error) {
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	app := &App{Config: cfg}

	for _, option := range options {
		option(app)
	}

	if app.Store == nil {
		store, err := openStore(ctx, cfg)

		if err != nil {
			return nil, err
		}

		app.Store = store
	}

	app.Manager = memory.NewManager(
		memory.WithDurableStore(app.Store),
		memory.WithMaxTokens(cfg.Memory.MaxTokens),
		memory.WithCompressionThreshold(cfg.Memory.CompressionThreshold),
		memory.WithRecentMessages(cfg.Memory.RecentMessages),
		memory.WithSummaryThreshold(cfg.Memory.SummaryThreshold),
		memory.WithMaxMemories(cfg.Memory.MaxMemories),
		memory.WithMaxConversations(cfg.Memory.MaxConversations),
		memory.WithRelevantMemories(cfg.Memory.RelevantMemories),
		memory.WithHookWorkers(cfg.Memory.HookWorkers, 256),
	)

	app.Registry = session.NewRegistry(app.Manager, app.Store)
	app.MemoryTools = tools.NewMemoryTools(app.Manager)

	static := discovery.NewStaticDiscoverer()
	app.MemoryTools.RegisterStatic(static, tools.MemoryLabel)

	mux := discovery.NewMux()
	mux.Handle(tools.MemoryLabel, static)

	app.remote = discovery.NewMCPDiscoverer(cfg.Discovery.Servers)

	for _, label := range app.remote.Labels() {
		mux.Handle(label, app.remote)
	}

	app.Coordinator = discovery.NewCoordinator(mux, discovery.WithTimeout(cfg.Discovery.Timeout))

	if app.Runner == nil {
		app.Runner = newRunner(cfg)
	}

	app.Relay = stream.NewRelay(
		app.Registry, app.Manager, app.Coordinator, app.Runner, emitter,
		stream.WithAgents(cfg.Agents),
	)

	app.Manager.OnMemoriesExtracted(func(conversationID string, entries []types.MemoryEntry) {
		app.Relay.NotifyMemories(context.WithoutCancel(ctx), conversationID, entries)
	})

	log.Info("engine ready", "store", cfg.Store.Backend, "runner", cfg.Runner.Provider, "agents", len(cfg.Agents))
	return app, nil
}

/*
Start runs the idle-session sweep and the memory cleanup until ctx ends, and
warms the discovery cache for configured MCP servers.
*/
func (app *App) Start(ctx context.Context) {
	sweep, idle, cleanup := app.Config.Session.SweepInterval, app.Config.Session.IdleTimeout, app.Config.Memory.CleanupInterval

	if sweep <= 0 {
		sweep = session.DefaultSweepInterval
	}

	if idle <= 0 {
		idle = session.DefaultIdleTimeout
	}

	if cleanup <= 0 {
		cleanup = time.Hour
	}

	go app.Registry.Run(ctx, sweep, idle)
	go app.Manager.Run(ctx, cleanup)

	for _, label := range app.remote.Labels() {
		go func(label string) {
			log.Info("tools discovered", "label", label, "count", app.Coordinator.Discover(ctx, label))
		}(label)
	}
}

/*
Close drains queued memory work and releases the store.
*/
func (app *App) Close() error {
	app.Manager.Close()
	return app.Store.Close()
}

func openStore(ctx context.Context, cfg Config) (stores.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return stores.NewInMemoryStore(), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}

		return sqlite.Open(cfg.Store.SQLite.Path)
	case "s3":
		conn, err := s3.NewConn(ctx, s3.Config{
			Endpoint:  cfg.Store.S3.Endpoint,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			Bucket:    cfg.Store.S3.Bucket,
			UseSSL:    cfg.Store.S3.UseSSL,
		})

		if err != nil {
			return nil, err
		}

		return s3.NewStore(conn), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func newRunner(cfg Config) provider.Runner {
	switch cfg.Runner.Provider {
	case "openai":
		return provider.NewOpenAIRunner(provider.WithOpenAIModel(cfg.Runner.Model))
	case "anthropic":
		return provider.NewAnthropicRunner(provider.WithAnthropicModel(cfg.Runner.Model))
	}

	return provider.NewEchoRunner()
}
