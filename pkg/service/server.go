package service

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/memory"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/service/sse"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

/*
Server is the REST and SSE connection layer in front of the session
registry, the relay and the memory manager. It is safe for concurrent use
because everything it wraps is.
*/
type Server struct {
	app      *fiber.App
	registry *session.Registry
	manager  *memory.Manager
	relay    *stream.Relay
	broker   *sse.SSEBroker
	limiter  *RateLimiter
	addr     string
}

type ServerOption func(*Server)

/*
WithRateLimit caps the messages each session may post per interval.
*/
func WithRateLimit(limit int, interval time.Duration) ServerOption {
	return func(srv *Server) {
		srv.limiter = NewRateLimiter(limit, interval)
	}
}

func WithAddr(addr string) ServerOption {
	return func(srv *Server) {
		if addr != "" {
			srv.addr = addr
		}
	}
}

/*
NewServer constructs a server and registers its routes.
*/
func NewServer(
	registry *session.Registry,
	manager *memory.Manager,
	relay *stream.Relay,
	broker *sse.SSEBroker,
	options ...ServerOption,
) *Server {
	srv := &Server{
		app: fiber.New(fiber.Config{
			AppName:           "agentsdk",
			ServerHeader:      "AgentSDK-Server",
			StreamRequestBody: true,
		}),
		registry: registry,
		manager:  manager,
		relay:    relay,
		broker:   broker,
		addr:     ":3210",
	}

	for _, option := range options {
		option(srv)
	}

	srv.routes()
	return srv
}

func (srv *Server) routes() {
	srv.app.Use(logger.New(logger.Config{
		// event streams stay open for the whole session
		Next: func(c fiber.Ctx) bool {
			return c.Route().Path == "/sessions/:id/events"
		},
	}))

	srv.app.Get("/health", srv.handleHealth)
	srv.app.Get("/metrics", srv.handleMetrics)

	srv.app.Post("/sessions", srv.handleCreateSession)
	srv.app.Get("/sessions/:id", srv.handleGetSession)
	srv.app.Delete("/sessions/:id", srv.handleCloseSession)
	srv.app.Post("/sessions/:id/messages", srv.handleMessage)
	srv.app.Get("/sessions/:id/events", srv.handleEvents)
	srv.app.Get("/sessions/:id/approvals", srv.handleListApprovals)
	srv.app.Post("/sessions/:id/approvals", srv.handleAddApproval)
	srv.app.Post("/sessions/:id/approvals/:aid", srv.handleResolveApproval)

	srv.app.Get("/conversations", srv.handleListConversations)
	srv.app.Get("/conversations/:id", srv.handleGetConversation)
	srv.app.Delete("/conversations/:id", srv.handleDeleteConversation)

	srv.app.Get("/memories", srv.handleSearchMemories)
	srv.app.Post("/memories", srv.handleAddMemory)
	srv.app.Get("/memories/:id", srv.handleGetMemory)
	srv.app.Delete("/memories/:id", srv.handleDeleteMemory)
}

func (srv *Server) Start() error {
	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *Server) Shutdown() error {
	srv.broker.Close()
	return srv.app.Shutdown()
}

// App exposes the underlying fiber app, mostly for tests.
func (srv *Server) App() *fiber.App {
	return srv.app
}

func (srv *Server) handleEvents(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if _, err := srv.registry.JoinSession(ctx, id); err != nil {
		return srv.fail(ctx, err)
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		srv.broker.Subscribe(id, w, r)
	}

	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

/*
fail writes err as a ResponseError with the status its kind maps to.
*/
func (srv *Server) fail(ctx fiber.Ctx, err error) error {
	resp := errors.ToResponse(err)
	return ctx.Status(resp.Code).JSON(resp)
}
