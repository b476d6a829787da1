package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/session"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

type messageRequest struct {
	Content string `json:"content"`
}

type approvalRequest struct {
	ToolName   string          `json:"toolName"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type decisionRequest struct {
	Approved bool `json:"approved"`
}

func (srv *Server) handleHealth(ctx fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"status":   "ok",
		"sessions": srv.registry.Count(),
		"memory":   srv.manager.Stats(),
	})
}

func (srv *Server) handleMetrics(ctx fiber.Ctx) error {
	return ctx.JSON(srv.relay.Metrics().GetMetrics())
}

func (srv *Server) handleCreateSession(ctx fiber.Ctx) error {
	var params session.CreateParams

	if err := ctx.Bind().Body(&params); err != nil {
		return srv.fail(ctx, errors.Validation("invalid request body: %v", err))
	}

	s, err := srv.registry.CreateSession(ctx, params)

	if err != nil {
		return srv.fail(ctx, err)
	}

	srv.relay.SessionCreated(ctx, s)
	return ctx.Status(fiber.StatusCreated).JSON(s)
}

func (srv *Server) handleGetSession(ctx fiber.Ctx) error {
	s, err := srv.registry.JoinSession(ctx, ctx.Params("id"))

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(s)
}

func (srv *Server) handleCloseSession(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if !srv.registry.CloseSession(ctx, id) {
		return srv.fail(ctx, errors.NotFound("session %s", id))
	}

	srv.broker.Disconnect(id)
	srv.limiter.Forget(id)
	return ctx.SendStatus(fiber.StatusNoContent)
}

/*
handleMessage runs one agent turn. Output reaches the session's event
stream; the response body carries the final result once the turn is done.
*/
func (srv *Server) handleMessage(ctx fiber.Ctx) error {
	var body messageRequest

	if err := ctx.Bind().Body(&body); err != nil {
		return srv.fail(ctx, errors.Validation("invalid request body: %v", err))
	}

	if ok, wait := srv.limiter.Allow(ctx.Params("id")); !ok {
		ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		resp := errors.ErrRateLimited
		return ctx.Status(resp.Code).JSON(resp)
	}

	run := srv.relay.Stream

	if ctx.Query("stream") == "false" {
		run = srv.relay.Send
	}

	result, err := run(ctx, ctx.Params("id"), body.Content)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(result)
}

func (srv *Server) handleListApprovals(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if _, ok := srv.registry.Get(id); !ok {
		return srv.fail(ctx, errors.NotFound("session %s", id))
	}

	approvals := srv.registry.PendingApprovals(id)

	if approvals == nil {
		approvals = []types.Approval{}
	}

	return ctx.JSON(approvals)
}

func (srv *Server) handleAddApproval(ctx fiber.Ctx) error {
	var body approvalRequest

	if err := ctx.Bind().Body(&body); err != nil {
		return srv.fail(ctx, errors.Validation("invalid request body: %v", err))
	}

	if strings.TrimSpace(body.ToolName) == "" {
		return srv.fail(ctx, errors.Validation("toolName is required"))
	}

	approval, err := srv.registry.AddPendingApproval(ctx.Params("id"), body.ToolName, body.Parameters)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(approval)
}

func (srv *Server) handleResolveApproval(ctx fiber.Ctx) error {
	var body decisionRequest

	if err := ctx.Bind().Body(&body); err != nil {
		return srv.fail(ctx, errors.Validation("invalid request body: %v", err))
	}

	approval, err := srv.registry.ResolvePendingApproval(ctx.Params("id"), ctx.Params("aid"), body.Approved)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(approval)
}

func (srv *Server) handleListConversations(ctx fiber.Ctx) error {
	owner := ctx.Query("owner")

	if err := types.ValidateOwner(owner); err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(srv.manager.ListConversations(ctx, owner))
}

func (srv *Server) handleGetConversation(ctx fiber.Ctx) error {
	id := ctx.Params("id")
	conv := srv.manager.GetConversation(ctx, id, ctx.Query("context") == "true")

	if conv == nil {
		return srv.fail(ctx, errors.NotFound("conversation %s", id))
	}

	return ctx.JSON(conv)
}

func (srv *Server) handleDeleteConversation(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if !srv.manager.DeleteConversation(ctx, id) {
		return srv.fail(ctx, errors.NotFound("conversation %s", id))
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (srv *Server) handleSearchMemories(ctx fiber.Ctx) error {
	query, err := parseMemoryQuery(ctx)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(srv.manager.SearchMemories(ctx, query))
}

func (srv *Server) handleAddMemory(ctx fiber.Ctx) error {
	var entry types.MemoryEntry

	if err := ctx.Bind().Body(&entry); err != nil {
		return srv.fail(ctx, errors.Validation("invalid request body: %v", err))
	}

	if entry.Source == "" {
		entry.Source = "api"
	}

	if err := types.ValidateMemory(entry); err != nil {
		return srv.fail(ctx, err)
	}

	id := srv.manager.AddMemory(ctx, entry)
	log.Debug("memory added", "memory", id, "type", entry.Type)

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (srv *Server) handleGetMemory(ctx fiber.Ctx) error {
	id := ctx.Params("id")
	entry, ok := srv.manager.GetMemory(ctx, id)

	if !ok {
		return srv.fail(ctx, errors.NotFound("memory %s", id))
	}

	return ctx.JSON(entry)
}

func (srv *Server) handleDeleteMemory(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if !srv.manager.DeleteMemory(ctx, id) {
		return srv.fail(ctx, errors.NotFound("memory %s", id))
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

/*
parseMemoryQuery reads a MemoryQuery from the query string: query, type,
limit, minConfidence, tags (comma separated), from and to (RFC 3339).
*/
func parseMemoryQuery(ctx fiber.Ctx) (types.MemoryQuery, error) {
	query := types.MemoryQuery{
		Query: ctx.Query("query"),
		Type:  types.MemoryType(ctx.Query("type")),
	}

	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)

		if err != nil || limit < 0 {
			return query, errors.Validation("limit must be a non-negative integer")
		}

		query.Limit = limit
	}

	if raw := ctx.Query("minConfidence"); raw != "" {
		floor, err := strconv.ParseFloat(raw, 64)

		if err != nil || floor < 0 || floor > 1 {
			return query, errors.Validation("minConfidence must be between 0 and 1")
		}

		query.MinConfidence = &floor
	}

	if raw := ctx.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				query.Tags = append(query.Tags, tag)
			}
		}
	}

	if from, to := ctx.Query("from"), ctx.Query("to"); from != "" || to != "" {
		rng, err := parseTimeRange(from, to)

		if err != nil {
			return query, err
		}

		query.TimeRange = rng
	}

	return query, nil
}

// parseTimeRange turns optional RFC 3339 bounds into a closed range.
func parseTimeRange(from, to string) (*types.TimeRange, error) {
	rng := &types.TimeRange{Start: time.Unix(0, 0).UTC(), End: time.Now().UTC()}

	if from != "" {
		start, err := time.Parse(time.RFC3339, from)

		if err != nil {
			return nil, errors.Validation("from must be an RFC 3339 timestamp")
		}

		rng.Start = start
	}

	if to != "" {
		end, err := time.Parse(time.RFC3339, to)

		if err != nil {
			return nil, errors.Validation("to must be an RFC 3339 timestamp")
		}

		rng.End = end
	}

	if rng.End.Before(rng.Start) {
		return nil, errors.Validation("from must not be after to")
	}

	return rng, nil
}
