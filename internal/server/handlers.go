package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dyike/chat2vis/internal/service"
	"github.com/dyike/chat2vis/internal/session"
	"github.com/dyike/chat2vis/internal/storage"
	"github.com/dyike/chat2vis/models"
)

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, models.Response{Code: 0, Msg: "ok", Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, models.Response{Code: status, Msg: msg})
}

// statusOf maps service errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrArchiveDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) failWith(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Printf("[Server] %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return fail(c, status, err.Error())
}

// Health reports liveness.
// GET /health
func (s *Server) Health(c echo.Context) error {
	return ok(c, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.svc.Store().Len(),
	})
}

// CreateSession mints a session id.
// POST /v1/sessions
func (s *Server) CreateSession(c echo.Context) error {
	return ok(c, http.StatusCreated, models.SessionReply{SessionID: s.svc.NewSession()})
}

// ListSessions lists in-memory session ids.
// GET /v1/sessions
func (s *Server) ListSessions(c echo.Context) error {
	return ok(c, http.StatusOK, s.svc.Sessions())
}

// Chat runs one exchange.
// POST /v1/chat
func (s *Server) Chat(c echo.Context) error {
	var req models.ChatRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	id, answer, err := s.svc.Ask(ctx, req.SessionID, req.Message)
	if err != nil {
		return s.failWith(c, err)
	}
	return ok(c, http.StatusOK, models.ChatReply{SessionID: id, Answer: answer})
}

// ListMessages returns the turns of a live session.
// GET /v1/sessions/:id/messages
func (s *Server) ListMessages(c echo.Context) error {
	id := c.Param("id")
	turns, err := s.svc.History(id)
	if err != nil {
		return s.failWith(c, err)
	}
	return ok(c, http.StatusOK, models.MessagesReply{SessionID: id, Turns: turns})
}

// DeleteSession forgets a session.
// DELETE /v1/sessions/:id
func (s *Server) DeleteSession(c echo.Context) error {
	if err := s.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.failWith(c, err)
	}
	return ok(c, http.StatusOK, nil)
}

// ListArchivedSessions pages through the transcript archive.
// GET /v1/archive/sessions?cursor=&limit=
func (s *Server) ListArchivedSessions(c echo.Context) error {
	cursor, _ := strconv.ParseInt(c.QueryParam("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	sessions, err := s.svc.ArchivedSessions(c.Request().Context(), cursor, limit)
	if err != nil {
		return s.failWith(c, err)
	}
	return ok(c, http.StatusOK, sessions)
}

// ListArchivedMessages returns archived turns.
// GET /v1/archive/sessions/:id/messages
func (s *Server) ListArchivedMessages(c echo.Context) error {
	id := c.Param("id")
	turns, err := s.svc.ArchivedMessages(c.Request().Context(), id)
	if err != nil {
		return s.failWith(c, err)
	}
	return ok(c, http.StatusOK, models.MessagesReply{SessionID: id, Turns: turns})
}
