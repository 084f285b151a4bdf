// Package server exposes the chat service over HTTP and a websocket.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/internal/service"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	e        *echo.Echo
	svc      *service.ChatService
	timeout  time.Duration
	upgrader websocket.Upgrader
}

func New(cfg *config.Config, svc *service.ChatService) *Server {
	s := &Server{
		e:       echo.New(),
		svc:     svc,
		timeout: cfg.RequestTimeout.Std(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Debug = cfg.Debug

	s.e.Use(middleware.Logger())
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.CORS())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.e.GET("/health", s.Health)

	v1 := s.e.Group("/v1")
	v1.POST("/sessions", s.CreateSession)
	v1.GET("/sessions", s.ListSessions)
	v1.GET("/sessions/:id/messages", s.ListMessages)
	v1.DELETE("/sessions/:id", s.DeleteSession)
	v1.POST("/chat", s.Chat)
	v1.GET("/ws", s.HandleWebSocket)

	v1.GET("/archive/sessions", s.ListArchivedSessions)
	v1.GET("/archive/sessions/:id/messages", s.ListArchivedMessages)
}

// Handler is the routed echo instance, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] listening on %s", addr)
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("[Server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// requestContext applies the configured request timeout, if any.
func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}
