package server

import (
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dyike/chat2vis/models"
)

const (
	FrameAnswer = "answer"
	FrameError  = "error"

	maxFrameSize = 64 << 10
)

// HandleWebSocket serves exchanges over one connection, one at a time.
// GET /v1/ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[Server] websocket upgrade: %v", err)
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Server] websocket read: %v", err)
			}
			return nil
		}

		frame := s.exchange(c, data)
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("[Server] websocket write: %v", err)
			return nil
		}
	}
}

func (s *Server) exchange(c echo.Context, data []byte) models.WSFrame {
	var req models.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.WSFrame{Type: FrameError, Error: "invalid JSON message"}
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	id, answer, err := s.svc.Ask(ctx, req.SessionID, req.Message)
	if err != nil {
		return models.WSFrame{Type: FrameError, SessionID: id, Error: err.Error()}
	}
	return models.WSFrame{Type: FrameAnswer, SessionID: id, Answer: answer}
}
