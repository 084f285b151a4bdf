// Package service is the chat use case shared by the HTTP server, the
// websocket endpoint and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/session"
	"github.com/dyike/chat2vis/internal/storage"
	"github.com/dyike/chat2vis/models"
)

var ErrEmptyMessage = errors.New("message is required")

// Handler answers one user turn against the history of a session.
type Handler interface {
	Handle(ctx context.Context, text, sessionID string) (*models.Answer, error)
}

type ChatService struct {
	handler Handler
	store   *session.Store
	archive *storage.Archive
	now     func() time.Time
}

// NewChatService wires the service. archive may be nil.
func NewChatService(handler Handler, store *session.Store, archive *storage.Archive) *ChatService {
	if store == nil {
		store = session.NewStore()
	}
	return &ChatService{handler: handler, store: store, archive: archive, now: time.Now}
}

func (s *ChatService) Store() *session.Store {
	return s.store
}

// NewSession mints and registers a session id.
func (s *ChatService) NewSession() string {
	id := uuid.NewString()
	s.store.Get(id)
	return id
}

// Ask runs one exchange. An empty sessionID starts a new session; the id used
// is returned. Both turns are appended only when the handler succeeds.
func (s *ChatService) Ask(ctx context.Context, sessionID, text string) (string, *models.Answer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, ErrEmptyMessage
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = s.NewSession()
	}

	h := s.store.Acquire(sessionID)
	defer s.store.Release(h)

	user := models.Turn{Role: consts.RoleUser, Content: text, CreatedAt: s.now()}
	answer, err := s.handler.Handle(ctx, text, sessionID)
	if err != nil {
		s.archive.Record(storage.Exchange{SessionID: sessionID, User: user, Err: err})
		return sessionID, nil, fmt.Errorf("answer session %s: %w", sessionID, err)
	}
	if answer.Empty() {
		log.Printf("[Service] session %s: empty answer", sessionID)
		answer = &models.Answer{Content: consts.ErrorMessage}
	}

	assistant := answer.Turn(s.now())
	h.Append(user, assistant)
	s.archive.Record(storage.Exchange{SessionID: sessionID, User: user, Assistant: &assistant})
	return sessionID, answer, nil
}

// History returns the in-memory turns of a session.
func (s *ChatService) History(sessionID string) ([]models.Turn, error) {
	h, ok := s.store.Lookup(sessionID)
	if !ok {
		return nil, session.ErrNotFound
	}
	return h.Turns(), nil
}

// Delete forgets a session in memory and in the archive.
func (s *ChatService) Delete(ctx context.Context, sessionID string) error {
	found := s.store.Delete(sessionID)
	archived, err := s.archive.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, storage.ErrArchiveDisabled) {
		return fmt.Errorf("delete archived session: %w", err)
	}
	if !found && !archived {
		return session.ErrNotFound
	}
	return nil
}

func (s *ChatService) Sessions() []string {
	return s.store.IDs()
}

func (s *ChatService) ArchivedSessions(ctx context.Context, cursor int64, limit int) ([]models.ArchivedSession, error) {
	return s.archive.Sessions(ctx, cursor, limit)
}

func (s *ChatService) ArchivedMessages(ctx context.Context, sessionID string) ([]models.Turn, error) {
	return s.archive.Messages(ctx, sessionID)
}

// RunJanitor evicts idle in-memory sessions until ctx is done.
func (s *ChatService) RunJanitor(ctx context.Context, ttl time.Duration) {
	s.store.RunJanitor(ctx, 0, ttl)
}
