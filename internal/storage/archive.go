// Package storage archives finished exchanges so transcripts survive a
// restart. The in-memory session store stays the source of truth for the chat
// path; the archive is only read by admin surfaces.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/internal/chart"
	"github.com/dyike/chat2vis/internal/storage/sqlite"
	"github.com/dyike/chat2vis/models"
)

var (
	ErrArchiveDisabled = errors.New("transcript archive is disabled")
	ErrNotFound        = errors.New("archived session not found")
)

const titleLimit = 80

// Archive pairs the sqlite store with its asynchronous recorder. A nil
// *Archive is valid: writes are dropped and reads return ErrArchiveDisabled.
type Archive struct {
	store    *sqlite.Store
	recorder *Recorder
}

// OpenArchive opens the archive configured by cfg, or returns nil when the
// archive is disabled.
func OpenArchive(cfg *config.Config) (*Archive, error) {
	if cfg == nil || !cfg.ArchiveEnabled {
		return nil, nil
	}
	return OpenArchiveAt(cfg.ArchivePath())
}

func OpenArchiveAt(path string) (*Archive, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{store: store, recorder: NewRecorder(store, 0)}, nil
}

// Record queues one exchange for writing.
func (a *Archive) Record(ex Exchange) {
	if a == nil {
		return
	}
	a.recorder.Record(ex)
}

// Flush blocks until every queued exchange is written.
func (a *Archive) Flush() {
	if a == nil {
		return
	}
	a.recorder.Flush()
}

func (a *Archive) Sessions(ctx context.Context, cursor int64, limit int) ([]models.ArchivedSession, error) {
	if a == nil {
		return nil, ErrArchiveDisabled
	}
	recs, err := a.store.ListSessions(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.ArchivedSession, 0, len(recs))
	for _, r := range recs {
		out = append(out, toArchivedSession(r))
	}
	return out, nil
}

// Messages returns the archived turns of a session, or ErrNotFound.
func (a *Archive) Messages(ctx context.Context, sessionID string) ([]models.Turn, error) {
	if a == nil {
		return nil, ErrArchiveDisabled
	}
	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	recs, err := a.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns := make([]models.Turn, 0, len(recs))
	for _, r := range recs {
		turn := models.Turn{Role: r.Role, Content: r.Content, Code: r.Code, CreatedAt: r.CreatedAt}
		if r.ChartJSON != "" {
			var fig chart.Figure
			if err := json.Unmarshal([]byte(r.ChartJSON), &fig); err != nil {
				log.Printf("[Archive] message %s: bad chart json: %v", r.ID, err)
			} else {
				turn.Chart = &fig
			}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (a *Archive) Delete(ctx context.Context, sessionID string) (bool, error) {
	if a == nil {
		return false, ErrArchiveDisabled
	}
	a.recorder.Flush()
	return a.store.DeleteSession(ctx, sessionID)
}

// Close drains the recorder and closes the database.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	a.recorder.Close()
	return a.store.Close()
}

func toArchivedSession(r sqlite.SessionWithMeta) models.ArchivedSession {
	return models.ArchivedSession{
		ID:        r.ID,
		Title:     r.Title,
		Status:    r.Status,
		Turns:     r.Messages,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func title(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	if r := []rune(prompt); len(r) > titleLimit {
		return string(r[:titleLimit-1]) + "…"
	}
	return prompt
}
