// Package session keeps per-session conversation history in memory. History
// lives for the lifetime of the process.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/internal/agents"
	"github.com/dyike/chat2vis/models"
)

var ErrNotFound = errors.New("session not found")

// History is the ordered transcript of one session. Turns are only ever
// appended.
type History struct {
	id string

	mu        sync.RWMutex
	turns     []models.Turn
	createdAt time.Time
	updatedAt time.Time

	// exchange serialises whole read-classify-append cycles on this session.
	exchange sync.Mutex
	// busy counts exchanges that hold or wait for the lock. Changed under
	// Store.mu when acquiring, so eviction never sees a stale zero.
	busy atomic.Int32
}

func newHistory(id string, now time.Time) *History {
	return &History{id: id, createdAt: now, updatedAt: now}
}

func (h *History) ID() string {
	return h.id
}

func (h *History) Append(turns ...models.Turn) {
	if len(turns) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		h.turns = append(h.turns, t)
	}
	h.updatedAt = now
}

// Turns returns a copy of the transcript.
func (h *History) Turns() []models.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Messages renders the transcript as chat history for the model.
func (h *History) Messages() []*schema.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*schema.Message, 0, len(h.turns))
	for _, t := range h.turns {
		if t.Content == "" && t.Code == "" {
			continue
		}
		out = append(out, agents.TurnMessage(t.Role, t.Content, t.Code))
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *History) UpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updatedAt
}

func (h *History) CreatedAt() time.Time {
	return h.createdAt
}

// Busy reports whether an exchange is running or queued on this session.
func (h *History) Busy() bool {
	return h.busy.Load() > 0
}

func (h *History) touch(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if now.After(h.updatedAt) {
		h.updatedAt = now
	}
}

// Store maps session ids to histories.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*History
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*History),
		now:      time.Now,
	}
}

// Get returns the history for id, creating an empty one on first use. The
// same pointer is returned for the same id until the session is deleted.
func (s *Store) Get(id string) *History {
	s.mu.RLock()
	h, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.sessions[id]; ok {
		return h
	}
	h = newHistory(id, s.now())
	s.sessions[id] = h
	return h
}

// Acquire returns the history for id, created on first use, with its
// exchange lock held. Callers hold it from reading history until both turns
// of the exchange are appended, then call Release. An acquired session is
// never evicted.
func (s *Store) Acquire(id string) *History {
	s.mu.Lock()
	h, ok := s.sessions[id]
	if !ok {
		h = newHistory(id, s.now())
		s.sessions[id] = h
	}
	h.busy.Add(1)
	s.mu.Unlock()

	h.exchange.Lock()
	h.touch(s.now())
	return h
}

func (s *Store) Release(h *History) {
	h.touch(s.now())
	h.exchange.Unlock()
	h.busy.Add(-1)
}

// Lookup returns the history for id without creating it.
func (s *Store) Lookup(id string) (*History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[id]
	return h, ok
}

// Messages is the model-facing history of id.
func (s *Store) Messages(id string) []*schema.Message {
	return s.Get(id).Messages()
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// IDs returns the known session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictOlderThan drops idle sessions not updated within age and reports how
// many were removed. Sessions with an exchange in flight are kept.
func (s *Store) EvictOlderThan(age time.Duration) int {
	cutoff := s.now().Add(-age)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, h := range s.sessions {
		if !h.Busy() && h.UpdatedAt().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor evicts idle sessions every interval until ctx is done. A ttl of
// zero disables eviction.
func (s *Store) RunJanitor(ctx context.Context, every, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if every <= 0 {
		every = max(ttl/2, time.Millisecond)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictOlderThan(ttl); n > 0 {
				log.Printf("[Janitor] evicted %d idle sessions", n)
			}
		}
	}
}
