package storage

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/chat2vis/internal/storage/sqlite"
	"github.com/dyike/chat2vis/models"
)

const defaultBuffer = 256

// Exchange is one question and its answer. Err is set when the orchestrator
// failed; Assistant is then nil.
type Exchange struct {
	SessionID string
	User      models.Turn
	Assistant *models.Turn
	Err       error
}

type recordEvent struct {
	ex    Exchange
	flush chan struct{}
}

// Recorder writes exchanges from a single goroutine so the chat path never
// waits on disk.
type Recorder struct {
	store *sqlite.Store

	events chan recordEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

func NewRecorder(store *sqlite.Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store:  store,
		events: make(chan recordEvent, buffer),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for ev := range r.events {
		if ev.flush != nil {
			close(ev.flush)
			continue
		}
		if err := r.write(ctx, ev.ex); err != nil {
			log.Printf("[Archive] session %s: %v", ev.ex.SessionID, err)
		}
	}
}

// Record queues ex. It blocks only while the buffer is full; after Close it
// is a no-op.
func (r *Recorder) Record(ex Exchange) {
	r.enqueue(recordEvent{ex: ex})
}

// Flush waits until everything queued before the call is written.
func (r *Recorder) Flush() {
	ch := make(chan struct{})
	if !r.enqueue(recordEvent{flush: ch}) {
		return
	}
	<-ch
}

func (r *Recorder) enqueue(ev recordEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	select {
	case <-r.done:
		return false
	default:
	}
	r.events <- ev
	return true
}

func (r *Recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		close(r.done)
		close(r.events)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

func (r *Recorder) write(ctx context.Context, ex Exchange) error {
	status := sqlite.StatusDone
	if ex.Err != nil {
		status = sqlite.StatusError
	}
	if err := r.store.CreateSession(ctx, sqlite.SessionRecord{
		ID:     ex.SessionID,
		Title:  title(ex.User.Content),
		Status: status,
	}); err != nil {
		return err
	}

	turns := []models.Turn{ex.User}
	if ex.Assistant != nil {
		turns = append(turns, *ex.Assistant)
	}
	seq, err := r.store.NextSeq(ctx, ex.SessionID)
	if err != nil {
		return err
	}
	for _, t := range turns {
		msg := sqlite.MessageRecord{
			ID:        uuid.NewString(),
			SessionID: ex.SessionID,
			Role:      t.Role,
			Content:   t.Content,
			Code:      t.Code,
			Seq:       seq,
			CreatedAt: t.CreatedAt,
		}
		if t.Chart != nil {
			data, err := json.Marshal(t.Chart)
			if err != nil {
				log.Printf("[Archive] marshal chart: %v", err)
			} else {
				msg.ChartJSON = string(data)
			}
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		if err := r.store.InsertMessage(ctx, msg); err != nil {
			return err
		}
		seq++
	}
	return nil
}
