package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/chart"
	"github.com/dyike/chat2vis/models"
)

func TestGetReturnsSameHistory(t *testing.T) {
	s := NewStore()
	a := s.Get("abc")
	b := s.Get("abc")
	if a != b {
		t.Fatal("Get returned different histories for the same id")
	}
	if s.Get("other") == a {
		t.Fatal("different ids share a history")
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

func TestAppendVisibleThroughLaterGet(t *testing.T) {
	s := NewStore()
	s.Get("abc").Append(
		models.Turn{Role: consts.RoleUser, Content: "Plot genres"},
		models.Turn{Role: consts.RoleAssistant, Code: "def visualise(): pass", Chart: chart.NewFigure()},
	)
	turns := s.Get("abc").Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Content != "Plot genres" || turns[1].Code != "def visualise(): pass" {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if turns[0].CreatedAt.IsZero() {
		t.Error("Append did not stamp the turn")
	}
}

func TestTurnsIsACopy(t *testing.T) {
	s := NewStore()
	h := s.Get("abc")
	h.Append(models.Turn{Role: consts.RoleUser, Content: "hi"})
	turns := h.Turns()
	turns[0].Content = "changed"
	if h.Turns()[0].Content != "hi" {
		t.Fatal("mutating Turns() changed the history")
	}
}

func TestMessages(t *testing.T) {
	s := NewStore()
	s.Get("abc").Append(
		models.Turn{Role: consts.RoleUser, Content: "Plot genres"},
		models.Turn{Role: consts.RoleAssistant, Code: "def visualise(): pass"},
		models.Turn{Role: consts.RoleAssistant, Chart: chart.NewFigure()},
		models.Turn{Role: consts.RoleUser, Content: "Make it red"},
	)
	msgs := s.Messages("abc")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (chart-only turns are skipped)", len(msgs))
	}
	want := []struct {
		role    schema.RoleType
		content string
	}{
		{schema.User, "Plot genres"},
		{schema.Assistant, "def visualise(): pass"},
		{schema.User, "Make it red"},
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Content != w.content {
			t.Errorf("message %d = %s %q, want %s %q", i, msgs[i].Role, msgs[i].Content, w.role, w.content)
		}
	}
}

func TestLookupAndDelete(t *testing.T) {
	s := NewStore()
	if _, ok := s.Lookup("abc"); ok {
		t.Fatal("Lookup created a session")
	}
	h := s.Get("abc")
	if got, ok := s.Lookup("abc"); !ok || got != h {
		t.Fatal("Lookup did not find the session")
	}
	if !s.Delete("abc") {
		t.Fatal("Delete reported nothing deleted")
	}
	if s.Delete("abc") {
		t.Fatal("second Delete reported a deletion")
	}
	if s.Get("abc") == h {
		t.Fatal("a deleted session came back")
	}
}

func TestIDsSorted(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"c", "a", "b"} {
		s.Get(id)
	}
	ids := s.IDs()
	if fmt.Sprint(ids) != "[a b c]" {
		t.Fatalf("IDs = %v", ids)
	}
}

func TestEvictOlderThan(t *testing.T) {
	s := NewStore()
	s.Get("old").Append(models.Turn{Role: consts.RoleUser, Content: "hi"})
	if n := s.EvictOlderThan(time.Hour); n != 0 {
		t.Fatalf("evicted %d fresh sessions", n)
	}
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := s.EvictOlderThan(time.Hour); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d after eviction", s.Len())
	}
}

func TestEvictSkipsAcquiredSessions(t *testing.T) {
	s := NewStore()
	h := s.Acquire("busy")
	s.Get("idle")
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if n := s.EvictOlderThan(time.Hour); n != 1 {
		t.Fatalf("evicted %d sessions, want only the idle one", n)
	}
	if got, ok := s.Lookup("busy"); !ok || got != h {
		t.Fatal("session with an exchange in flight was evicted")
	}

	s.Release(h)
	if n := s.EvictOlderThan(time.Hour); n != 0 {
		t.Fatalf("Release did not refresh the session, evicted %d", n)
	}
	s.now = func() time.Time { return time.Now().Add(4 * time.Hour) }
	if n := s.EvictOlderThan(time.Hour); n != 1 {
		t.Fatalf("released session not evicted once idle, evicted %d", n)
	}
}

func TestAcquireSerialisesAndRefreshes(t *testing.T) {
	s := NewStore()
	s.Get("abc")
	later := time.Now().Add(time.Hour)
	s.now = func() time.Time { return later }

	h := s.Acquire("abc")
	if !h.Busy() {
		t.Fatal("acquired history is not busy")
	}
	if !h.UpdatedAt().Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", h.UpdatedAt(), later)
	}

	acquired := make(chan struct{})
	go func() {
		s.Release(s.Acquire("abc"))
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("second Acquire did not wait for Release")
	case <-time.After(20 * time.Millisecond):
	}
	s.Release(h)
	<-acquired
	if h.Busy() {
		t.Error("history still busy after both releases")
	}
}

func TestRunJanitor(t *testing.T) {
	s := NewStore()
	s.Get("abc")
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if s.Len() != 0 {
		t.Fatal("janitor did not evict the idle session")
	}
}

func TestRunJanitorDisabled(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})
	go func() {
		s.RunJanitor(context.Background(), time.Millisecond, 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunJanitor with ttl 0 should return immediately")
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := s.Acquire("shared")
			defer s.Release(h)
			h.Append(
				models.Turn{Role: consts.RoleUser, Content: fmt.Sprintf("q%d", i)},
				models.Turn{Role: consts.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
			)
		}(i)
	}
	wg.Wait()

	turns := s.Get("shared").Turns()
	if len(turns) != 100 {
		t.Fatalf("got %d turns, want 100", len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		q, a := turns[i].Content[1:], turns[i+1].Content[1:]
		if turns[i].Role != consts.RoleUser || q != a {
			t.Fatalf("exchange %d interleaved: %q then %q", i/2, turns[i].Content, turns[i+1].Content)
		}
	}
}
