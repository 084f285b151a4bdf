package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.CreateSession(ctx, SessionRecord{ID: "a", Title: "How many employees?"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CreateSession(ctx, SessionRecord{ID: "a", Title: "later prompt", Status: StatusError}); err != nil {
		t.Fatalf("CreateSession again: %v", err)
	}
	got, err := s.GetSession(ctx, "a")
	if err != nil || got == nil {
		t.Fatalf("GetSession = %v, %v", got, err)
	}
	if got.Title != "How many employees?" || got.Status != StatusError {
		t.Errorf("session = %+v", got.SessionRecord)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	missing, err := s.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetSession(missing) = %v, %v", missing, err)
	}
}

func TestMessagesAreOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.CreateSession(ctx, SessionRecord{ID: "a"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i, role := range []string{"user", "assistant", "user"} {
		seq, err := s.NextSeq(ctx, "a")
		if err != nil {
			t.Fatalf("NextSeq: %v", err)
		}
		if seq != i+1 {
			t.Fatalf("seq = %d, want %d", seq, i+1)
		}
		msg := MessageRecord{ID: role + string(rune('0'+i)), SessionID: "a", Role: role, Content: "turn", Seq: seq}
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}
	if err := s.InsertMessage(ctx, MessageRecord{ID: "x", SessionID: "a", Role: "user", Seq: 0}); err == nil {
		t.Error("expected an error for seq 0")
	}
	if err := s.InsertMessage(ctx, MessageRecord{ID: "y", SessionID: "a", Seq: 9}); err == nil {
		t.Error("expected an error for a missing role")
	}

	msgs, err := s.ListMessages(ctx, "a")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != i+1 {
			t.Errorf("message %d has seq %d", i, m.Seq)
		}
	}

	sess, err := s.GetSession(ctx, "a")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Messages != 3 {
		t.Errorf("message count = %d", sess.Messages)
	}
}

func TestListSessionsPaginates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateSession(ctx, SessionRecord{ID: id}); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	page, err := s.ListSessions(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(page) != 2 || page[0].ID != "c" || page[1].ID != "b" {
		t.Fatalf("first page = %+v", page)
	}
	rest, err := s.ListSessions(ctx, page[1].RowID, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "a" {
		t.Fatalf("second page = %+v", rest)
	}
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.CreateSession(ctx, SessionRecord{ID: "a"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.InsertMessage(ctx, MessageRecord{ID: "m1", SessionID: "a", Role: "user", Seq: 1}); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	ok, err := s.DeleteSession(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("DeleteSession = %v, %v", ok, err)
	}
	msgs, err := s.ListMessages(ctx, "a")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("%d messages survived", len(msgs))
	}
	if ok, _ := s.DeleteSession(ctx, "a"); ok {
		t.Error("second delete reported success")
	}
}
