package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/chart"
	"github.com/dyike/chat2vis/models"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchiveAt(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("OpenArchiveAt: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func exchange(id, question string, answer *models.Answer) Exchange {
	ex := Exchange{SessionID: id, User: models.Turn{Role: consts.RoleUser, Content: question}}
	if answer != nil {
		turn := answer.Turn(ex.User.CreatedAt)
		ex.Assistant = &turn
	}
	return ex
}

func TestArchiveRecordsExchanges(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	fig := &chart.Figure{Width: 10, Height: 6}
	fig.AddAxes().Series = []*chart.Series{{Kind: chart.KindBar, Data: []chart.Point{{Label: "Rock", Value: 12}}}}

	a.Record(exchange("s1", "How many employees are there?", &models.Answer{Content: "There are 8 employees."}))
	a.Record(exchange("s1", "Plot tracks per genre", &models.Answer{Code: "def visualise(): pass", Chart: fig}))
	a.Flush()

	turns, err := a.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("got %d turns, want 4", len(turns))
	}
	if turns[0].Role != consts.RoleUser || turns[1].Content != "There are 8 employees." {
		t.Errorf("first exchange = %+v", turns[:2])
	}
	last := turns[3]
	if last.Code != "def visualise(): pass" || last.Chart == nil {
		t.Fatalf("chart turn = %+v", last)
	}
	if got := last.Chart.Axes[0].Series[0].Data[0]; got.Label != "Rock" || got.Value != 12 {
		t.Errorf("chart point = %+v", got)
	}

	sessions, err := a.Sessions(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Title != "How many employees are there?" || sessions[0].Turns != 4 {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestArchiveRecordsFailures(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	ex := exchange("s1", "hello", nil)
	ex.Err = errors.New("model unavailable")
	a.Record(ex)
	a.Flush()

	sessions, err := a.Sessions(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != "error" || sessions[0].Turns != 1 {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestArchiveConcurrentRecords(t *testing.T) {
	a := openTestArchive(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Record(exchange("s1", "q", &models.Answer{Content: "a"}))
		}()
	}
	wg.Wait()
	a.Flush()

	turns, err := a.Messages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(turns) != 40 {
		t.Errorf("got %d turns, want 40", len(turns))
	}
}

func TestArchiveDelete(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	a.Record(exchange("s1", "q", &models.Answer{Content: "a"}))

	ok, err := a.Delete(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := a.Messages(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Messages after delete: %v", err)
	}
}

func TestNilArchiveIsDisabled(t *testing.T) {
	var a *Archive
	a.Record(exchange("s1", "q", nil))
	a.Flush()
	if _, err := a.Sessions(context.Background(), 0, 10); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("Sessions: %v", err)
	}
	if _, err := a.Messages(context.Background(), "s1"); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("Messages: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenArchiveFollowsConfig(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir()}
	a, err := OpenArchive(cfg)
	if err != nil || a != nil {
		t.Fatalf("disabled archive = %v, %v", a, err)
	}

	cfg.ArchiveEnabled = true
	a, err = OpenArchive(cfg)
	if err != nil || a == nil {
		t.Fatalf("enabled archive = %v, %v", a, err)
	}
	_ = a.Close()
}

func TestRecordAfterCloseIsIgnored(t *testing.T) {
	a, err := OpenArchiveAt(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("OpenArchiveAt: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	a.recorder.Record(exchange("s1", "q", nil))
	a.recorder.Flush()
}

func TestTitle(t *testing.T) {
	if got := title("  plot\n tracks  "); got != "plot tracks" {
		t.Errorf("title = %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := []rune(title(long)); len(got) != titleLimit {
		t.Errorf("long title has %d runes", len(got))
	}
}
