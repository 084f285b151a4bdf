package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dyike/chat2vis/internal/database/dbtest"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	exec, err := NewExecutor("sqlite", dbtest.NewChinook(t))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func TestQuerySmallResultVerbatim(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Query(context.Background(), "SELECT COUNT(*) FROM Employee")
	if res.Notice != "" {
		t.Fatalf("unexpected notice: %s", res.Notice)
	}
	if len(res.Rows) != 1 || len(res.Rows[0]) != 1 {
		t.Fatalf("expected a single cell, got %v", res.Rows)
	}
	if n, ok := res.Rows[0][0].(int64); !ok || n != dbtest.EmployeeCount {
		t.Fatalf("expected int64 8, got %#v", res.Rows[0][0])
	}
	if res.String() != "[(8,)]" {
		t.Fatalf("expected [(8,)], got %s", res.String())
	}
}

func TestQueryExactlyLimitRows(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Query(context.Background(), "SELECT TrackId, Name FROM Track ORDER BY TrackId LIMIT 10")
	if res.Truncated || len(res.Rows) != 10 {
		t.Fatalf("expected 10 rows verbatim, got %d (truncated=%v)", len(res.Rows), res.Truncated)
	}
	if name, _ := res.Rows[0][1].(string); name != "Rock Song 1" {
		t.Fatalf("expected text column as string, got %#v", res.Rows[0][1])
	}
}

func TestQueryTruncatesLargeResult(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Query(context.Background(), "SELECT TrackId FROM Track ORDER BY TrackId")
	if !res.Truncated || res.Rows != nil {
		t.Fatalf("expected truncated result without rows, got %+v", res)
	}
	vals := res.Values()
	if len(vals) != 1 {
		t.Fatalf("expected single-element sequence, got %d", len(vals))
	}
	notice, ok := vals[0].(string)
	if !ok {
		t.Fatalf("expected notice string, got %#v", vals[0])
	}
	var parts []string
	for i := 1; i <= 10; i++ {
		parts = append(parts, fmt.Sprintf("(%d,)", i))
	}
	want := "First 10 elements: [" + strings.Join(parts, ", ") + "]"
	if notice != want {
		t.Fatalf("notice mismatch:\nwant %s\ngot  %s", want, notice)
	}
	if strings.Contains(notice, "(11,)") {
		t.Fatalf("notice leaked row 11")
	}
}

func TestQueryMaxRowsOption(t *testing.T) {
	exec, err := NewExecutor("sqlite", dbtest.NewChinook(t), WithMaxRows(3))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	res := exec.Query(context.Background(), "SELECT Name FROM Genre ORDER BY GenreId")
	if len(res.Rows) != 3 {
		t.Fatalf("3 rows should pass with max 3, got %+v", res)
	}
	res = exec.Query(context.Background(), "SELECT GenreId FROM Track")
	if !strings.HasPrefix(res.Notice, "First 3 elements: ") {
		t.Fatalf("expected truncation at 3, got %q", res.Notice)
	}
}

func TestQueryErrorsBecomeData(t *testing.T) {
	exec := newTestExecutor(t)

	for _, q := range []string{"SELEC nonsense", "SELECT * FROM NoSuchTable", ""} {
		res := exec.Query(context.Background(), q)
		if !res.Failed {
			t.Fatalf("%q: expected failure", q)
		}
		vals := res.Values()
		if len(vals) != 1 {
			t.Fatalf("%q: expected single error element, got %v", q, vals)
		}
		if s, _ := vals[0].(string); !strings.HasPrefix(s, "SQLite error: ") {
			t.Fatalf("%q: unexpected error text %q", q, s)
		}
	}
}

func TestQueryIsReadOnly(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Query(context.Background(), "DELETE FROM Employee")
	if !res.Failed {
		t.Fatalf("expected write to fail, got %+v", res)
	}
	res = exec.Query(context.Background(), "SELECT COUNT(*) FROM Employee")
	if res.String() != "[(8,)]" {
		t.Fatalf("write went through: %s", res.String())
	}
}

func TestReadOnlyDSN(t *testing.T) {
	cases := []struct {
		driver, source, want string
	}{
		{"sqlite", "/data/chinook.db", "file:/data/chinook.db?mode=ro"},
		{"sqlite3", "file:/data/chinook.db", "file:/data/chinook.db?mode=ro"},
		{"sqlite3", "file:/data/chinook.db?cache=shared", "file:/data/chinook.db?cache=shared&mode=ro"},
		{"sqlite", "file:x.db?mode=rw", "file:x.db?mode=rw"},
		{"mysql", "user:pw@tcp(localhost:3306)/chinook", "user:pw@tcp(localhost:3306)/chinook"},
	}
	for _, c := range cases {
		got, err := readOnlyDSN(c.driver, c.source)
		if err != nil {
			t.Fatalf("%s %s: %v", c.driver, c.source, err)
		}
		if got != c.want {
			t.Fatalf("%s %s: want %s, got %s", c.driver, c.source, c.want, got)
		}
	}
	if _, err := readOnlyDSN("oracle", "x"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := readOnlyDSN("sqlite", " "); err == nil {
		t.Fatalf("expected empty source error")
	}
}

func TestQueryAllSkipsTruncation(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.QueryAll(context.Background(), "SELECT TrackId FROM Track")
	if res.Truncated || res.Notice != "" {
		t.Fatalf("QueryAll must not truncate: %+v", res)
	}
	total := 0
	for _, n := range dbtest.GenreTracks {
		total += n
	}
	if len(res.Rows) != total {
		t.Fatalf("expected %d rows, got %d", total, len(res.Rows))
	}

	res = exec.QueryAll(context.Background(), "SELECT nope")
	if !res.Failed {
		t.Fatalf("expected failure, got %+v", res)
	}
}
