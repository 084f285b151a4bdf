// Package dbtest builds small Chinook-shaped sqlite fixtures for tests.
package dbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Track counts per genre in the fixture.
var GenreTracks = map[string]int{
	"Rock":  12,
	"Jazz":  8,
	"Metal": 5,
}

const EmployeeCount = 8

// NewChinook writes the fixture into a temp dir and returns its path.
func NewChinook(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chinook.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE Employee (EmployeeId INTEGER PRIMARY KEY, LastName TEXT NOT NULL, FirstName TEXT NOT NULL, Title TEXT)`,
		`CREATE TABLE Genre (GenreId INTEGER PRIMARY KEY, Name TEXT)`,
		`CREATE TABLE Track (TrackId INTEGER PRIMARY KEY, Name TEXT NOT NULL, GenreId INTEGER REFERENCES Genre(GenreId), Milliseconds INTEGER, UnitPrice NUMERIC(10,2))`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("create fixture schema: %v", err)
		}
	}

	titles := []string{"General Manager", "Sales Manager", "Sales Support Agent", "Sales Support Agent",
		"Sales Support Agent", "IT Manager", "IT Staff", "IT Staff"}
	for i := 0; i < EmployeeCount; i++ {
		if _, err := db.Exec(`INSERT INTO Employee (EmployeeId, LastName, FirstName, Title) VALUES (?, ?, ?, ?)`,
			i+1, fmt.Sprintf("Last%d", i+1), fmt.Sprintf("First%d", i+1), titles[i]); err != nil {
			t.Fatalf("insert employee: %v", err)
		}
	}

	trackID := 1
	for genreID, name := range []string{"Rock", "Jazz", "Metal"} {
		if _, err := db.Exec(`INSERT INTO Genre (GenreId, Name) VALUES (?, ?)`, genreID+1, name); err != nil {
			t.Fatalf("insert genre: %v", err)
		}
		for j := 0; j < GenreTracks[name]; j++ {
			if _, err := db.Exec(`INSERT INTO Track (TrackId, Name, GenreId, Milliseconds, UnitPrice) VALUES (?, ?, ?, ?, ?)`,
				trackID, fmt.Sprintf("%s Song %d", name, j+1), genreID+1, 200000+j*1000, 0.99); err != nil {
				t.Fatalf("insert track: %v", err)
			}
			trackID++
		}
	}
	return path
}
