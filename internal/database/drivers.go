package database

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

func isSQLite(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}

func errorPrefix(driver string) string {
	switch driver {
	case "mysql":
		return "MySQL"
	case "postgres":
		return "PostgreSQL"
	default:
		return "SQLite"
	}
}

// readOnlyDSN turns a sqlite file path into a URI opened with mode=ro.
func readOnlyDSN(driver, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%s: database source is required", driver)
	}
	switch driver {
	case "sqlite", "sqlite3":
	case "mysql", "postgres":
		return source, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}

	if strings.HasPrefix(source, "file:") {
		if strings.Contains(source, "mode=") {
			return source, nil
		}
		sep := "?"
		if strings.Contains(source, "?") {
			sep = "&"
		}
		return source + sep + "mode=ro", nil
	}
	return "file:" + source + "?mode=ro", nil
}
