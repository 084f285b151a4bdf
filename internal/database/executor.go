package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/dyike/chat2vis/config"
)

// Row is one result tuple. Column values keep the driver's types, except
// []byte which becomes string.
type Row []any

// Result is what a query hands back to the model or to sandboxed code.
// When Notice is set Rows is nil: the notice replaces the result wholesale.
type Result struct {
	Rows      []Row
	Notice    string
	Truncated bool
	Failed    bool
}

// Values is the sequence form of the result: the rows, or a single string.
func (r Result) Values() []any {
	if r.Notice != "" {
		return []any{r.Notice}
	}
	out := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row
	}
	return out
}

func (r Result) String() string {
	return Repr(r.Values())
}

type Querier interface {
	Query(ctx context.Context, query string) Result
	QueryAll(ctx context.Context, query string) Result
}

// Executor runs read-only statements. Every call opens its own connection
// and closes it before returning; nothing is pooled between calls.
type Executor struct {
	driver  string
	dsn     string
	maxRows int
	debug   bool
}

type ExecutorOption func(*Executor)

func WithMaxRows(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

func WithDebug(debug bool) ExecutorOption {
	return func(e *Executor) {
		e.debug = debug
	}
}

// NewExecutor builds an executor for a registered driver. For the sqlite
// drivers source is a file path, which is opened read-only; for the others it
// is a DSN passed through unchanged.
func NewExecutor(driver, source string, opts ...ExecutorOption) (*Executor, error) {
	dsn, err := readOnlyDSN(driver, source)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		driver:  driver,
		dsn:     dsn,
		maxRows: 10,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func NewExecutorFromConfig(cfg *config.Config) (*Executor, error) {
	source := cfg.DBDSN
	if isSQLite(cfg.DBDriver) {
		source = cfg.DBPath
	}
	return NewExecutor(cfg.DBDriver, source, WithMaxRows(cfg.MaxRows), WithDebug(cfg.Debug))
}

func (e *Executor) Driver() string {
	return e.driver
}

func (e *Executor) MaxRows() int {
	return e.maxRows
}

// Query never returns an error: failures come back as a single error string.
func (e *Executor) Query(ctx context.Context, query string) Result {
	if e.debug {
		log.Printf("[Executor] %s: %s", e.driver, query)
	}
	rows, err := e.fetch(ctx, query, e.maxRows+1)
	if err != nil {
		return e.failed(err)
	}
	if len(rows) > e.maxRows {
		return Result{
			Notice:    fmt.Sprintf("First %d elements: %s", e.maxRows, Repr(rows[:e.maxRows])),
			Truncated: true,
		}
	}
	return Result{Rows: rows}
}

// QueryAll is Query without truncation. Sandboxed chart code uses it so a
// chart can cover the whole result.
func (e *Executor) QueryAll(ctx context.Context, query string) Result {
	if e.debug {
		log.Printf("[Executor] %s (all rows): %s", e.driver, query)
	}
	rows, err := e.fetch(ctx, query, 0)
	if err != nil {
		return e.failed(err)
	}
	return Result{Rows: rows}
}

func (e *Executor) failed(err error) Result {
	log.Printf("[Executor] query failed: %v", err)
	return Result{
		Notice: fmt.Sprintf("%s error: %v", errorPrefix(e.driver), err),
		Failed: true,
	}
}

// fetch reads at most limit rows; limit <= 0 reads everything.
func (e *Executor) fetch(ctx context.Context, query string, limit int) ([]Row, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	db, err := sql.Open(e.driver, e.dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rs, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	var rows []Row
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rows = append(rows, Row(values))
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
