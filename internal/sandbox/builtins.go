package sandbox

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/dyike/chat2vis/internal/database"
)

const contextKey = "context"

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func (r *Runner) predeclared(plots *plotState) starlark.StringDict {
	return starlark.StringDict{
		"query_sqlite_db": starlark.NewBuiltin("query_sqlite_db", r.queryBuiltin),
		"plt":             plots.module(),
		"datetime":        datetimeType{},
		"Counter":         starlark.NewBuiltin("Counter", newCounter),
		"time":            startime.Module,
		"sum":             starlark.NewBuiltin("sum", sumBuiltin),
		"round":           starlark.NewBuiltin("round", roundBuiltin),
	}
}

// queryBuiltin returns every row as a list of tuples. A failed query is
// logged and yields an empty list.
func (r *Runner) queryBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var query string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "query", &query); err != nil {
		return nil, err
	}
	if r.db == nil {
		return nil, fmt.Errorf("%s: no database configured", b.Name())
	}
	res := r.db.QueryAll(threadContext(thread), query)
	if res.Failed {
		log.Printf("[Sandbox] %s", res.Notice)
		return starlark.NewList(nil), nil
	}
	rows := make([]starlark.Value, 0, len(res.Rows))
	for _, row := range res.Rows {
		rows = append(rows, rowValue(row))
	}
	return starlark.NewList(rows), nil
}

func rowValue(row database.Row) starlark.Tuple {
	t := make(starlark.Tuple, len(row))
	for i, v := range row {
		t[i] = toStarlark(v)
	}
	return t
}

func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(x)
	case int:
		return starlark.MakeInt(x)
	case int32:
		return starlark.MakeInt64(int64(x))
	case uint64:
		return starlark.MakeUint64(x)
	case float64:
		return starlark.Float(x)
	case float32:
		return starlark.Float(float64(x))
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	case []byte:
		return starlark.String(string(x))
	case time.Time:
		return dateValue{t: x}
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

func sumBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()

	total := start
	var x starlark.Value
	for iter.Next(&x) {
		next, err := starlark.Binary(syntax.PLUS, total, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		total = next
	}
	return total, nil
}

func roundBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
	}
	if ndigits == starlark.None {
		return starlark.MakeInt64(int64(math.RoundToEven(f))), nil
	}
	n, err := starlark.AsInt32(ndigits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	pow := math.Pow(10, float64(n))
	return starlark.Float(math.RoundToEven(f*pow) / pow), nil
}
