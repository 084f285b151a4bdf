package database

import (
	"math"
	"testing"
)

func TestRepr(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{int64(8), "8"},
		{0.99, "0.99"},
		{float64(3), "3.0"},
		{1e20, "1e+20"},
		{math.NaN(), "nan"},
		{true, "True"},
		{"Rock", "'Rock'"},
		{"it's", `"it's"`},
		{`a'b"c`, `'a\'b"c'`},
		{"line\nbreak", `'line\nbreak'`},
		{Row{int64(8)}, "(8,)"},
		{Row{int64(1), "Rock", nil}, "(1, 'Rock', None)"},
		{[]Row{{int64(1)}, {int64(2)}}, "[(1,), (2,)]"},
		{[]any{"SQLite error: boom"}, "['SQLite error: boom']"},
		{[]any{}, "[]"},
	}
	for _, c := range cases {
		if got := Repr(c.in); got != c.want {
			t.Fatalf("Repr(%#v): want %s, got %s", c.in, c.want, got)
		}
	}
}
