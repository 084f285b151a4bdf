package sandbox

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// datetimeType is the callable `datetime` name: datetime(y, m, d, ...)
// builds a value, and now/today/strptime/fromisoformat hang off it.
type datetimeType struct{}

var (
	_ starlark.Callable = datetimeType{}
	_ starlark.HasAttrs = datetimeType{}
)

func (datetimeType) String() string        { return "<class 'datetime'>" }
func (datetimeType) Type() string          { return "type" }
func (datetimeType) Freeze()               {}
func (datetimeType) Truth() starlark.Bool  { return true }
func (datetimeType) Hash() (uint32, error) { return 0x5eed, nil }
func (datetimeType) Name() string          { return "datetime" }

func (datetimeType) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var year, month, day, hour, minute, second int
	if err := starlark.UnpackArgs("datetime", args, kwargs,
		"year", &year, "month", &month, "day", &day,
		"hour?", &hour, "minute?", &minute, "second?", &second); err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("datetime: month must be in 1..12")
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day {
		return nil, fmt.Errorf("datetime: day is out of range for month")
	}
	return dateValue{t: t}, nil
}

var datetimeFuncs = map[string]*starlark.Builtin{
	"now":           starlark.NewBuiltin("now", datetimeNow),
	"today":         starlark.NewBuiltin("today", datetimeNow),
	"strptime":      starlark.NewBuiltin("strptime", datetimeStrptime),
	"fromisoformat": starlark.NewBuiltin("fromisoformat", datetimeFromISO),
}

func (datetimeType) Attr(name string) (starlark.Value, error) {
	if fn, ok := datetimeFuncs[name]; ok {
		return fn, nil
	}
	return nil, nil
}

func (datetimeType) AttrNames() []string {
	names := make([]string, 0, len(datetimeFuncs))
	for name := range datetimeFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func datetimeNow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return dateValue{t: time.Now()}, nil
}

func datetimeStrptime(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value, format string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "date_string", &value, "format", &format); err != nil {
		return nil, err
	}
	t, err := time.Parse(goLayout(format), value)
	if err != nil {
		return nil, fmt.Errorf("%s: time data %q does not match format %q", b.Name(), value, format)
	}
	return dateValue{t: t}, nil
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func datetimeFromISO(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "date_string", &value); err != nil {
		return nil, err
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return dateValue{t: t}, nil
		}
	}
	return nil, fmt.Errorf("%s: invalid isoformat string %q", b.Name(), value)
}

// dateValue is an immutable point in time.
type dateValue struct {
	t time.Time
}

var (
	_ starlark.HasAttrs   = dateValue{}
	_ starlark.Comparable = dateValue{}
)

func (d dateValue) String() string        { return d.t.Format("2006-01-02 15:04:05") }
func (d dateValue) Type() string          { return "datetime" }
func (d dateValue) Freeze()               {}
func (d dateValue) Truth() starlark.Bool  { return true }
func (d dateValue) Hash() (uint32, error) { return uint32(d.t.UnixNano() ^ (d.t.UnixNano() >> 32)), nil }

func (d dateValue) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(dateValue)
	cmp := d.t.Compare(other.t)
	switch op {
	case syntax.EQL:
		return cmp == 0, nil
	case syntax.NEQ:
		return cmp != 0, nil
	case syntax.LT:
		return cmp < 0, nil
	case syntax.LE:
		return cmp <= 0, nil
	case syntax.GT:
		return cmp > 0, nil
	case syntax.GE:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported comparison %s", op)
}

var dateMethods = map[string]*starlark.Builtin{
	"strftime":  starlark.NewBuiltin("strftime", dateStrftime),
	"isoformat": starlark.NewBuiltin("isoformat", dateISOFormat),
	"weekday":   starlark.NewBuiltin("weekday", dateWeekday),
	"date":      starlark.NewBuiltin("date", dateDate),
	"timestamp": starlark.NewBuiltin("timestamp", dateTimestamp),
}

func (d dateValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "year":
		return starlark.MakeInt(d.t.Year()), nil
	case "month":
		return starlark.MakeInt(int(d.t.Month())), nil
	case "day":
		return starlark.MakeInt(d.t.Day()), nil
	case "hour":
		return starlark.MakeInt(d.t.Hour()), nil
	case "minute":
		return starlark.MakeInt(d.t.Minute()), nil
	case "second":
		return starlark.MakeInt(d.t.Second()), nil
	}
	if m, ok := dateMethods[name]; ok {
		return m.BindReceiver(d), nil
	}
	return nil, nil
}

func (d dateValue) AttrNames() []string {
	names := []string{"year", "month", "day", "hour", "minute", "second"}
	for name := range dateMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dateStrftime(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var format string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "format", &format); err != nil {
		return nil, err
	}
	return starlark.String(b.Receiver().(dateValue).t.Format(goLayout(format))), nil
}

func dateISOFormat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.String(b.Receiver().(dateValue).t.Format("2006-01-02T15:04:05")), nil
}

func dateWeekday(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	// Monday is 0
	return starlark.MakeInt((int(b.Receiver().(dateValue).t.Weekday()) + 6) % 7), nil
}

func dateDate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	t := b.Receiver().(dateValue).t
	return dateValue{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())}, nil
}

func dateTimestamp(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	t := b.Receiver().(dateValue).t
	return starlark.Float(float64(t.UnixNano()) / 1e9), nil
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'f': "000000",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'Z': "MST",
	'z': "-0700",
	'%': "%",
}

// goLayout converts a strftime format into a Go time layout.
func goLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			b.WriteByte(c)
			continue
		}
		i++
		if layout, ok := strftimeDirectives[format[i]]; ok {
			b.WriteString(layout)
		} else {
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}
