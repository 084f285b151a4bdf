package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// counter is a dict of counts where missing keys read as 0.
type counter struct {
	counts *starlark.Dict
}

var (
	_ starlark.IterableMapping = (*counter)(nil)
	_ starlark.HasSetKey       = (*counter)(nil)
	_ starlark.HasAttrs        = (*counter)(nil)
)

func newCounter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable?", &src); err != nil {
		return nil, err
	}
	c := &counter{counts: starlark.NewDict(0)}
	if err := c.update(src); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return c, nil
}

func (c *counter) add(k, n starlark.Value) error {
	cur, found, err := c.counts.Get(k)
	if err != nil {
		return err
	}
	if !found {
		return c.counts.SetKey(k, n)
	}
	sum, err := starlark.Binary(syntax.PLUS, cur, n)
	if err != nil {
		return err
	}
	return c.counts.SetKey(k, sum)
}

func (c *counter) update(src starlark.Value) error {
	if src == starlark.None {
		return nil
	}
	if m, ok := src.(starlark.IterableMapping); ok {
		for _, item := range m.Items() {
			if err := c.add(item[0], item[1]); err != nil {
				return err
			}
		}
		return nil
	}
	iterable, ok := src.(starlark.Iterable)
	if !ok {
		return fmt.Errorf("got %s, want iterable", src.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		if err := c.add(x, starlark.MakeInt(1)); err != nil {
			return err
		}
	}
	return nil
}

func (c *counter) String() string        { return "Counter(" + c.counts.String() + ")" }
func (c *counter) Type() string          { return "Counter" }
func (c *counter) Freeze()               { c.counts.Freeze() }
func (c *counter) Truth() starlark.Bool  { return c.counts.Len() > 0 }
func (c *counter) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Counter") }
func (c *counter) Len() int              { return c.counts.Len() }
func (c *counter) Items() []starlark.Tuple {
	return c.counts.Items()
}
func (c *counter) Iterate() starlark.Iterator {
	return c.counts.Iterate()
}

func (c *counter) Get(k starlark.Value) (starlark.Value, bool, error) {
	v, found, err := c.counts.Get(k)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return starlark.MakeInt(0), true, nil
	}
	return v, true, nil
}

func (c *counter) SetKey(k, v starlark.Value) error {
	return c.counts.SetKey(k, v)
}

var counterMethods = map[string]*starlark.Builtin{
	"most_common": starlark.NewBuiltin("most_common", counterMostCommon),
	"update":      starlark.NewBuiltin("update", counterUpdate),
	"total":       starlark.NewBuiltin("total", counterTotal),
}

func (c *counter) Attr(name string) (starlark.Value, error) {
	if m, ok := counterMethods[name]; ok {
		return m.BindReceiver(c), nil
	}
	return c.counts.Attr(name)
}

func (c *counter) AttrNames() []string {
	names := c.counts.AttrNames()
	for name := range counterMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func counterMostCommon(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	c := b.Receiver().(*counter)
	items := c.counts.Items()
	sort.SliceStable(items, func(i, j int) bool {
		x, _ := starlark.AsFloat(items[i][1])
		y, _ := starlark.AsFloat(items[j][1])
		return x > y
	})
	if n != starlark.None {
		limit, err := starlark.AsInt32(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if limit >= 0 && limit < len(items) {
			items = items[:limit]
		}
	}
	out := make([]starlark.Value, len(items))
	for i, item := range items {
		out[i] = item
	}
	return starlark.NewList(out), nil
}

func counterUpdate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable?", &src); err != nil {
		return nil, err
	}
	if err := b.Receiver().(*counter).update(src); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func counterTotal(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	var total starlark.Value = starlark.MakeInt(0)
	for _, item := range b.Receiver().(*counter).counts.Items() {
		sum, err := starlark.Binary(syntax.PLUS, total, item[1])
		if err != nil {
			return nil, err
		}
		total = sum
	}
	return total, nil
}
