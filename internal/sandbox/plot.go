package sandbox

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/dyike/chat2vis/internal/chart"
)

// plotState is the pyplot-style "current figure" bookkeeping for one run.
type plotState struct {
	figures []*figureValue
	current *figureValue
}

func (p *plotState) newFigure() *figureValue {
	f := &figureValue{fig: chart.NewFigure(), state: p}
	p.figures = append(p.figures, f)
	p.current = f
	return f
}

func (p *plotState) gcf() *figureValue {
	if p.current == nil {
		return p.newFigure()
	}
	return p.current
}

func (p *plotState) gca() *axesValue {
	f := p.gcf()
	return f.axesValue(f.fig.CurrentAxes())
}

var errEmptyFigure = errors.New("visualise returned a figure without data")

// figureOf resolves what visualise returned into a figure with data.
func (p *plotState) figureOf(v starlark.Value) (*chart.Figure, error) {
	var fig *chart.Figure
	switch x := v.(type) {
	case *figureValue:
		fig = x.fig
	case *axesValue:
		fig = x.parent.fig
	case starlark.NoneType:
		return nil, fmt.Errorf("%s returned None", entrypoint)
	default:
		return nil, fmt.Errorf("%s returned %s, want a figure", entrypoint, v.Type())
	}
	if fig.PointCount() == 0 {
		return nil, errEmptyFigure
	}
	return fig, nil
}

func (p *plotState) module() *starlarkstruct.Module {
	members := starlark.StringDict{
		"subplots": starlark.NewBuiltin("subplots", p.subplots),
		"figure":   starlark.NewBuiltin("figure", p.figure),
		"gcf": starlark.NewBuiltin("gcf", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return p.gcf(), nil
		}),
		"gca": starlark.NewBuiltin("gca", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return p.gca(), nil
		}),
		"suptitle": starlark.NewBuiltin("suptitle", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return figureSuptitle(p.gcf(), b, args, kwargs)
		}),
		"xticks": starlark.NewBuiltin("xticks", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return setTickLabels(p.gca(), b, args, kwargs, 1)
		}),
		"style": &starlarkstruct.Module{
			Name:    "style",
			Members: starlark.StringDict{"use": starlark.NewBuiltin("use", noop)},
		},
	}
	// pyplot functions that act on the current axes
	aliases := map[string]string{
		"bar": "bar", "barh": "barh", "plot": "plot", "scatter": "scatter", "pie": "pie", "hist": "hist",
		"title": "set_title", "xlabel": "set_xlabel", "ylabel": "set_ylabel", "legend": "legend", "grid": "grid",
	}
	for name, op := range aliases {
		fn := axesOps[op]
		members[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return fn(thread, p.gca(), b, args, kwargs)
		})
	}
	for _, name := range []string{"show", "tight_layout", "close", "savefig", "yticks", "xlim", "ylim", "axis", "rc", "clf", "subplots_adjust", "text", "annotate"} {
		members[name] = starlark.NewBuiltin(name, noop)
	}
	return &starlarkstruct.Module{Name: "plt", Members: members}
}

func noop(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, nil
}

func (p *plotState) figure(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	f := p.newFigure()
	if err := applyFigsize(f.fig, kwargs); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return f, nil
}

func (p *plotState) subplots(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	nrows, ncols := 1, 1
	if len(args) > 0 {
		n, err := starlark.AsInt32(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: nrows: %w", b.Name(), err)
		}
		nrows = n
	}
	if len(args) > 1 {
		n, err := starlark.AsInt32(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: ncols: %w", b.Name(), err)
		}
		ncols = n
	}
	kw := kwargsMap(kwargs)
	if v, ok := kw["nrows"]; ok {
		n, err := starlark.AsInt32(v)
		if err != nil {
			return nil, fmt.Errorf("%s: nrows: %w", b.Name(), err)
		}
		nrows = n
	}
	if v, ok := kw["ncols"]; ok {
		n, err := starlark.AsInt32(v)
		if err != nil {
			return nil, fmt.Errorf("%s: ncols: %w", b.Name(), err)
		}
		ncols = n
	}
	if nrows < 1 || ncols < 1 || nrows*ncols > 16 {
		return nil, fmt.Errorf("%s: invalid grid %dx%d", b.Name(), nrows, ncols)
	}

	f := p.newFigure()
	if err := applyFigsize(f.fig, kwargs); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if nrows == 1 && ncols == 1 {
		return starlark.Tuple{f, f.axesValue(f.fig.AddAxes())}, nil
	}
	rows := make([]starlark.Value, 0, nrows)
	for i := 0; i < nrows; i++ {
		row := make([]starlark.Value, 0, ncols)
		for j := 0; j < ncols; j++ {
			row = append(row, f.axesValue(f.fig.AddAxes()))
		}
		rows = append(rows, starlark.NewList(row))
	}
	if nrows == 1 || ncols == 1 {
		// a single row or column comes back flat
		flat := make([]starlark.Value, 0, nrows*ncols)
		for _, ax := range f.axes {
			flat = append(flat, ax)
		}
		return starlark.Tuple{f, starlark.NewList(flat)}, nil
	}
	return starlark.Tuple{f, starlark.NewList(rows)}, nil
}

func applyFigsize(fig *chart.Figure, kwargs []starlark.Tuple) error {
	v, ok := kwargsMap(kwargs)["figsize"]
	if !ok || v == starlark.None {
		return nil
	}
	seq, err := sequence(v)
	if err != nil || len(seq) != 2 {
		return fmt.Errorf("figsize must be a (width, height) pair")
	}
	w, ok1 := starlark.AsFloat(seq[0])
	h, ok2 := starlark.AsFloat(seq[1])
	if !ok1 || !ok2 {
		return fmt.Errorf("figsize must be numeric")
	}
	fig.Width, fig.Height = w, h
	return nil
}

type figureValue struct {
	fig   *chart.Figure
	state *plotState
	axes  []*axesValue
}

func (f *figureValue) axesValue(ax *chart.Axes) *axesValue {
	for _, v := range f.axes {
		if v.ax == ax {
			return v
		}
	}
	v := &axesValue{ax: ax, parent: f}
	f.axes = append(f.axes, v)
	return v
}

func (f *figureValue) String() string        { return fmt.Sprintf("<Figure with %d Axes>", len(f.fig.Axes)) }
func (f *figureValue) Type() string          { return "Figure" }
func (f *figureValue) Freeze()               {}
func (f *figureValue) Truth() starlark.Bool  { return true }
func (f *figureValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Figure") }

var figureMethods = map[string]func(*figureValue, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error){
	"add_subplot": func(f *figureValue, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		f.state.current = f
		return f.axesValue(f.fig.AddAxes()), nil
	},
	"gca": func(f *figureValue, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return f.axesValue(f.fig.CurrentAxes()), nil
	},
	"suptitle": figureSuptitle,
	"set_size_inches": func(f *figureValue, b *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		if len(args) == 2 {
			w, _ := starlark.AsFloat(args[0])
			h, _ := starlark.AsFloat(args[1])
			f.fig.Width, f.fig.Height = w, h
		}
		return starlark.None, nil
	},
}

var figureNoops = map[string]bool{
	"tight_layout": true, "savefig": true, "autofmt_xdate": true, "subplots_adjust": true, "show": true, "legend": true,
}

func figureSuptitle(f *figureValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var title string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, nil, 1, &title); err != nil {
		return nil, err
	}
	f.fig.Title = title
	return starlark.None, nil
}

func (f *figureValue) Attr(name string) (starlark.Value, error) {
	if name == "axes" {
		list := make([]starlark.Value, len(f.axes))
		for i, ax := range f.axes {
			list[i] = ax
		}
		return starlark.NewList(list), nil
	}
	if m, ok := figureMethods[name]; ok {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return m(f, b, args, kwargs)
		}), nil
	}
	if figureNoops[name] {
		return starlark.NewBuiltin(name, noop), nil
	}
	return nil, nil
}

func (f *figureValue) AttrNames() []string {
	names := []string{"axes"}
	for name := range figureMethods {
		names = append(names, name)
	}
	for name := range figureNoops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type axesValue struct {
	ax     *chart.Axes
	parent *figureValue
}

func (a *axesValue) String() string        { return "<Axes>" }
func (a *axesValue) Type() string          { return "Axes" }
func (a *axesValue) Freeze()               {}
func (a *axesValue) Truth() starlark.Bool  { return true }
func (a *axesValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Axes") }

type axesOp func(thread *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var axesOps map[string]axesOp

func init() {
	axesOps = map[string]axesOp{
		"bar":             categorical(chart.KindBar),
		"barh":            categorical(chart.KindBarH),
		"plot":            xySeries(chart.KindLine),
		"scatter":         xySeries(chart.KindScatter),
		"pie":             pie,
		"hist":            hist,
		"set_title":       setText(func(ax *chart.Axes, s string) { ax.Title = s }),
		"set_xlabel":      setText(func(ax *chart.Axes, s string) { ax.XLabel = s }),
		"set_ylabel":      setText(func(ax *chart.Axes, s string) { ax.YLabel = s }),
		"legend":          legend,
		"grid":            grid,
		"set_xticklabels": setXTickLabels,
	}
}

var axesNoops = map[string]bool{
	"tick_params": true, "set_xlim": true, "set_ylim": true, "axis": true, "invert_yaxis": true,
	"margins": true, "set_xticks": true, "set_yticks": true, "set_yticklabels": true, "annotate": true,
	"text": true, "axhline": true, "axvline": true, "bar_label": true, "set_axisbelow": true,
}

func (a *axesValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "figure":
		return a.parent, nil
	case "get_figure":
		return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return a.parent, nil
		}), nil
	}
	if op, ok := axesOps[name]; ok {
		return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return op(thread, a, b, args, kwargs)
		}), nil
	}
	if axesNoops[name] {
		return starlark.NewBuiltin(name, noop), nil
	}
	return nil, nil
}

func (a *axesValue) AttrNames() []string {
	names := []string{"figure", "get_figure"}
	for name := range axesOps {
		names = append(names, name)
	}
	for name := range axesNoops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// categorical handles bar(x, height) and barh(y, width).
func categorical(kind string) axesOp {
	return func(_ *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("%s: want categories and values", b.Name())
		}
		labels, err := labelsOf(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		values, err := floatsOf(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return addSeries(a, b, kind, labels, values, kwargs)
	}
}

// xySeries handles plot(y), plot(x, y[, fmt]) and scatter(x, y).
func xySeries(kind string) axesOp {
	return func(_ *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var xs, ys starlark.Value
		switch {
		case len(args) == 1:
			ys = args[0]
		case len(args) >= 2:
			if _, isFmt := args[1].(starlark.String); isFmt {
				ys = args[0]
			} else {
				xs, ys = args[0], args[1]
			}
		default:
			return nil, fmt.Errorf("%s: want values", b.Name())
		}
		values, err := floatsOf(ys)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		var labels []string
		if xs == nil {
			labels = make([]string, len(values))
			for i := range values {
				labels[i] = strconv.Itoa(i)
			}
		} else if labels, err = labelsOf(xs); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return addSeries(a, b, kind, labels, values, kwargs)
	}
}

func pie(_ *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s: want values", b.Name())
	}
	values, err := floatsOf(args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	labels := make([]string, len(values))
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	if v, ok := kwargsMap(kwargs)["labels"]; ok && v != starlark.None {
		if labels, err = labelsOf(v); err != nil {
			return nil, fmt.Errorf("%s: labels: %w", b.Name(), err)
		}
	}
	return addSeries(a, b, chart.KindPie, labels, values, kwargs)
}

// hist buckets values into equal-width bins (default 10).
func hist(_ *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s: want values", b.Name())
	}
	values, err := floatsOf(args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	bins := 10
	if v, ok := kwargsMap(kwargs)["bins"]; ok {
		if bins, err = starlark.AsInt32(v); err != nil || bins < 1 {
			return nil, fmt.Errorf("%s: bins must be a positive int", b.Name())
		}
	} else if len(args) > 1 {
		if bins, err = starlark.AsInt32(args[1]); err != nil || bins < 1 {
			return nil, fmt.Errorf("%s: bins must be a positive int", b.Name())
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: no values", b.Name())
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	width := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, v := range values {
		i := bins - 1
		if width > 0 {
			i = int((v - lo) / width)
			if i >= bins {
				i = bins - 1
			}
		}
		counts[i]++
	}
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = strconv.FormatFloat(lo+float64(i)*width, 'g', 4, 64)
	}
	return addSeries(a, b, chart.KindHist, labels, counts, kwargs)
}

func addSeries(a *axesValue, b *starlark.Builtin, kind string, labels []string, values []float64, kwargs []starlark.Tuple) (starlark.Value, error) {
	kw := kwargsMap(kwargs)
	name := ""
	if v, ok := kw["label"].(starlark.String); ok {
		name = string(v)
	}
	s, err := a.ax.AddSeries(kind, name, labels, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if c, ok := kw["color"].(starlark.String); ok {
		s.Color = string(c)
	}
	return starlark.None, nil
}

func setText(set func(*chart.Axes, string)) axesOp {
	return func(_ *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, nil, 1, &text); err != nil {
			return nil, err
		}
		set(a.ax, text)
		return starlark.None, nil
	}
}

func legend(_ *starlark.Thread, a *axesValue, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	a.ax.ShowLegend = true
	return starlark.None, nil
}

func setXTickLabels(_ *starlark.Thread, a *axesValue, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return setTickLabels(a, b, args, kwargs, 0)
}

func grid(_ *starlark.Thread, a *axesValue, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	show := true
	if len(args) > 0 {
		show = bool(args[0].Truth())
	}
	a.ax.ShowGrid = show
	return starlark.None, nil
}

// setTickLabels reads labels from args[pos] or the labels kwarg.
func setTickLabels(a *axesValue, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, pos int) (starlark.Value, error) {
	var src starlark.Value
	if len(args) > pos {
		src = args[pos]
	} else if v, ok := kwargsMap(kwargs)["labels"]; ok {
		src = v
	}
	if src == nil || src == starlark.None {
		return starlark.None, nil
	}
	labels, err := labelsOf(src)
	if err != nil {
		return nil, err
	}
	a.ax.XTicks = labels
	return starlark.None, nil
}

func kwargsMap(kwargs []starlark.Tuple) map[string]starlark.Value {
	m := make(map[string]starlark.Value, len(kwargs))
	for _, kv := range kwargs {
		if k, ok := kv[0].(starlark.String); ok {
			m[string(k)] = kv[1]
		}
	}
	return m
}

func sequence(v starlark.Value) ([]starlark.Value, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want a sequence", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		out = append(out, x)
	}
	return out, nil
}

func labelsOf(v starlark.Value) ([]string, error) {
	seq, err := sequence(v)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(seq))
	for i, x := range seq {
		if s, ok := starlark.AsString(x); ok {
			labels[i] = s
		} else {
			labels[i] = x.String()
		}
	}
	return labels, nil
}

func floatsOf(v starlark.Value) ([]float64, error) {
	seq, err := sequence(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(seq))
	for i, x := range seq {
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("value %s at %d is not a number", x.String(), i)
		}
		out[i] = f
	}
	return out, nil
}
