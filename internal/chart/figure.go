// Package chart holds the figure model produced by sandboxed visualisation
// code. A Figure is plain data: it serialises to JSON for API clients and can
// be previewed in a terminal.
package chart

import (
	"fmt"
	"math"
)

// Series kinds.
const (
	KindBar     = "bar"
	KindBarH    = "barh"
	KindLine    = "line"
	KindScatter = "scatter"
	KindPie     = "pie"
	KindHist    = "hist"
)

var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Series struct {
	Kind  string  `json:"kind"`
	Name  string  `json:"name,omitempty"`
	Color string  `json:"color,omitempty"`
	Data  []Point `json:"data"`
}

type Axes struct {
	Title      string    `json:"title,omitempty"`
	XLabel     string    `json:"x_label,omitempty"`
	YLabel     string    `json:"y_label,omitempty"`
	XTicks     []string  `json:"x_ticks,omitempty"`
	Series     []*Series `json:"series"`
	ShowLegend bool      `json:"show_legend,omitempty"`
	ShowGrid   bool      `json:"show_grid,omitempty"`
}

type Figure struct {
	Title  string  `json:"title,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Axes   []*Axes `json:"axes"`
}

func NewFigure() *Figure {
	return &Figure{}
}

// AddAxes appends a fresh axes to the figure and returns it.
func (f *Figure) AddAxes() *Axes {
	ax := &Axes{}
	f.Axes = append(f.Axes, ax)
	return ax
}

// CurrentAxes returns the last axes, creating one if the figure is empty.
func (f *Figure) CurrentAxes() *Axes {
	if len(f.Axes) == 0 {
		return f.AddAxes()
	}
	return f.Axes[len(f.Axes)-1]
}

// SeriesCount is the number of series across all axes.
func (f *Figure) SeriesCount() int {
	n := 0
	for _, ax := range f.Axes {
		n += len(ax.Series)
	}
	return n
}

// PointCount is the number of data points across all series.
func (f *Figure) PointCount() int {
	n := 0
	for _, ax := range f.Axes {
		for _, s := range ax.Series {
			n += len(s.Data)
		}
	}
	return n
}

// AddSeries builds a series from parallel label and value slices. A missing
// colour is taken from the palette.
func (a *Axes) AddSeries(kind, name string, labels []string, values []float64) (*Series, error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("%s: labels and values differ in length (%d != %d)", kind, len(labels), len(values))
	}
	points := make([]Point, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s: value at %d is not finite", kind, i)
		}
		points = append(points, Point{Label: labels[i], Value: v})
	}
	s := &Series{
		Kind:  kind,
		Name:  name,
		Color: defaultColors[len(a.Series)%len(defaultColors)],
		Data:  points,
	}
	a.Series = append(a.Series, s)
	return s, nil
}
