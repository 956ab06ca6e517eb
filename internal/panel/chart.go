package panel

import (
	"fmt"
	"math"
	"strings"

	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/portalapi"
)

// Chart geometry in SVG user units.
const (
	ChartWidth  = 640
	ChartHeight = 280

	padLeft   = 40
	padRight  = 16
	padTop    = 16
	padBottom = 40

	plotWidth  = ChartWidth - padLeft - padRight
	plotHeight = ChartHeight - padTop - padBottom

	// values are percentages
	domainMin = 0.0
	domainMax = 100.0
)

// Tick is a horizontal grid line of the value axis.
type Tick struct {
	Y     float64
	Label string
}

// AxisLabel is a category label under the plot.
type AxisLabel struct {
	X     float64
	Label string
}

// LinePoint is a drawn point of the time series.
type LinePoint struct {
	X, Y  float64
	Wave  string
	Date  string
	Value float64
}

// LineChart is the wave-keyed time series. Points are split into segments at
// every missing value so gaps are never drawn as zero.
type LineChart struct {
	Segments []string
	Points   []LinePoint
	Labels   []AxisLabel
	Missing  []string
}

// Bar is one drawn group of the distribution.
type Bar struct {
	X, Y          float64
	Width, Height float64
	Group         string
	Value         float64
}

// BarChart is the group-keyed distribution. Groups without a value get a label
// but no bar.
type BarChart struct {
	Bars    []Bar
	Labels  []AxisLabel
	Missing []string
}

// ChartPanelView is everything the chart templates draw.
type ChartPanelView struct {
	Title          string
	DimensionLabel string
	Width, Height  int
	PlotLeft       float64
	PlotRight      float64
	Ticks          []Tick
	Line           LineChart
	Bars           BarChart
	Empty          bool
}

// ChartPanel lays out both charts on a fixed [0, 100] value axis.
func ChartPanel(cat *catalog.Catalog, timeseries []portalapi.TimePoint, distribution []portalapi.DistributionPoint, questionCode, dimension string) ChartPanelView {
	return ChartPanelView{
		Title:          cat.Label(questionCode),
		DimensionLabel: DimensionLabel(dimension),
		Width:          ChartWidth,
		Height:         ChartHeight,
		PlotLeft:       padLeft,
		PlotRight:      padLeft + plotWidth,
		Ticks:          ticks(),
		Line:           lineChart(timeseries),
		Bars:           barChart(distribution),
		Empty:          len(timeseries) == 0 && len(distribution) == 0,
	}
}

func ticks() []Tick {
	out := make([]Tick, 0, 5)
	for v := domainMin; v <= domainMax; v += 25 {
		out = append(out, Tick{Y: yFor(v), Label: fmt.Sprintf("%.0f", v)})
	}
	return out
}

func lineChart(points []portalapi.TimePoint) LineChart {
	var chart LineChart
	if len(points) == 0 {
		return chart
	}

	var path strings.Builder
	flush := func() {
		if path.Len() > 0 {
			chart.Segments = append(chart.Segments, path.String())
			path.Reset()
		}
	}

	for i, p := range points {
		x := slotCenter(i, len(points))
		chart.Labels = append(chart.Labels, AxisLabel{X: x, Label: p.Wave})

		v, ok := value(p.Value)
		if !ok {
			chart.Missing = append(chart.Missing, p.Wave)
			flush()
			continue
		}

		y := yFor(v)
		if path.Len() == 0 {
			fmt.Fprintf(&path, "M%.1f %.1f", x, y)
		} else {
			fmt.Fprintf(&path, " L%.1f %.1f", x, y)
		}
		chart.Points = append(chart.Points, LinePoint{X: x, Y: y, Wave: p.Wave, Date: p.WaveDate, Value: v})
	}
	flush()

	return chart
}

func barChart(points []portalapi.DistributionPoint) BarChart {
	var chart BarChart
	if len(points) == 0 {
		return chart
	}

	slot := float64(plotWidth) / float64(len(points))
	width := slot * 0.6

	for i, p := range points {
		x := slotCenter(i, len(points))
		chart.Labels = append(chart.Labels, AxisLabel{X: x, Label: p.Group})

		v, ok := value(p.Value)
		if !ok {
			chart.Missing = append(chart.Missing, p.Group)
			continue
		}

		y := yFor(v)
		chart.Bars = append(chart.Bars, Bar{
			X:      x - width/2,
			Y:      y,
			Width:  width,
			Height: yFor(domainMin) - y,
			Group:  p.Group,
			Value:  v,
		})
	}

	return chart
}

// value clamps v into the domain. A nil or NaN value is missing.
func value(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) {
		return 0, false
	}
	return math.Max(domainMin, math.Min(domainMax, *v)), true
}

func yFor(v float64) float64 {
	return padTop + (1-(v-domainMin)/(domainMax-domainMin))*plotHeight
}

func slotCenter(i, n int) float64 {
	slot := float64(plotWidth) / float64(n)
	return padLeft + slot*float64(i) + slot/2
}
