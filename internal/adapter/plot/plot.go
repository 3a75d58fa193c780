// Package plot renders analysis-panel results as PNG line charts.
package plot

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNothingToDraw is returned when no series has two defined points.
var ErrNothingToDraw = errors.New("nothing to draw")

const (
	width  = 1200
	height = 500
)

var palette = map[string]drawing.Color{
	pipeline.SeriesAccidents: drawing.ColorFromHex("1f77b4"),
	pipeline.SeriesTrend:     drawing.ColorFromHex("ff7f0e"),
	pipeline.SeriesSeasonal:  drawing.ColorFromHex("2ca02c"),
	pipeline.SeriesForecast:  drawing.ColorFromHex("d62728"),
}

// RenderPNG draws every series of res on one time axis. Undefined points
// (the edges of a trend) are left out.
func RenderPNG(res pipeline.AnalysisResult) ([]byte, error) {
	var (
		series     []chart.Series
		lo, hi     float64
		haveBounds bool
	)
	for _, s := range res.Series {
		xs, ys := definedPoints(s.Points)
		if len(xs) < 2 {
			continue
		}
		for _, y := range ys {
			if !haveBounds {
				lo, hi, haveBounds = y, y, true
				continue
			}
			lo, hi = min(lo, y), max(hi, y)
		}
		series = append(series, chart.TimeSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: seriesColor(s.Name),
				StrokeWidth: 2,
			},
		})
	}
	if len(series) == 0 {
		return nil, ErrNothingToDraw
	}

	graph := chart.Chart{
		Title:  title(res),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
			FillColor: drawing.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: dateFormatter(res.Period),
		},
		YAxis: chart.YAxis{
			Name: "Accidents",
			ValueFormatter: func(v any) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	// A flat line has a zero-height range, which the renderer rejects.
	if hi == lo {
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

func definedPoints(points []domain.Point) ([]time.Time, []float64) {
	xs := make([]time.Time, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if !p.Defined() {
			continue
		}
		xs = append(xs, p.Time)
		ys = append(ys, p.Value)
	}
	return xs, ys
}

func seriesColor(name string) drawing.Color {
	if c, ok := palette[name]; ok {
		return c
	}
	return drawing.ColorBlack
}

func title(res pipeline.AnalysisResult) string {
	t := fmt.Sprintf("%s: %s accidents (%s)", res.Label, res.Period.Label(), res.Mode)
	if res.Model != "" {
		t += " " + res.Model
	}
	return t
}

// dateFormatter labels the X axis at the resolution of the period.
func dateFormatter(p domain.Period) chart.ValueFormatter {
	layout := "2006-01-02"
	if p == domain.PeriodMonthly {
		layout = "2006-01"
	}
	return func(v any) string {
		switch tv := v.(type) {
		case time.Time:
			return tv.UTC().Format(layout)
		case float64:
			return time.Unix(0, int64(tv)).UTC().Format(layout)
		}
		return ""
	}
}
