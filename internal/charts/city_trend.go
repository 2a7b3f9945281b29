// Package charts renders static chart images for city NO2 time series.
package charts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// ChartGenerator handles creation of static chart images.
type ChartGenerator struct{}

// NewChartGenerator creates a new chart generator.
func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{}
}

// TrendSample is one month of a city's trend: the measured record and,
// when resolvable, the baseline it is compared against.
type TrendSample struct {
	Period   models.Period
	Record   *models.CityTimepoint
	Baseline *models.CityTimepoint
}

// CityTrendChart renders a city's NO2 concentration against its baseline
// across the given months, with the epidemiological incidence on a
// secondary axis. Returns PNG bytes.
func (cg *ChartGenerator) CityTrendChart(cityName string, samples []TrendSample) ([]byte, error) {
	var (
		xValues        []time.Time
		valueSeries    []float64
		baselineX      []time.Time
		baselineSeries []float64
		incidenceX     []time.Time
		incidence      []float64
	)

	for _, s := range samples {
		if s.Record == nil {
			continue
		}
		t := time.Date(s.Period.Year, time.Month(s.Period.Month), 1, 0, 0, 0, 0, time.UTC)
		xValues = append(xValues, t)
		valueSeries = append(valueSeries, s.Record.Value)
		incidenceX = append(incidenceX, t)
		incidence = append(incidence, s.Record.Incidence)
		if s.Baseline != nil {
			baselineX = append(baselineX, t)
			baselineSeries = append(baselineSeries, s.Baseline.Value)
		}
	}
	if len(xValues) == 0 {
		return nil, fmt.Errorf("no data points for city %s", cityName)
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: "NO2 column",
			Style: chart.Style{
				StrokeColor: drawing.Color{R: 51, G: 102, B: 204, A: 255},
				StrokeWidth: 2.5,
				DotColor:    drawing.Color{R: 51, G: 102, B: 204, A: 255},
				DotWidth:    4,
			},
			XValues: xValues,
			YValues: valueSeries,
		},
	}
	if len(baselineX) > 0 {
		series = append(series, chart.TimeSeries{
			Name: "Baseline",
			Style: chart.Style{
				StrokeColor:     drawing.ColorGreen,
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 3},
			},
			XValues: baselineX,
			YValues: baselineSeries,
		})
	}
	series = append(series, chart.TimeSeries{
		Name: "7-day incidence",
		Style: chart.Style{
			StrokeColor: drawing.Color{R: 255, G: 165, B: 0, A: 255},
			StrokeWidth: 2,
		},
		YAxis:   chart.YAxisSecondary,
		XValues: incidenceX,
		YValues: incidence,
	})

	graph := chart.Chart{
		Title: fmt.Sprintf("%s - NO2 vs. baseline", cityName),
		TitleStyle: chart.Style{
			FontSize:  16,
			FontColor: drawing.ColorBlack,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   70,
				Right:  70,
				Bottom: 50,
			},
		},
		Height: 400,
		Width:  800,
		XAxis: chart.XAxis{
			Name: "Month",
			NameStyle: chart.Style{
				FontSize: 12,
			},
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01"),
		},
		YAxis: chart.YAxis{
			Name: "NO2 (mol/m2)",
			NameStyle: chart.Style{
				FontSize: 12,
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Incidence",
			NameStyle: chart.Style{
				FontSize: 12,
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render city trend chart: %w", err)
	}
	return buf.Bytes(), nil
}
