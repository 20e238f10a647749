package weather

import (
	"fmt"
	"time"
)

// UnitMode selects the measurement system used both for the remote query and
// for display suffixes.
type UnitMode string

const (
	UnitMetric   UnitMode = "metric"
	UnitImperial UnitMode = "imperial"
)

// ParseUnitMode maps a user supplied value to a UnitMode.
// An empty string selects metric.
func ParseUnitMode(s string) (UnitMode, error) {
	switch UnitMode(s) {
	case "", UnitMetric:
		return UnitMetric, nil
	case UnitImperial:
		return UnitImperial, nil
	default:
		return "", fmt.Errorf("unknown unit mode %q", s)
	}
}

// Toggle returns the other unit mode.
func (u UnitMode) Toggle() UnitMode {
	if u == UnitImperial {
		return UnitMetric
	}
	return UnitImperial
}

// TemperatureSuffix returns the display suffix for temperatures.
func (u UnitMode) TemperatureSuffix() string {
	if u == UnitImperial {
		return "°F"
	}
	return "°C"
}

// WindSpeedSuffix returns the display suffix for wind speed.
func (u UnitMode) WindSpeedSuffix() string {
	if u == UnitImperial {
		return "mph"
	}
	return "m/s"
}

// CurrentReading is the result of the first lookup stage. LocationID is the
// provider-assigned identifier and is only meaningful together with Unit.
type CurrentReading struct {
	LocationID  int64     `json:"id"`
	Name        string    `json:"name"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Unit        UnitMode  `json:"unit"`
	FetchedAt   time.Time `json:"fetchedAt"` // always UTC
}

// ForecastSample is a single forecast step. Index is the position in the
// series as delivered by the provider.
type ForecastSample struct {
	Index       int       `json:"index"`
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
}

// ForecastSeries keeps samples in provider order; nothing is sorted or filtered.
type ForecastSeries struct {
	LocationID int64            `json:"id"`
	Unit       UnitMode         `json:"unit"`
	Samples    []ForecastSample `json:"samples"`
}

// ChartSamples is how many forecast samples the chart renders.
const ChartSamples = 5

// Head returns at most the first n samples.
func (f ForecastSeries) Head(n int) []ForecastSample {
	if n < 0 {
		n = 0
	}
	if n > len(f.Samples) {
		n = len(f.Samples)
	}
	return f.Samples[:n]
}

// Chart is the line-chart view of the first ChartSamples forecast steps.
type Chart struct {
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
	AxisSuffix string    `json:"axisSuffix"`
}

// NewChart builds chart series from the head of a forecast.
func NewChart(series ForecastSeries) Chart {
	head := series.Head(ChartSamples)
	chart := Chart{
		Labels:     make([]string, 0, len(head)),
		Values:     make([]float64, 0, len(head)),
		AxisSuffix: series.Unit.TemperatureSuffix(),
	}
	for i, s := range head {
		chart.Labels = append(chart.Labels, fmt.Sprintf("Day %d", i+1))
		chart.Values = append(chart.Values, s.Temperature)
	}
	return chart
}
