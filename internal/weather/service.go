package weather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Stage tracks how far a lookup progressed.
type Stage int

const (
	StageIdle Stage = iota
	StageCurrentFetched
	StageForecastFetched
)

func (s Stage) String() string {
	switch s {
	case StageCurrentFetched:
		return "current_fetched"
	case StageForecastFetched:
		return "forecast_fetched"
	default:
		return "idle"
	}
}

// Lookup is the outcome of one current+forecast cycle.
// Forecast is only set when Stage is StageForecastFetched.
type Lookup struct {
	Stage    Stage
	Current  CurrentReading
	Forecast ForecastSeries
}

// Complete reports whether both stages succeeded.
func (l Lookup) Complete() bool {
	return l.Stage == StageForecastFetched
}

// Service runs the two-stage lookup against a Client.
type Service struct {
	client Client
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(client Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		logger: logger,
	}
}

// Lookup resolves the destination and then fetches the forecast for the
// resolved location. The forecast is never requested when the first stage
// fails. If the forecast stage fails, the returned Lookup still carries the
// current reading with Stage set to StageCurrentFetched, alongside the error.
//
// Every call performs both network requests; nothing is reused across calls,
// so switching unit mode always yields a fresh cycle.
func (s *Service) Lookup(ctx context.Context, destination string, unit UnitMode) (Lookup, error) {
	if s.client == nil {
		return Lookup{}, fmt.Errorf("no weather client configured")
	}

	start := time.Now()
	log := s.logger.With(zap.String("destination", destination), zap.String("unit", string(unit)))

	current, err := s.client.FetchCurrent(ctx, destination, unit)
	if err != nil {
		log.Warn("current weather lookup failed", zap.Error(err))
		return Lookup{Stage: StageIdle}, err
	}

	result := Lookup{Stage: StageCurrentFetched, Current: current}
	log = log.With(zap.Int64("location_id", current.LocationID))

	forecast, err := s.client.FetchForecast(ctx, current)
	if err != nil {
		log.Warn("forecast lookup failed", zap.Error(err))
		return result, err
	}

	result.Stage = StageForecastFetched
	result.Forecast = forecast

	log.Debug("lookup completed",
		zap.Int("samples", len(forecast.Samples)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}
