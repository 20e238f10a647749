package weather

import (
	"context"
)

// Client abstracts the remote weather service.
//
// FetchForecast takes the reading returned by FetchCurrent rather than a bare
// identifier, so a forecast can only be requested for a location that was
// resolved first, and always in the unit mode used to resolve it.
type Client interface {
	FetchCurrent(ctx context.Context, destination string, unit UnitMode) (CurrentReading, error)
	FetchForecast(ctx context.Context, current CurrentReading) (ForecastSeries, error)
}
