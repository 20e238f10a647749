package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/travel-buddy/internal/common"
	"github.com/i474232898/travel-buddy/internal/weather"
)

// DefaultOpenWeatherBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

const openWeatherName = "openweathermap"

// OpenWeatherProvider implements weather.Client for OpenWeatherMap.
type OpenWeatherProvider struct {
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time
}

var _ weather.Client = (*OpenWeatherProvider)(nil)

func NewOpenWeatherProvider(cfg HTTPClientConfig, apiKey, baseURL string, logger *zap.Logger) *OpenWeatherProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultOpenWeatherBaseURL
	}

	logger = logger.With(zap.String("provider", openWeatherName))

	return &OpenWeatherProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: cfg,
		circuit: newCircuitBreaker(openWeatherName, cfg.Breaker, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// FetchCurrent calls /weather with the destination as a free-text query.
func (p *OpenWeatherProvider) FetchCurrent(ctx context.Context, destination string, unit weather.UnitMode) (weather.CurrentReading, error) {
	fail := func(status int, err error) (weather.CurrentReading, error) {
		return weather.CurrentReading{}, &weather.RemoteLookupError{
			Op:         "current",
			Query:      destination,
			StatusCode: status,
			Err:        err,
		}
	}

	if p.apiKey == "" {
		return fail(0, weather.ErrMissingAPIKey)
	}
	unit, err := weather.ParseUnitMode(string(unit))
	if err != nil {
		return fail(0, err)
	}

	values := url.Values{}
	values.Set("q", destination)
	values.Set("appid", p.apiKey)
	values.Set("units", string(unit))

	resp, err := p.get(ctx, "/weather", values)
	if err != nil {
		return fail(statusCodeOf(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(resp.StatusCode, apiError(resp))
	}

	var payload struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Main *struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: %v", weather.ErrMalformedResponse, err))
	}
	if payload.ID == 0 {
		return fail(resp.StatusCode, fmt.Errorf("%w: missing location id", weather.ErrMalformedResponse))
	}
	if payload.Main == nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: missing main block", weather.ErrMalformedResponse))
	}

	return weather.CurrentReading{
		LocationID:  payload.ID,
		Name:        payload.Name,
		Temperature: payload.Main.Temp,
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
		Unit:        unit,
		FetchedAt:   p.now().UTC(),
	}, nil
}

// FetchForecast calls /forecast keyed by the identifier resolved in current.
func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, current weather.CurrentReading) (weather.ForecastSeries, error) {
	id := strconv.FormatInt(current.LocationID, 10)
	fail := func(status int, err error) (weather.ForecastSeries, error) {
		return weather.ForecastSeries{}, &weather.RemoteLookupError{
			Op:         "forecast",
			Query:      id,
			StatusCode: status,
			Err:        err,
		}
	}

	if p.apiKey == "" {
		return fail(0, weather.ErrMissingAPIKey)
	}
	if current.LocationID == 0 {
		return fail(0, fmt.Errorf("%w: location id not resolved", weather.ErrLocationNotFound))
	}
	unit, err := weather.ParseUnitMode(string(current.Unit))
	if err != nil {
		return fail(0, err)
	}

	values := url.Values{}
	values.Set("id", id)
	values.Set("appid", p.apiKey)
	values.Set("units", string(unit))

	resp, err := p.get(ctx, "/forecast", values)
	if err != nil {
		return fail(statusCodeOf(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(resp.StatusCode, apiError(resp))
	}

	var payload struct {
		List *[]struct {
			Dt   int64 `json:"dt"`
			Main *struct {
				Temp float64 `json:"temp"`
			} `json:"main"`
		} `json:"list"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: %v", weather.ErrMalformedResponse, err))
	}
	if payload.List == nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: missing list", weather.ErrMalformedResponse))
	}

	items := *payload.List
	series := weather.ForecastSeries{
		LocationID: current.LocationID,
		Unit:       unit,
		Samples:    make([]weather.ForecastSample, 0, len(items)),
	}
	for i, item := range items {
		if item.Main == nil {
			return fail(resp.StatusCode, fmt.Errorf("%w: sample %d has no main block", weather.ErrMalformedResponse, i))
		}
		series.Samples = append(series.Samples, weather.ForecastSample{
			Index:       i,
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
		})
	}

	return series, nil
}

func (p *OpenWeatherProvider) get(ctx context.Context, path string, values url.Values) (*http.Response, error) {
	u := fmt.Sprintf("%s%s?%s", p.baseURL, path, values.Encode())

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	redacted := common.RedactQuery(u, "appid")

	start := time.Now()
	resp, err := doRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		// net/http errors quote the request URL, key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redacted
		}
		p.logger.Warn("request failed",
			zap.String("url", redacted),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	p.logger.Debug("request completed",
		zap.String("url", redacted),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

// apiError turns a non-2xx OpenWeatherMap response into an error. The body
// is of the form {"cod":"404","message":"city not found"}.
func apiError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound ||
		(resp.StatusCode == http.StatusBadRequest && common.HasAnyFold(body.Message, "not found", "not a city id")) {
		return fmt.Errorf("%w: %s", weather.ErrLocationNotFound, body.Message)
	}
	return errors.New(body.Message)
}
