package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/i474232898/travel-buddy/internal/weather"
)

const currentParis = `{
	"id": 2988507,
	"name": "Paris",
	"main": {"temp": 18.5, "humidity": 64},
	"wind": {"speed": 4.1},
	"weather": [{"main": "Clouds"}]
}`

const forecastParis = `{
	"cod": "200",
	"list": [
		{"dt": 1700000000, "main": {"temp": 17.1}},
		{"dt": 1700010800, "main": {"temp": 15.3}},
		{"dt": 1700021600, "main": {"temp": 19.8}}
	]
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*OpenWeatherProvider, *int32) {
	t.Helper()
	return newLoggedTestProvider(t, handler, nil)
}

func newLoggedTestProvider(t *testing.T, handler http.HandlerFunc, logger *zap.Logger) (*OpenWeatherProvider, *int32) {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := HTTPClientConfig{
		Client:  srv.Client(),
		Breaker: BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute},
	}
	return NewOpenWeatherProvider(cfg, "test-key", srv.URL, logger), &hits
}

func TestOpenWeatherFetchCurrent(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/weather" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "Paris" || q.Get("appid") != "test-key" || q.Get("units") != "metric" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(currentParis))
	})

	got, err := p.FetchCurrent(context.Background(), "Paris", weather.UnitMetric)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LocationID != 2988507 || got.Name != "Paris" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.Temperature != 18.5 || got.Humidity != 64 || got.WindSpeed != 4.1 {
		t.Fatalf("unexpected readings %+v", got)
	}
	if got.Unit != weather.UnitMetric {
		t.Fatalf("unit = %s", got.Unit)
	}
}

func TestOpenWeatherFetchCurrentEscapesDestination(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "São Paulo, BR&x=1" {
			t.Errorf("destination not passed verbatim: %q", got)
		}
		w.Write([]byte(currentParis))
	})

	if _, err := p.FetchCurrent(context.Background(), "São Paulo, BR&x=1", weather.UnitImperial); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenWeatherFetchCurrentNotFound(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	})

	got, err := p.FetchCurrent(context.Background(), "Atlantis", weather.UnitMetric)
	var rle *weather.RemoteLookupError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RemoteLookupError, got %v", err)
	}
	if rle.Op != "current" || rle.Query != "Atlantis" || rle.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected error fields %+v", rle)
	}
	if !weather.IsNotFound(err) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
	if got != (weather.CurrentReading{}) {
		t.Fatalf("expected no partial reading, got %+v", got)
	}
}

func TestOpenWeatherFetchCurrentFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"malformed json", http.StatusOK, `{"id": 1, "main": `, weather.ErrMalformedResponse},
		{"missing id", http.StatusOK, `{"name":"X","main":{"temp":1}}`, weather.ErrMalformedResponse},
		{"missing main", http.StatusOK, `{"id":5,"name":"X"}`, weather.ErrMalformedResponse},
		{"unauthorized", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.FetchCurrent(context.Background(), "X", weather.UnitMetric)
			var rle *weather.RemoteLookupError
			if !errors.As(err, &rle) {
				t.Fatalf("expected RemoteLookupError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && weather.IsNotFound(err) {
				t.Fatalf("unexpected not-found classification: %v", err)
			}
		})
	}
}

func TestOpenWeatherMissingAPIKey(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(HTTPClientConfig{Client: srv.Client()}, "", srv.URL, nil)
	_, err := p.FetchCurrent(context.Background(), "Paris", weather.UnitMetric)
	if !errors.Is(err, weather.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no request should be sent without an API key")
	}
}

func TestOpenWeatherFetchForecast(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("id") != "2988507" || q.Get("units") != "imperial" || q.Get("q") != "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(forecastParis))
	})

	current := weather.CurrentReading{LocationID: 2988507, Name: "Paris", Unit: weather.UnitImperial}
	series, err := p.FetchForecast(context.Background(), current)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.LocationID != 2988507 || series.Unit != weather.UnitImperial {
		t.Fatalf("unexpected series header %+v", series)
	}

	want := []float64{17.1, 15.3, 19.8}
	if len(series.Samples) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(series.Samples))
	}
	for i, s := range series.Samples {
		if s.Index != i || s.Temperature != want[i] {
			t.Fatalf("sample %d = %+v, remote order must be kept", i, s)
		}
	}
	if !series.Samples[0].Time.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected sample time %v", series.Samples[0].Time)
	}
}

func TestOpenWeatherFetchForecastFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unknown id", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, weather.ErrLocationNotFound},
		{"bad id", http.StatusBadRequest, `{"cod":"400","message":"999 is not a city ID"}`, weather.ErrLocationNotFound},
		{"missing list", http.StatusOK, `{"cod":"200"}`, weather.ErrMalformedResponse},
		{"sample without main", http.StatusOK, `{"list":[{"dt":1}]}`, weather.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			series, err := p.FetchForecast(context.Background(), weather.CurrentReading{LocationID: 999, Unit: weather.UnitMetric})
			var rle *weather.RemoteLookupError
			if !errors.As(err, &rle) || rle.Op != "forecast" || rle.Query != "999" {
				t.Fatalf("expected forecast RemoteLookupError, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(series.Samples) != 0 {
				t.Fatalf("expected no samples, got %d", len(series.Samples))
			}
		})
	}
}

func TestOpenWeatherForecastRequiresResolvedID(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := p.FetchForecast(context.Background(), weather.CurrentReading{Unit: weather.UnitMetric})
	if !weather.IsNotFound(err) {
		t.Fatalf("expected not found for unresolved id, got %v", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatal("no request should be sent without an id")
	}
}

func TestOpenWeatherNoRetryAndBreakerOpens(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.FetchCurrent(ctx, "Paris", weather.UnitMetric)
		var rle *weather.RemoteLookupError
		if !errors.As(err, &rle) || rle.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected 503 RemoteLookupError, got %v", i, err)
		}
		if !errors.Is(err, errServerError) {
			t.Fatalf("attempt %d: expected server error, got %v", i, err)
		}
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected exactly one request per call, got %d", got)
	}

	_, err := p.FetchCurrent(ctx, "Paris", weather.UnitMetric)
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	var rle *weather.RemoteLookupError
	if !errors.As(err, &rle) {
		t.Fatalf("open breaker must still be a RemoteLookupError, got %T", err)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("open breaker must not reach the server, got %d requests", got)
	}
}

func TestOpenWeatherClientErrorsDoNotTripBreaker(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"city not found"}`))
	})

	for i := 0; i < 4; i++ {
		_, err := p.FetchCurrent(context.Background(), "Atlantis", weather.UnitMetric)
		if !weather.IsNotFound(err) {
			t.Fatalf("attempt %d: expected not found, got %v", i, err)
		}
	}
	if got := atomic.LoadInt32(hits); got != 4 {
		t.Fatalf("expected 4 requests, got %d", got)
	}
}

func TestOpenWeatherCanceledContext(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(currentParis))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.FetchCurrent(ctx, "Paris", weather.UnitMetric)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatal("canceled context must not send a request")
	}
}

// slowHandler answers "slow" destinations after a delay and everything else
// immediately.
func slowHandler(delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "slow" {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte(currentParis))
	}
}

func TestOpenWeatherCallerDeadlineDoesNotTripBreaker(t *testing.T) {
	p, _ := newTestProvider(t, slowHandler(200*time.Millisecond))

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := p.FetchCurrent(ctx, "slow", weather.UnitMetric)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("attempt %d: expected deadline exceeded, got %v", i, err)
		}
	}

	got, err := p.FetchCurrent(context.Background(), "Paris", weather.UnitMetric)
	if err != nil {
		t.Fatalf("healthy lookup after caller timeouts failed: %v", err)
	}
	if got.Name != "Paris" {
		t.Fatalf("unexpected reading %+v", got)
	}
}

func TestOpenWeatherClientTimeoutTripsBreaker(t *testing.T) {
	p, hits := newTestProvider(t, slowHandler(200*time.Millisecond))
	p.httpCfg.Client.Timeout = 10 * time.Millisecond

	for i := 0; i < 2; i++ {
		if _, err := p.FetchCurrent(context.Background(), "slow", weather.UnitMetric); err == nil {
			t.Fatalf("attempt %d: expected timeout", i)
		}
	}

	_, err := p.FetchCurrent(context.Background(), "Paris", weather.UnitMetric)
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open breaker after upstream timeouts, got %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("open breaker must not reach the server, got %d requests", got)
	}
}

func TestOpenWeatherErrorsDoNotLeakAPIKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p, _ := newLoggedTestProvider(t, slowHandler(200*time.Millisecond), zap.New(core))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.FetchCurrent(ctx, "slow", weather.UnitMetric)
	if err == nil {
		t.Fatal("expected transport failure")
	}
	if strings.Contains(err.Error(), "test-key") {
		t.Fatalf("error exposes the API key: %v", err)
	}
	if !strings.Contains(err.Error(), "REDACTED") {
		t.Fatalf("expected redacted URL in error, got %v", err)
	}

	if logs.Len() == 0 {
		t.Fatal("expected the failure to be logged")
	}
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			if s, ok := v.(string); ok && strings.Contains(s, "test-key") {
				t.Fatalf("log field %q exposes the API key: %s", k, s)
			}
		}
	}
}

func TestOpenWeatherConnectionRefusedDoesNotLeakAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	client := srv.Client()
	srv.Close()

	p := NewOpenWeatherProvider(HTTPClientConfig{Client: client}, "test-key", base, nil)
	_, err := p.FetchForecast(context.Background(), weather.CurrentReading{LocationID: 7, Unit: weather.UnitMetric})
	var rle *weather.RemoteLookupError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RemoteLookupError, got %v", err)
	}
	if strings.Contains(err.Error(), "test-key") {
		t.Fatalf("error exposes the API key: %v", err)
	}
}
