package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/i474232898/travel-buddy/internal/weather"
)

// Favorites backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type AppConfig struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	// HTTPTimeout bounds every outbound weather request.
	HTTPTimeout time.Duration

	// Circuit breaker for the weather provider.
	BreakerTimeout  time.Duration
	BreakerFailures uint32

	DefaultUnits weather.UnitMode

	FavoritesBackend string
	FavoritesKey     string
	SQLitePath       string
	DatabaseURL      string

	// FavoritesRefreshInterval enables the periodic lookup of every favorite (0 = disabled).
	FavoritesRefreshInterval time.Duration

	Port     string
	LogLevel string
}

// Load reads configuration from a .env file (if any) and the environment,
// with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Info("no .env file loaded", zap.Error(err))
	}
	cfg := &AppConfig{}
	var err error

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.OpenWeatherBaseURL = os.Getenv("OPENWEATHER_BASE_URL")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = getenvDuration("BREAKER_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.BreakerFailures, err = getenvUint32("BREAKER_FAILURES", 5); err != nil {
		return nil, err
	}
	if cfg.BreakerFailures == 0 {
		return nil, fmt.Errorf("invalid BREAKER_FAILURES: must be positive")
	}

	cfg.DefaultUnits, err = weather.ParseUnitMode(getenvDefault("DEFAULT_UNITS", string(weather.UnitMetric)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_UNITS: %w", err)
	}

	cfg.FavoritesBackend = strings.ToLower(getenvDefault("FAVORITES_BACKEND", BackendSQLite))
	switch cfg.FavoritesBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if os.Getenv("DATABASE_URL") == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when FAVORITES_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid FAVORITES_BACKEND %q", cfg.FavoritesBackend)
	}
	cfg.FavoritesKey = getenvDefault("FAVORITES_KEY", "@favorites")
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "travel-buddy.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if cfg.FavoritesRefreshInterval, err = getenvDuration("FAVORITES_REFRESH_INTERVAL", "0"); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvUint32(key string, def uint32) (uint32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(n), nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
