package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/travel-buddy/internal/api/http"
	"github.com/i474232898/travel-buddy/internal/config"
	"github.com/i474232898/travel-buddy/internal/favorites"
	"github.com/i474232898/travel-buddy/internal/scheduler"
	"github.com/i474232898/travel-buddy/internal/store"
	"github.com/i474232898/travel-buddy/internal/weather"
	"github.com/i474232898/travel-buddy/internal/weather/providers"
)

// slotBackend is a key-value slot store owned by main.
type slotBackend interface {
	favorites.KeyValue
	Close() error
}

func main() {
	log, _ := zap.NewProduction()
	zap.ReplaceGlobals(log)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	if cfg.LogLevel != "info" {
		if log, err = newLogger(cfg.LogLevel); err != nil {
			zap.L().Fatal("failed to build logger", zap.Error(err))
		}
		zap.ReplaceGlobals(log)
	}
	defer log.Sync()

	if cfg.OpenWeatherAPIKey == "" {
		log.Warn("OPENWEATHER_API_KEY is not set; weather lookups will fail")
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Provider with a circuit breaker; no retries.
	provider := providers.NewOpenWeatherProvider(providers.HTTPClientConfig{
		Client: httpClient,
		Breaker: providers.BreakerConfig{
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerTimeout,
		},
	}, cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, log.Named("openweather"))

	// Two-stage lookup pipeline.
	service := weather.NewService(provider, log.Named("weather"))

	// Favorites persisted in a single key-value slot.
	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatal("failed to open favorites backend", zap.String("backend", cfg.FavoritesBackend), zap.Error(err))
	}
	defer backend.Close()
	favs := favorites.NewStore(backend, cfg.FavoritesKey, log.Named("favorites"))

	// Optional periodic refresh of every favorite.
	sched := scheduler.New(favs, service, cfg.DefaultUnits, cfg.FavoritesRefreshInterval, log.Named("scheduler"))
	if err := sched.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "travel-buddy",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout*2 + 5*time.Second,
		ErrorHandler:          httpapi.NewErrorHandler(log),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "travel-buddy",
			"backend": cfg.FavoritesBackend,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, favs, cfg.DefaultUnits, log.Named("http"))

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func openBackend(cfg *config.AppConfig) (slotBackend, error) {
	switch cfg.FavoritesBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return store.NewSQLiteStore(cfg.SQLitePath)
	}
}
