package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/travel-buddy/internal/weather"
)

// Favorites lists the destinations to refresh.
type Favorites interface {
	List(ctx context.Context) ([]string, error)
}

// Lookuper runs the current+forecast pipeline for one destination.
type Lookuper interface {
	Lookup(ctx context.Context, destination string, unit weather.UnitMode) (weather.Lookup, error)
}

// Summary is the outcome of one refresh run.
type Summary struct {
	Total    int
	Complete int
	Partial  int // current fetched, forecast failed
	Failed   int
}

// Scheduler periodically runs a lookup for every favorite destination and
// logs the result. Nothing is cached; the run only warms up the provider
// and surfaces destinations that no longer resolve.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Lookuper
	favorites Favorites
	unit      weather.UnitMode
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a new Scheduler.
func New(favorites Favorites, service Lookuper, unit weather.UnitMode, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		favorites: favorites,
		unit:      unit,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// A zero interval disables the job.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: favorites refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: favorites refresh started", zap.Duration("interval", s.interval))
	return nil
}

// RunOnce looks up every favorite concurrently and returns a summary.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	names, err := s.favorites.List(ctx)
	if err != nil {
		s.logger.Warn("scheduler: favorites unavailable", zap.Error(err))
	}

	summary := Summary{Total: len(names)}
	if len(names) == 0 {
		s.logger.Debug("scheduler: no favorites to refresh")
		return summary
	}

	s.logger.Info("scheduler: running favorites refresh", zap.Int("favorites", len(names)))
	start := time.Now()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()

			lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res, err := s.service.Lookup(lookupCtx, name, s.unit)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Complete++
			case res.Stage == weather.StageCurrentFetched:
				summary.Partial++
			default:
				summary.Failed++
			}
			if err != nil {
				s.logger.Warn("scheduler: refresh failed",
					zap.String("destination", name),
					zap.Stringer("stage", res.Stage),
					zap.Error(err))
			}
		}()
	}
	wg.Wait()

	s.logger.Info("scheduler: completed favorites refresh",
		zap.Int("complete", summary.Complete),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)))
	return summary
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
