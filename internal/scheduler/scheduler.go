package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/agromet-sync/internal/alerts"
	"github.com/i474232898/agromet-sync/internal/observability"
	"github.com/i474232898/agromet-sync/internal/weather"
)

const (
	PassCurrent  = "current"
	PassForecast = "forecast"
	PassAlert    = "alert"
)

// WeatherService is the part of weather.Service the passes need.
type WeatherService interface {
	GetCurrent(ctx context.Context, req weather.Request) (weather.Record, error)
	GetForecast(ctx context.Context, req weather.Request) (weather.Series, error)
}

// AlertEngine is the part of alerts.Engine the passes need.
type AlertEngine interface {
	EvaluateField(ctx context.Context, field weather.Field, recs []weather.Record) ([]alerts.Alert, error)
	CheckForecasts(ctx context.Context) ([]alerts.Alert, error)
}

// Config controls pass cadence and fan-out. An empty cron expression
// disables that pass.
type Config struct {
	ForecastCron string
	AlertCron    string
	Concurrency  int
	FieldTimeout time.Duration
	Location     *time.Location
}

// Scheduler runs the current-weather loop and the cron-driven forecast and
// alert passes over every field.
type Scheduler struct {
	cfg      Config
	fields   weather.FieldSource
	service  WeatherService
	engine   AlertEngine
	interval weather.IntervalSource
	clock    clockwork.Clock
	log      zerolog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	cron   *gocron.Scheduler
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Scheduler.
func New(
	cfg Config,
	fields weather.FieldSource,
	service WeatherService,
	engine AlertEngine,
	interval weather.IntervalSource,
	clock clockwork.Clock,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FieldTimeout <= 0 {
		cfg.FieldTimeout = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		cfg:      cfg,
		fields:   fields,
		service:  service,
		engine:   engine,
		interval: interval,
		clock:    clock,
		log:      log,
		metrics:  metrics,
	}
}

// Start schedules the cron passes and starts the current-weather loop. The
// loop stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler already started")
	}

	// Cron passes and the current loop share runCtx, so Stop cancels a pass
	// that is still running.
	runCtx, cancel := context.WithCancel(ctx)
	if s.cfg.ForecastCron != "" || s.cfg.AlertCron != "" {
		cron := gocron.NewScheduler(s.cfg.Location)
		cron.SingletonModeAll()
		if err := s.schedule(runCtx, cron, s.cfg.ForecastCron, PassForecast, s.RunForecastPass); err != nil {
			cancel()
			return err
		}
		if err := s.schedule(runCtx, cron, s.cfg.AlertCron, PassAlert, s.RunAlertPass); err != nil {
			cancel()
			return err
		}
		cron.StartAsync()
		s.cron = cron
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	go s.currentLoop(runCtx, s.done)

	s.log.Info().Str("forecast_cron", s.cfg.ForecastCron).Str("alert_cron", s.cfg.AlertCron).
		Int("concurrency", s.cfg.Concurrency).Msg("scheduler started")
	return nil
}

func (s *Scheduler) schedule(ctx context.Context, cron *gocron.Scheduler, expr, pass string, run func(context.Context) error) error {
	if expr == "" {
		return nil
	}
	_, err := cron.Cron(expr).Do(func() {
		if ctx.Err() != nil {
			return
		}
		if err := run(ctx); err != nil {
			s.log.Warn().Err(err).Str("pass", pass).Msg("scheduled pass finished with errors")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s pass %q: %w", pass, expr, err)
	}
	return nil
}

// Stop cancels running passes, stops the loop and the cron jobs, and waits
// for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done, cron := s.cancel, s.done, s.cron
	s.cancel, s.done, s.cron = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if cron != nil {
		cron.Stop()
	}
}

// currentLoop runs a current pass immediately, then again after each fetch
// interval. The interval is re-read every cycle so admin changes apply
// without a restart.
func (s *Scheduler) currentLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if err := s.RunCurrentPass(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Str("pass", PassCurrent).Msg("current pass finished with errors")
		}

		wait := s.interval.FetchInterval(ctx)
		s.metrics.FetchIntervalMin.Set(wait.Minutes())
		select {
		case <-ctx.Done():
			s.log.Info().Msg("current weather loop stopped")
			return
		case <-s.clock.After(wait):
		}
	}
}

// RunCurrentPass refreshes current weather for every field.
func (s *Scheduler) RunCurrentPass(ctx context.Context) error {
	return s.eachField(ctx, PassCurrent, func(ctx context.Context, f weather.Field) error {
		_, err := s.service.GetCurrent(ctx, weather.Request{Coord: f.Coord, FieldID: f.ID})
		return err
	})
}

// RunForecastPass fetches the default forecast window for every field and
// evaluates the enabled rules on the returned records.
func (s *Scheduler) RunForecastPass(ctx context.Context) error {
	return s.eachField(ctx, PassForecast, func(ctx context.Context, f weather.Field) error {
		series, err := s.service.GetForecast(ctx, weather.Request{Coord: f.Coord, FieldID: f.ID})
		if err != nil {
			return err
		}
		created, err := s.engine.EvaluateField(ctx, f, series.Records)
		if len(created) > 0 {
			s.log.Info().Int64("field_id", f.ID).Int("alerts", len(created)).Msg("alerts raised from forecast sync")
		}
		return err
	})
}

// RunAlertPass evaluates all rules against the stored forecasts.
func (s *Scheduler) RunAlertPass(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.log.With().Str("pass", PassAlert).Str("run_id", runID).Logger()
	start := s.clock.Now()

	created, err := s.engine.CheckForecasts(ctx)
	s.metrics.SyncPassDuration.WithLabelValues(PassAlert).Observe(s.clock.Since(start).Seconds())
	if err != nil {
		s.metrics.SyncFieldFailures.WithLabelValues(PassAlert).Inc()
	}
	log.Info().Int("alerts", len(created)).Dur("took", s.clock.Since(start)).Msg("pass complete")
	return err
}

// eachField runs fn for every field with bounded parallelism and a per-field
// timeout. A failing field never stops the others; the failures are joined.
func (s *Scheduler) eachField(ctx context.Context, pass string, fn func(context.Context, weather.Field) error) error {
	runID := uuid.NewString()
	log := s.log.With().Str("pass", pass).Str("run_id", runID).Logger()
	start := s.clock.Now()

	fields, err := s.fields.Fields(ctx)
	if err != nil {
		return fmt.Errorf("%s pass: list fields: %w", pass, err)
	}
	if len(fields) == 0 {
		log.Info().Msg("no fields configured; nothing to do")
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, f := range fields {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, s.cfg.FieldTimeout)
			defer cancel()

			if err := fn(fctx, f); err != nil {
				s.metrics.SyncFieldFailures.WithLabelValues(pass).Inc()
				log.Error().Err(err).Int64("field_id", f.ID).Str("field", f.Name).Msg("field failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("field %d (%s): %w", f.ID, f.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.SyncPassDuration.WithLabelValues(pass).Observe(s.clock.Since(start).Seconds())
	log.Info().Int("fields", len(fields)).Int("failed", len(errs)).Dur("took", s.clock.Since(start)).Msg("pass complete")
	return errors.Join(errs...)
}
