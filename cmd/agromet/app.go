package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/i474232898/agromet-sync/internal/alerts"
	"github.com/i474232898/agromet-sync/internal/config"
	"github.com/i474232898/agromet-sync/internal/notify"
	"github.com/i474232898/agromet-sync/internal/observability"
	"github.com/i474232898/agromet-sync/internal/scheduler"
	"github.com/i474232898/agromet-sync/internal/store"
	"github.com/i474232898/agromet-sync/internal/weather"
	"github.com/i474232898/agromet-sync/internal/weather/providers"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	metrics  *observability.Metrics
	db       *gorm.DB
	settings *store.Settings
	fields   *store.Fields
	alerts   *store.AlertStore
	service  *weather.Service
	engine   *alerts.Engine
	sched    *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	metrics := observability.NewMetrics()

	// Fields, rules and settings always live in SQL.
	sqlDriver := cfg.DBDriver
	if sqlDriver == "memory" {
		sqlDriver = "sqlite"
	}
	db, err := store.Open(sqlDriver, cfg.DBDSN, gorm_logger.Warn)
	if err != nil {
		return nil, err
	}

	var records weather.Store = store.NewGormStore(db)
	if cfg.DBDriver == "memory" {
		records = store.NewMemoryStore(0)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		db:      db,
		fields:  store.NewFields(db),
		alerts:  store.NewAlertStore(db),
	}
	a.settings = store.NewSettings(db, store.SettingsDefaults{
		FetchIntervalMinutes: cfg.DefaultFetchInterval,
		APIKey:               cfg.OpenWeatherAPIKey,
	}, observability.Component(log, "settings"))

	if n, err := a.fields.Seed(ctx, cfg.Fields); err != nil {
		return nil, fmt.Errorf("seed fields: %w", err)
	} else if n > 0 {
		log.Info().Int("created", n).Msg("fields created from configuration")
	}

	clock := clockwork.NewRealClock()
	provider := providers.NewOpenWeatherProvider(&http.Client{Timeout: cfg.HTTPTimeout}, a.settings, providers.Config{
		Endpoints: providers.Endpoints{
			Current:    cfg.CurrentURL,
			Hourly:     cfg.HourlyURL,
			Daily16:    cfg.Daily16URL,
			Climate30:  cfg.Climate30URL,
			Historical: cfg.HistoricalURL,
		},
		Location: cfg.Location,
	}, metrics)

	weatherLog := observability.Component(log, "weather")
	decider := weather.NewCacheDecider(records, a.settings, clock, weather.DeciderConfig{
		Location:    cfg.Location,
		ClimateHour: cfg.ClimateHour,
	}, metrics)
	resolver := weather.NewConflictResolver(records, clock, weather.ResolverConfig{
		Attempts:  cfg.ResolverAttempts,
		BaseDelay: cfg.ResolverBaseDelay,
	}, weatherLog, metrics)
	a.service = weather.NewService(provider, records, decider, resolver, cfg.HTTPTimeout, weatherLog, metrics)

	alertLog := observability.Component(log, "alerts")
	notifier := notify.Multi{notify.NewLogNotifier(alertLog)}
	if len(cfg.NotifyURLs) > 0 {
		notifier = append(notifier, notify.NewShoutrrrNotifier(cfg.NotifyURLs))
	}
	a.engine = alerts.NewEngine(a.alerts, notifier, a.fields, a.service, clock, cfg.Location, alertLog, metrics)

	if cfg.SeedDefaultRules {
		if _, err := alerts.SeedDefaults(ctx, a.alerts, a.fields, alertLog); err != nil {
			return nil, err
		}
	}

	a.sched = scheduler.New(scheduler.Config{
		ForecastCron: cfg.ForecastCron,
		AlertCron:    cfg.AlertCron,
		Concurrency:  cfg.SyncConcurrency,
		FieldTimeout: cfg.SyncFieldTimeout,
		Location:     cfg.Location,
	}, a.fields, a.service, a.engine, a.settings, clock, observability.Component(log, "scheduler"), metrics)

	log.Info().Str("db_driver", cfg.DBDriver).Int("fields", len(cfg.Fields)).
		Str("timezone", cfg.Location.String()).Msg("application initialized")
	return a, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
