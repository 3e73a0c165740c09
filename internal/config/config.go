package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/i474232898/agromet-sync/internal/weather"
)

type AppConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// DBDriver selects the record store. "memory" keeps weather records in
	// process; fields, rules and settings still need a SQL database, so
	// DBDSN is always used.
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite" validate:"oneof=sqlite mysql memory"`
	DBDSN    string `envconfig:"DB_DSN" default:"agromet.db" validate:"required"`

	OpenWeatherAPIKey string        `envconfig:"OPENWEATHER_API_KEY"`
	CurrentURL        string        `envconfig:"OPENWEATHER_CURRENT_URL" default:"https://api.openweathermap.org/data/2.5/weather" validate:"url"`
	HourlyURL         string        `envconfig:"OPENWEATHER_HOURLY_URL" default:"https://pro.openweathermap.org/data/2.5/forecast/hourly" validate:"url"`
	Daily16URL        string        `envconfig:"OPENWEATHER_DAILY16_URL" default:"https://api.openweathermap.org/data/2.5/forecast/daily" validate:"url"`
	Climate30URL      string        `envconfig:"OPENWEATHER_CLIMATE30_URL" default:"https://pro.openweathermap.org/data/2.5/forecast/climate" validate:"url"`
	HistoricalURL     string        `envconfig:"OPENWEATHER_HISTORICAL_URL" default:"https://history.openweathermap.org/data/2.5/history/city" validate:"url"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`

	// DefaultFetchInterval is used until an admin stores data.fetch.interval.
	DefaultFetchInterval int           `envconfig:"DEFAULT_FETCH_INTERVAL_MINUTES" default:"30" validate:"min=1"`
	ForecastCron         string        `envconfig:"FORECAST_SYNC_CRON" default:"0 2 * * *" validate:"required"`
	AlertCron            string        `envconfig:"ALERT_CHECK_CRON" default:"30 2 * * *" validate:"required"`
	SyncConcurrency      int           `envconfig:"SYNC_CONCURRENCY" default:"4" validate:"min=1"`
	SyncFieldTimeout     time.Duration `envconfig:"SYNC_FIELD_TIMEOUT" default:"60s" validate:"gt=0"`

	LocalTimezone string `envconfig:"LOCAL_TIMEZONE" default:"Asia/Shanghai"`
	ClimateHour   int    `envconfig:"CLIMATE_CANONICAL_HOUR" default:"12" validate:"min=0,max=23"`

	ResolverAttempts  int           `envconfig:"RESOLVER_ATTEMPTS" default:"3" validate:"min=1"`
	ResolverBaseDelay time.Duration `envconfig:"RESOLVER_BASE_DELAY" default:"100ms"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	// NotifyURLs are shoutrrr service URLs; alerts are always logged.
	NotifyURLs []string `envconfig:"NOTIFY_URLS"`

	// RawFields is "name:lat:lon;name:lat:lon". Fields are created on start
	// when their name is unknown.
	RawFields        string `envconfig:"FIELDS"`
	SeedDefaultRules bool   `envconfig:"SEED_DEFAULT_RULES" default:"true"`

	Fields   []weather.Field `ignored:"true"`
	Location *time.Location  `ignored:"true"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*AppConfig, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	fields, err := ParseFields(cfg.RawFields)
	if err != nil {
		return nil, fmt.Errorf("invalid FIELDS: %w", err)
	}
	cfg.Fields = fields

	return cfg, nil
}

// ParseFields parses "name:lat:lon" entries separated by semicolons.
func ParseFields(raw string) ([]weather.Field, error) {
	var out []weather.Field
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("field %q: want name:lat:lon", entry)
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("field %q: empty name", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("field %q: duplicate name", name)
		}
		coord, err := weather.ParseCoordinate(strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		seen[name] = true
		out = append(out, weather.Field{Name: name, Coord: coord})
	}
	return out, nil
}
