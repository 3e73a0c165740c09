package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/i474232898/agromet-sync/internal/weather"
)

const (
	KeyFetchInterval = "data.fetch.interval"
	KeyAPIKey        = "openweathermap.api.key"
)

// SettingRow is an admin-editable key/value pair.
type SettingRow struct {
	ID          uint64 `gorm:"primaryKey"`
	ConfigKey   string `gorm:"size:128;not null;uniqueIndex:uk_system_config_key"`
	ConfigValue string `gorm:"type:text"`
	Description string `gorm:"size:255"`
	UpdatedAt   time.Time
}

func (SettingRow) TableName() string { return "system_config" }

// Settings reads admin configuration through a short-lived cache. Writes
// invalidate the cached key.
type Settings struct {
	db              *gorm.DB
	cache           *cache.Cache
	defaultInterval int
	defaultAPIKey   string
	log             zerolog.Logger
}

// SettingsDefaults are used when a key is absent or unparsable.
type SettingsDefaults struct {
	FetchIntervalMinutes int
	APIKey               string
	CacheTTL             time.Duration
}

func NewSettings(db *gorm.DB, defaults SettingsDefaults, log zerolog.Logger) *Settings {
	if defaults.FetchIntervalMinutes < 1 {
		defaults.FetchIntervalMinutes = 30
	}
	ttl := defaults.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Settings{
		db:              db,
		cache:           cache.New(ttl, 2*ttl),
		defaultInterval: defaults.FetchIntervalMinutes,
		defaultAPIKey:   defaults.APIKey,
		log:             log,
	}
}

// Get returns the value for key; ok is false when the key is not set.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	if v, found := s.cache.Get(key); found {
		val, _ := v.(string)
		return val, val != "", nil
	}

	var row SettingRow
	err := s.db.WithContext(ctx).Where("config_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.cache.SetDefault(key, "")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	s.cache.SetDefault(key, row.ConfigValue)
	return row.ConfigValue, row.ConfigValue != "", nil
}

// Set upserts key.
func (s *Settings) Set(ctx context.Context, key, value, description string) error {
	row := SettingRow{ConfigKey: key, ConfigValue: value, Description: description}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	s.cache.Delete(key)
	return nil
}

// FetchIntervalMinutes returns the configured interval, never less than 1.
func (s *Settings) FetchIntervalMinutes(ctx context.Context) int {
	raw, ok, err := s.Get(ctx, KeyFetchInterval)
	if err != nil {
		s.log.Warn().Err(err).Msg("using default fetch interval")
		return s.defaultInterval
	}
	if !ok {
		return s.defaultInterval
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.log.Warn().Str("value", raw).Msg("invalid fetch interval setting; using default")
		return s.defaultInterval
	}
	return n
}

// FetchInterval implements weather.IntervalSource.
func (s *Settings) FetchInterval(ctx context.Context) time.Duration {
	return time.Duration(s.FetchIntervalMinutes(ctx)) * time.Minute
}

func (s *Settings) SetFetchInterval(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: fetch interval must be at least 1 minute", weather.ErrValidation)
	}
	return s.Set(ctx, KeyFetchInterval, strconv.Itoa(minutes), "current weather fetch interval in minutes")
}

// APIKey returns the provider key, falling back to the environment default.
func (s *Settings) APIKey(ctx context.Context) string {
	v, ok, err := s.Get(ctx, KeyAPIKey)
	if err != nil || !ok {
		return s.defaultAPIKey
	}
	return v
}
