package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agromet-sync/internal/weather"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOCAL_TIMEZONE", "UTC")
	t.Setenv("FIELDS", "north:32.26:110.09; south:30.5:114.3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 30, cfg.DefaultFetchInterval)
	assert.Equal(t, "0 2 * * *", cfg.ForecastCron)
	assert.Equal(t, "30 2 * * *", cfg.AlertCron)
	assert.Equal(t, 12, cfg.ClimateHour)
	assert.Equal(t, 3, cfg.ResolverAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.ResolverBaseDelay)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.True(t, cfg.SeedDefaultRules)

	require.Len(t, cfg.Fields, 2)
	assert.Equal(t, "north", cfg.Fields[0].Name)
	assert.True(t, cfg.Fields[0].Coord.Equal(weather.NewCoordinate(32.26, 110.09)))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"driver":     {"DB_DRIVER", "postgres"},
		"interval":   {"DEFAULT_FETCH_INTERVAL_MINUTES", "0"},
		"hour":       {"CLIMATE_CANONICAL_HOUR", "24"},
		"timezone":   {"LOCAL_TIMEZONE", "Mars/Olympus"},
		"fields":     {"FIELDS", "north:32.26"},
		"url":        {"OPENWEATHER_CURRENT_URL", "not a url"},
		"log format": {"LOG_FORMAT", "xml"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("LOCAL_TIMEZONE", "UTC")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseFields(t *testing.T) {
	fields, err := ParseFields("")
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = ParseFields("a:1:1;a:2:2")
	assert.Error(t, err)

	_, err = ParseFields("a:95:1")
	assert.ErrorIs(t, err, weather.ErrValidation)

	fields, err = ParseFields("greenhouse:-33.868800:151.209300;")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "-33.8688", fields[0].Coord.Lat.String())
}
