package weather_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agromet-sync/internal/weather"
)

var errUpstream = errors.New("connection refused")

func TestGetCurrent_CacheHitSkipsProvider(t *testing.T) {
	f := newFixture()
	seed(f, record(weather.TierCurrent, now.Add(-5*time.Minute), 22))

	rec, err := f.service.GetCurrent(context.Background(), weather.Request{Coord: coord})
	require.NoError(t, err)
	assert.Equal(t, "22", rec.Temp.Decimal.String())
	assert.Zero(t, f.provider.calls.Load())
}

func TestGetCurrent_FetchesAndPersists(t *testing.T) {
	f := newFixture()
	f.provider.current = func() (weather.Record, error) {
		return weather.Record{Dt: now.Unix(), Temp: weather.FloatValue(24.5)}, nil
	}

	rec, err := f.service.GetCurrent(context.Background(), weather.Request{Coord: coord})
	require.NoError(t, err)
	assert.Equal(t, weather.TierCurrent, rec.Tier)
	assert.True(t, rec.Coord.Equal(coord))

	stored, err := f.store.Latest(context.Background(), coord, weather.TierCurrent)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), stored.Dt)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestGetCurrent_DegradesToStaleRecord(t *testing.T) {
	f := newFixture()
	seed(f, record(weather.TierCurrent, now.Add(-3*time.Hour), 15))
	f.provider.current = func() (weather.Record, error) { return weather.Record{}, errUpstream }

	rec, err := f.service.GetCurrent(context.Background(), weather.Request{Coord: coord})
	require.NoError(t, err)
	assert.Equal(t, "15", rec.Temp.Decimal.String())
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestGetCurrent_NoCacheIsTypedFailure(t *testing.T) {
	f := newFixture()
	f.provider.current = func() (weather.Record, error) { return weather.Record{}, errUpstream }

	_, err := f.service.GetCurrent(context.Background(), weather.Request{Coord: coord})
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
}

func TestGetCurrent_InvalidCoordinate(t *testing.T) {
	f := newFixture()
	_, err := f.service.GetCurrent(context.Background(), weather.Request{Coord: weather.NewCoordinate(91, 0)})
	assert.ErrorIs(t, err, weather.ErrValidation)
	assert.Zero(t, f.provider.calls.Load())
}

func TestGetForecast_ClipsAndPersistsWindow(t *testing.T) {
	f := newFixture()
	start, end := now, now.Add(3*time.Hour)
	f.provider.forecast = func(tier weather.Tier, count int) ([]weather.Record, error) {
		assert.Equal(t, weather.TierHourly, tier)
		assert.Equal(t, 4, count)
		// Provider returns more than asked, out of order.
		recs := hourly(weather.TierHourly, now.Add(-time.Hour), now.Add(6*time.Hour))
		recs[0], recs[3] = recs[3], recs[0]
		return recs, nil
	}

	series, err := f.service.GetForecast(context.Background(), weather.Request{Coord: coord, Window: weather.Window{Start: start, End: end}})
	require.NoError(t, err)
	assert.Equal(t, weather.TierHourly, series.Tier)
	assert.False(t, series.FromCache)
	require.Len(t, series.Records, 4)
	for i, rec := range series.Records {
		assert.Equal(t, start.Add(time.Duration(i)*time.Hour).Unix(), rec.Dt)
	}

	// The range is now complete, so a second call is served from storage.
	series, err = f.service.GetForecast(context.Background(), weather.Request{Coord: coord, Window: weather.Window{Start: start, End: end}})
	require.NoError(t, err)
	assert.True(t, series.FromCache)
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestGetForecast_HourlyWindowAheadOfNow(t *testing.T) {
	f := newFixture()
	f.provider.forecast = func(tier weather.Tier, count int) ([]weather.Record, error) {
		return upcoming(tier, now.Truncate(time.Hour).Add(time.Hour), time.Hour, count), nil
	}
	start := now.Truncate(time.Hour).Add(48 * time.Hour)
	end := start.Add(24 * time.Hour)
	req := weather.Request{Coord: coord, Window: weather.Window{Start: start, End: end}}

	series, err := f.service.GetForecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, weather.TierHourly, series.Tier)
	require.Len(t, series.Records, 25)
	assert.Equal(t, start.Unix(), series.Records[0].Dt)
	assert.Equal(t, end.Unix(), series.Records[24].Dt)

	n, err := f.store.Count(context.Background(), coord, weather.TierHourly, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)

	series, err = f.service.GetForecast(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, series.FromCache)
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestGetForecast_DailyWindowAheadOfNow(t *testing.T) {
	f := newFixture()
	f.provider.forecast = func(tier weather.Tier, count int) ([]weather.Record, error) {
		return upcoming(tier, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), 24*time.Hour, count), nil
	}
	start := time.Date(2025, 6, 20, 6, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 25, 18, 0, 0, 0, time.UTC)

	series, err := f.service.GetForecast(context.Background(), weather.Request{Coord: coord, Window: weather.Window{Start: start, End: end}})
	require.NoError(t, err)
	assert.Equal(t, weather.TierDaily16, series.Tier)
	require.Len(t, series.Records, 6)
	assert.Equal(t, time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC).Unix(), series.Records[0].Dt)
	assert.Equal(t, time.Date(2025, 6, 25, 12, 0, 0, 0, time.UTC).Unix(), series.Records[5].Dt)

	n, err := f.store.Count(context.Background(), coord, weather.TierDaily16, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestGetForecast_ClimateKeepsCanonicalHour(t *testing.T) {
	f := newFixture()
	end := now.Add(20 * 24 * time.Hour)
	f.provider.forecast = func(tier weather.Tier, count int) ([]weather.Record, error) {
		assert.Equal(t, weather.TierClimate30, tier)
		day1 := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
		return []weather.Record{
			record(tier, day1.Add(6*time.Hour), 20),
			record(tier, day1.Add(12*time.Hour), 21),
			record(tier, day1.Add(36*time.Hour), 22),
		}, nil
	}

	series, err := f.service.GetForecast(context.Background(), weather.Request{Coord: coord, Window: weather.Window{End: end}})
	require.NoError(t, err)
	require.Len(t, series.Records, 2)
	for _, rec := range series.Records {
		assert.Equal(t, 12, rec.Time().UTC().Hour())
	}
}

func TestGetForecast_DegradesToStoredRange(t *testing.T) {
	f := newFixture()
	start, end := now, now.Add(3*time.Hour)
	seed(f, hourly(weather.TierHourly, start, start.Add(time.Hour))...)
	f.provider.forecast = func(weather.Tier, int) ([]weather.Record, error) { return nil, errUpstream }

	series, err := f.service.GetForecast(context.Background(), weather.Request{Coord: coord, Window: weather.Window{Start: start, End: end}})
	require.NoError(t, err)
	assert.True(t, series.Degraded)
	assert.Len(t, series.Records, 2)
}

func TestGetForecast_NoStoredRangeFails(t *testing.T) {
	f := newFixture()
	f.provider.forecast = func(weather.Tier, int) ([]weather.Record, error) { return nil, errUpstream }

	_, err := f.service.GetForecast(context.Background(), weather.Request{Coord: coord})
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
}

func TestGetHistorical_RejectsMissingBoundsBeforeIO(t *testing.T) {
	f := newFixture()

	_, err := f.service.GetHistorical(context.Background(), weather.Request{Coord: coord, Window: weather.Window{End: now}})
	assert.ErrorIs(t, err, weather.ErrValidation)
	assert.Zero(t, f.provider.calls.Load())
}

func TestGetHistorical_FetchesHourlyRange(t *testing.T) {
	f := newFixture()
	start, end := now.Add(-5*time.Hour), now.Add(-3*time.Hour)
	f.provider.historical = func(s, e time.Time) ([]weather.Record, error) {
		assert.Equal(t, start.Unix(), s.Unix())
		assert.Equal(t, end.Unix(), e.Unix())
		return hourly(weather.TierHistorical, s, e), nil
	}

	series, err := f.service.GetHistorical(context.Background(), weather.Request{Coord: coord, Window: weather.Window{Start: start, End: end}})
	require.NoError(t, err)
	assert.Equal(t, weather.TierHistorical, series.Tier)
	assert.Len(t, series.Records, 3)

	n, err := f.store.Count(context.Background(), coord, weather.TierHistorical, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
