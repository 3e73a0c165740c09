package weather_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/i474232898/agromet-sync/internal/observability"
	"github.com/i474232898/agromet-sync/internal/store"
	"github.com/i474232898/agromet-sync/internal/weather"
)

var (
	coord = weather.NewCoordinate(32.26, 110.09)
	// 10:17 UTC, deliberately not on a midnight boundary.
	now = time.Date(2025, 6, 10, 10, 17, 0, 0, time.UTC)
)

type fakeProvider struct {
	calls      atomic.Int32
	current    func() (weather.Record, error)
	forecast   func(tier weather.Tier, count int) ([]weather.Record, error)
	historical func(start, end time.Time) ([]weather.Record, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchCurrent(context.Context, weather.Coordinate, string, string) (weather.Record, error) {
	f.calls.Add(1)
	return f.current()
}

func (f *fakeProvider) FetchForecast(_ context.Context, _ weather.Coordinate, tier weather.Tier, _, _ string, count int) ([]weather.Record, error) {
	f.calls.Add(1)
	return f.forecast(tier, count)
}

func (f *fakeProvider) FetchHistorical(_ context.Context, _ weather.Coordinate, start, end time.Time, _, _ string) ([]weather.Record, error) {
	f.calls.Add(1)
	return f.historical(start, end)
}

type fixture struct {
	clock    *clockwork.FakeClock
	store    *store.MemoryStore
	decider  *weather.CacheDecider
	resolver *weather.ConflictResolver
	provider *fakeProvider
	service  *weather.Service
}

func newFixture() *fixture {
	f := &fixture{
		clock:    clockwork.NewFakeClockAt(now),
		store:    store.NewMemoryStore(0),
		provider: &fakeProvider{},
	}
	metrics := observability.NewMetricsForTesting()
	f.decider = weather.NewCacheDecider(f.store, weather.FixedInterval(30*time.Minute), f.clock,
		weather.DeciderConfig{Location: time.UTC, ClimateHour: 12}, metrics)
	f.resolver = weather.NewConflictResolver(f.store, f.clock, weather.DefaultResolverConfig, zerolog.Nop(), metrics)
	f.service = weather.NewService(f.provider, f.store, f.decider, f.resolver, time.Second, zerolog.Nop(), metrics)
	return f
}

func record(tier weather.Tier, at time.Time, temp float64) weather.Record {
	return weather.Record{
		Coord: coord,
		Tier:  tier,
		Dt:    at.Unix(),
		Temp:  weather.FloatValue(temp),
	}
}

// hourly returns one record per hour over [from, to].
func hourly(tier weather.Tier, from, to time.Time) []weather.Record {
	var out []weather.Record
	for t := from; !t.After(to); t = t.Add(time.Hour) {
		out = append(out, record(tier, t, 20))
	}
	return out
}

// upcoming mimics the provider: count points one step apart starting at
// first, regardless of any requested window.
func upcoming(tier weather.Tier, first time.Time, step time.Duration, count int) []weather.Record {
	out := make([]weather.Record, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, record(tier, first.Add(time.Duration(i)*step), 20))
	}
	return out
}

func seed(f *fixture, recs ...weather.Record) {
	for _, r := range recs {
		_, _ = f.store.Insert(context.Background(), r)
	}
}
