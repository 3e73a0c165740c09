package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/agromet-sync/internal/common"
	"github.com/i474232898/agromet-sync/internal/observability"
)

const (
	day = 24 * time.Hour

	hourlyHorizon  = 4 * day
	dailyHorizon   = 16 * day
	defaultHorizon = 30 * day

	maxHourlyPoints  = 96
	maxDailyPoints   = 16
	maxClimatePoints = 30
)

// Decision is the outcome of a cache lookup.
type Decision struct {
	UseCache bool
	Tier     Tier
	Start    time.Time
	End      time.Time
	// Expected is the number of records a complete range holds, Stored the
	// number currently persisted.
	Expected int64
	Stored   int64
	// Count is the number of points to request from the provider.
	Count int
	// Latest is set for current-tier decisions when a record exists.
	Latest *Record
}

// DeciderConfig controls range normalization.
type DeciderConfig struct {
	// Location is the zone used for midnight extension and the climate
	// canonical hour.
	Location *time.Location
	// ClimateHour is the local hour kept from climate-tier responses.
	ClimateHour int
}

// CacheDecider decides cache hit vs fetch for each tier.
type CacheDecider struct {
	store    Store
	interval IntervalSource
	clock    clockwork.Clock
	cfg      DeciderConfig
	metrics  *observability.Metrics
}

func NewCacheDecider(store Store, interval IntervalSource, clock clockwork.Clock, cfg DeciderConfig, metrics *observability.Metrics) *CacheDecider {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &CacheDecider{store: store, interval: interval, clock: clock, cfg: cfg, metrics: metrics}
}

// Config returns the effective configuration.
func (d *CacheDecider) Config() DeciderConfig {
	return d.cfg
}

// Decide evaluates the cache for coord. An empty tier or any forecast tier on
// a forecast request selects the tier from the window; TierCurrent and
// TierHistorical are taken as given.
func (d *CacheDecider) Decide(ctx context.Context, coord Coordinate, tier Tier, w Window, force bool) (Decision, error) {
	var (
		dec Decision
		err error
	)
	switch tier {
	case TierCurrent:
		dec, err = d.decideCurrent(ctx, coord, force)
	case TierHistorical:
		dec, err = d.decideHistorical(ctx, coord, w, force)
	default:
		dec, err = d.decideForecast(ctx, coord, w, force)
	}
	if err != nil {
		return dec, err
	}

	result := "miss"
	switch {
	case force:
		result = "forced"
	case dec.UseCache:
		result = "hit"
	}
	d.metrics.CacheLookups.WithLabelValues(string(dec.Tier), result).Inc()
	return dec, nil
}

func (d *CacheDecider) decideCurrent(ctx context.Context, coord Coordinate, force bool) (Decision, error) {
	dec := Decision{Tier: TierCurrent, Expected: 1}

	latest, err := d.store.Latest(ctx, coord, TierCurrent)
	if errors.Is(err, ErrNotFound) {
		return dec, nil
	}
	if err != nil {
		return dec, fmt.Errorf("latest current record: %w", err)
	}
	dec.Latest = &latest
	dec.Stored = 1

	maxAge := d.interval.FetchInterval(ctx)
	age := d.clock.Now().Sub(latest.Time())
	dec.UseCache = !force && age < maxAge
	return dec, nil
}

func (d *CacheDecider) decideForecast(ctx context.Context, coord Coordinate, w Window, force bool) (Decision, error) {
	now := d.now()
	start, end, err := d.NormalizeRange(w)
	if err != nil {
		return Decision{}, err
	}

	tier := SelectTier(now, end)
	dec := Decision{
		Tier:     tier,
		Start:    start,
		End:      end,
		Expected: ExpectedCount(tier, start, end),
	}
	dec.Count = requestCount(tier, now, end)

	return d.completeness(ctx, coord, dec, force)
}

func (d *CacheDecider) decideHistorical(ctx context.Context, coord Coordinate, w Window, force bool) (Decision, error) {
	if w.Start.IsZero() || w.End.IsZero() {
		return Decision{}, fmt.Errorf("%w: historical queries require start and end", ErrValidation)
	}
	if w.End.Before(w.Start) {
		return Decision{}, fmt.Errorf("%w: end before start", ErrValidation)
	}
	start, end := w.Start.Truncate(time.Second), w.End.Truncate(time.Second)
	dec := Decision{
		Tier:     TierHistorical,
		Start:    start,
		End:      end,
		Expected: ExpectedCount(TierHistorical, start, end),
	}
	dec.Count = int(dec.Expected)
	return d.completeness(ctx, coord, dec, force)
}

// completeness serves the cache only when every expected point is stored.
func (d *CacheDecider) completeness(ctx context.Context, coord Coordinate, dec Decision, force bool) (Decision, error) {
	if force {
		return dec, nil
	}
	stored, err := d.store.Count(ctx, coord, dec.Tier, dec.Start, dec.End)
	if err != nil {
		return dec, fmt.Errorf("count %s records: %w", dec.Tier, err)
	}
	dec.Stored = stored
	dec.UseCache = stored == dec.Expected
	return dec, nil
}

// NormalizeRange fills in default bounds and extends an end that falls on
// local midnight to the last hour of that day.
func (d *CacheDecider) NormalizeRange(w Window) (time.Time, time.Time, error) {
	now := d.now()
	start := w.Start
	if start.IsZero() {
		start = now
	}
	end := w.End
	if end.IsZero() {
		end = now.Add(defaultHorizon)
	}
	start, end = start.Truncate(time.Second), end.Truncate(time.Second)

	if common.IsLocalMidnight(end, d.cfg.Location) {
		end = end.Add(23 * time.Hour)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("%w: end %s before start %s", ErrValidation, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

func (d *CacheDecider) now() time.Time {
	return d.clock.Now().Truncate(time.Second)
}

// SelectTier picks the forecast tier for a window ending at end.
func SelectTier(now, end time.Time) Tier {
	switch {
	case !end.After(now.Add(hourlyHorizon)):
		return TierHourly
	case !end.After(now.Add(dailyHorizon)):
		return TierDaily16
	default:
		return TierClimate30
	}
}

// ExpectedCount is the number of records a complete [start, end] range holds
// for tier: one per hour or one per day, both ends inclusive.
func ExpectedCount(tier Tier, start, end time.Time) int64 {
	secs := int64(end.Sub(start) / time.Second)
	if tier.Daily() {
		return secs/86400 + 1
	}
	return secs/3600 + 1
}

// requestCount is the number of points to ask for. The provider counts from
// now, not from the window start, so the count must reach end.
func requestCount(tier Tier, now, end time.Time) int {
	step, limit := time.Hour, maxHourlyPoints
	switch tier {
	case TierDaily16:
		step, limit = day, maxDailyPoints
	case TierClimate30:
		step, limit = day, maxClimatePoints
	}
	ahead := end.Sub(now)
	if ahead <= 0 {
		return 1
	}
	n := int((ahead+step-1)/step) + 1
	return min(n, limit)
}
