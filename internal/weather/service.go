package weather

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/agromet-sync/internal/common"
	"github.com/i474232898/agromet-sync/internal/observability"
)

// Series is a range of records returned by a forecast or historical query.
type Series struct {
	Tier      Tier
	Start     time.Time
	End       time.Time
	Records   []Record
	FromCache bool
	// Degraded is set when the provider failed and stored records were
	// served instead.
	Degraded bool
}

// Service answers weather queries from the cache or the provider and
// persists fresh data through the conflict resolver.
type Service struct {
	provider        Provider
	store           Store
	decider         *CacheDecider
	resolver        *ConflictResolver
	providerTimeout time.Duration
	log             zerolog.Logger
	metrics         *observability.Metrics
}

// NewService creates a new Service. providerTimeout bounds every upstream call.
func NewService(
	provider Provider,
	store Store,
	decider *CacheDecider,
	resolver *ConflictResolver,
	providerTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Service {
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	return &Service{
		provider:        provider,
		store:           store,
		decider:         decider,
		resolver:        resolver,
		providerTimeout: providerTimeout,
		log:             log,
		metrics:         metrics,
	}
}

// GetCurrent returns the current weather at req.Coord.
func (s *Service) GetCurrent(ctx context.Context, req Request) (Record, error) {
	req.applyDefaults()
	if err := req.Coord.Validate(); err != nil {
		return Record{}, err
	}

	dec, err := s.decider.Decide(ctx, req.Coord, TierCurrent, Window{}, req.ForceRefresh)
	if err != nil {
		return Record{}, err
	}
	if dec.UseCache {
		s.log.Debug().Str("coord", req.Coord.String()).Int64("dt", dec.Latest.Dt).Msg("current weather served from cache")
		return *dec.Latest, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	rec, err := s.provider.FetchCurrent(pctx, req.Coord, req.Units, req.Lang)
	if err != nil {
		if dec.Latest != nil {
			s.degraded(TierCurrent, req.Coord, err)
			return *dec.Latest, nil
		}
		return Record{}, unavailable(err)
	}

	rec.Coord = req.Coord
	rec.Tier = TierCurrent
	return s.resolver.UpsertOrFetch(ctx, rec), nil
}

// GetForecast returns forecast records for the request window, selecting the
// provider tier from how far ahead the window ends.
func (s *Service) GetForecast(ctx context.Context, req Request) (Series, error) {
	req.applyDefaults()
	if err := req.Coord.Validate(); err != nil {
		return Series{}, err
	}

	dec, err := s.decider.Decide(ctx, req.Coord, "", req.Window, req.ForceRefresh)
	if err != nil {
		return Series{}, err
	}

	count := dec.Count
	if req.Count > 0 && req.Count < count {
		count = req.Count
	}
	return s.resolve(ctx, req, dec, func(pctx context.Context) ([]Record, error) {
		return s.provider.FetchForecast(pctx, req.Coord, dec.Tier, req.Units, req.Lang, count)
	})
}

// GetHistorical returns hourly history for the request window. Both bounds
// are required.
func (s *Service) GetHistorical(ctx context.Context, req Request) (Series, error) {
	req.applyDefaults()
	if err := req.Coord.Validate(); err != nil {
		return Series{}, err
	}

	dec, err := s.decider.Decide(ctx, req.Coord, TierHistorical, req.Window, req.ForceRefresh)
	if err != nil {
		return Series{}, err
	}
	return s.resolve(ctx, req, dec, func(pctx context.Context) ([]Record, error) {
		return s.provider.FetchHistorical(pctx, req.Coord, dec.Start, dec.End, req.Units, req.Lang)
	})
}

func (s *Service) resolve(ctx context.Context, req Request, dec Decision, fetch func(context.Context) ([]Record, error)) (Series, error) {
	series := Series{Tier: dec.Tier, Start: dec.Start, End: dec.End}

	if dec.UseCache {
		recs, err := s.store.Range(ctx, req.Coord, dec.Tier, dec.Start, dec.End)
		if err != nil {
			return series, fmt.Errorf("read cached %s records: %w", dec.Tier, err)
		}
		s.log.Debug().Str("coord", req.Coord.String()).Str("tier", string(dec.Tier)).Int("records", len(recs)).
			Msg("served from cache")
		series.Records = recs
		series.FromCache = true
		return series, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	fetched, err := fetch(pctx)
	if err != nil {
		stale, rerr := s.store.Range(ctx, req.Coord, dec.Tier, dec.Start, dec.End)
		if rerr == nil && len(stale) > 0 {
			s.degraded(dec.Tier, req.Coord, err)
			series.Records = stale
			series.FromCache = true
			series.Degraded = true
			return series, nil
		}
		return series, unavailable(err)
	}

	kept := s.clip(fetched, req.Coord, dec)
	series.Records = s.resolver.UpsertBatch(ctx, kept)
	s.log.Info().Str("coord", req.Coord.String()).Str("tier", string(dec.Tier)).
		Int("fetched", len(fetched)).Int("kept", len(kept)).Msg("records refreshed from provider")
	return series, nil
}

// clip keeps records inside the decision window, stamps the requested key
// fields and, for the climate tier, keeps only the canonical local hour.
func (s *Service) clip(recs []Record, coord Coordinate, dec Decision) []Record {
	cfg := s.decider.Config()
	start, end := dec.Start.Unix(), dec.End.Unix()

	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Dt < start || rec.Dt > end {
			continue
		}
		if dec.Tier == TierClimate30 && common.LocalHour(rec.Dt, cfg.Location) != cfg.ClimateHour {
			continue
		}
		rec.Coord = coord
		rec.Tier = dec.Tier
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Compare(a.Dt, b.Dt)
	})
	return out
}

func (s *Service) degraded(tier Tier, coord Coordinate, err error) {
	s.metrics.Degraded.WithLabelValues(string(tier)).Inc()
	s.log.Warn().Err(err).Str("coord", coord.String()).Str("tier", string(tier)).
		Msg("provider failed; serving stored records")
}

func unavailable(err error) error {
	if errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
