package weather

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/i474232898/agromet-sync/internal/observability"
)

// ResolverConfig bounds the re-query loop after a key conflict.
type ResolverConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultResolverConfig matches the upstream cadence: three lookups,
// 100ms then 200ms apart.
var DefaultResolverConfig = ResolverConfig{Attempts: 3, BaseDelay: 100 * time.Millisecond}

// ConflictResolver persists records with insert-or-fetch-existing semantics.
// The first committer of a key wins; later writers get the stored row back.
type ConflictResolver struct {
	store   Store
	clock   clockwork.Clock
	cfg     ResolverConfig
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewConflictResolver(store Store, clock clockwork.Clock, cfg ResolverConfig, log zerolog.Logger, metrics *observability.Metrics) *ConflictResolver {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultResolverConfig.Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultResolverConfig.BaseDelay
	}
	return &ConflictResolver{store: store, clock: clock, cfg: cfg, log: log, metrics: metrics}
}

// UpsertOrFetch stores rec unless its key already exists, and always returns
// a usable record: the persisted one, the existing one, or as a last resort
// the latest current record or rec itself unpersisted.
func (r *ConflictResolver) UpsertOrFetch(ctx context.Context, rec Record) Record {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now().UTC()
	}

	res, err := r.store.Insert(ctx, rec)
	switch {
	case err != nil:
		r.log.Warn().Err(err).Str("key", rec.Key().String()).Msg("insert failed; using fallback")
	case res == Inserted:
		r.observe(rec.Tier, "inserted")
		return rec
	default:
		if existing, ok := r.requery(ctx, rec.Key()); ok {
			r.observe(rec.Tier, "existing")
			return existing
		}
		r.log.Warn().Str("key", rec.Key().String()).Int("attempts", r.cfg.Attempts).
			Msg("conflicting record not visible after retries")
	}

	return r.fallback(ctx, rec)
}

// UpsertBatch applies UpsertOrFetch to each record so one conflict never
// aborts the rest.
func (r *ConflictResolver) UpsertBatch(ctx context.Context, recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.UpsertOrFetch(ctx, rec))
	}
	return out
}

func (r *ConflictResolver) requery(ctx context.Context, key Key) (Record, bool) {
	for attempt := 0; attempt < r.cfg.Attempts; attempt++ {
		existing, err := r.store.FindByKey(ctx, key)
		if err == nil {
			return existing, true
		}
		if !errors.Is(err, ErrNotFound) {
			r.log.Debug().Err(err).Str("key", key.String()).Int("attempt", attempt+1).Msg("re-query failed")
		}
		if attempt == r.cfg.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return Record{}, false
		case <-r.clock.After(r.cfg.BaseDelay * time.Duration(attempt+1)):
		}
	}
	return Record{}, false
}

func (r *ConflictResolver) fallback(ctx context.Context, rec Record) Record {
	if rec.Tier == TierCurrent {
		latest, err := r.store.Latest(ctx, rec.Coord, TierCurrent)
		if err == nil {
			r.observe(rec.Tier, "latest")
			return latest
		}
	}
	r.observe(rec.Tier, "unpersisted")
	return rec
}

func (r *ConflictResolver) observe(tier Tier, outcome string) {
	r.metrics.StoreWrites.WithLabelValues(string(tier), outcome).Inc()
}
