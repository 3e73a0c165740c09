package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/i474232898/agromet-sync/internal/weather"
)

type seriesKey struct {
	lat, lon int64
	tier     weather.Tier
}

// series holds the records of one coordinate and tier, ordered by dt.
type series struct {
	byDt  map[int64]weather.Record
	order []int64
}

// MemoryStore is a concurrency-safe in-memory weather.Store. It enforces the
// same (coordinate, tier, dt) uniqueness as the SQL store.
type MemoryStore struct {
	mu sync.RWMutex

	data map[seriesKey]*series

	// maxHistory bounds records kept per coordinate and tier; <= 0 is unlimited.
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore. If maxHistory is <= 0, it is
// treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[seriesKey]*series),
		maxHistory: maxHistory,
	}
}

func keyOf(coord weather.Coordinate, tier weather.Tier) seriesKey {
	lat, lon := coord.E6()
	return seriesKey{lat: lat, lon: lon, tier: tier}
}

// Insert stores rec unless its key is taken.
func (s *MemoryStore) Insert(_ context.Context, rec weather.Record) (weather.InsertResult, error) {
	key := keyOf(rec.Coord, rec.Tier)

	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.data[key]
	if !ok {
		sr = &series{byDt: make(map[int64]weather.Record)}
		s.data[key] = sr
	}
	if _, exists := sr.byDt[rec.Dt]; exists {
		return weather.Conflict, nil
	}

	sr.byDt[rec.Dt] = rec
	pos, _ := slices.BinarySearch(sr.order, rec.Dt)
	sr.order = slices.Insert(sr.order, pos, rec.Dt)

	// Enforce retention by count, oldest first.
	if s.maxHistory > 0 && len(sr.order) > s.maxHistory {
		over := len(sr.order) - s.maxHistory
		for _, dt := range sr.order[:over] {
			delete(sr.byDt, dt)
		}
		sr.order = slices.Clone(sr.order[over:])
	}
	return weather.Inserted, nil
}

func (s *MemoryStore) FindByKey(_ context.Context, key weather.Key) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.data[keyOf(key.Coord, key.Tier)]
	if !ok {
		return weather.Record{}, weather.ErrNotFound
	}
	rec, ok := sr.byDt[key.Dt]
	if !ok {
		return weather.Record{}, weather.ErrNotFound
	}
	return rec, nil
}

// Latest returns the record with the greatest dt.
func (s *MemoryStore) Latest(_ context.Context, coord weather.Coordinate, tier weather.Tier) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.data[keyOf(coord, tier)]
	if !ok || len(sr.order) == 0 {
		return weather.Record{}, weather.ErrNotFound
	}
	return sr.byDt[sr.order[len(sr.order)-1]], nil
}

// Range returns records with from <= dt <= to, oldest first.
func (s *MemoryStore) Range(_ context.Context, coord weather.Coordinate, tier weather.Tier, from, to time.Time) ([]weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.data[keyOf(coord, tier)]
	if !ok {
		return nil, nil
	}
	lo, hi := sr.bounds(from.Unix(), to.Unix())
	out := make([]weather.Record, 0, hi-lo)
	for _, dt := range sr.order[lo:hi] {
		out = append(out, sr.byDt[dt])
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, coord weather.Coordinate, tier weather.Tier, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.data[keyOf(coord, tier)]
	if !ok {
		return 0, nil
	}
	lo, hi := sr.bounds(from.Unix(), to.Unix())
	return int64(hi - lo), nil
}

func (sr *series) bounds(from, to int64) (int, int) {
	if to < from {
		return 0, 0
	}
	lo, _ := slices.BinarySearch(sr.order, from)
	hi, found := slices.BinarySearch(sr.order, to)
	if found {
		hi++
	}
	return lo, hi
}
