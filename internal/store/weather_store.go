package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/i474232898/agromet-sync/internal/weather"
)

type weatherRow interface {
	CurrentRow | ForecastRow | HistoricalRow
	TableName() string
	record() weather.Record
}

// table binds a row type to its conversion from weather.Record.
type table[T weatherRow] struct {
	build func(weather.Record) T
}

type recordTable interface {
	create(q *gorm.DB, rec weather.Record) error
	take(q *gorm.DB) (weather.Record, error)
	find(q *gorm.DB) ([]weather.Record, error)
	count(q *gorm.DB) (int64, error)
}

func (t table[T]) create(q *gorm.DB, rec weather.Record) error {
	row := t.build(rec)
	return q.Create(&row).Error
}

func (t table[T]) take(q *gorm.DB) (weather.Record, error) {
	var row T
	if err := q.Take(&row).Error; err != nil {
		return weather.Record{}, notFound(err)
	}
	return row.record(), nil
}

func (t table[T]) find(q *gorm.DB) ([]weather.Record, error) {
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (t table[T]) count(q *gorm.DB) (int64, error) {
	var n int64
	err := q.Model(new(T)).Count(&n).Error
	return n, err
}

var (
	currentTable    recordTable = table[CurrentRow]{build: currentRow}
	forecastTable   recordTable = table[ForecastRow]{build: forecastRow}
	historicalTable recordTable = table[HistoricalRow]{build: historicalRow}
)

func tableFor(tier weather.Tier) (recordTable, error) {
	switch {
	case tier == weather.TierCurrent:
		return currentTable, nil
	case tier == weather.TierHistorical:
		return historicalTable, nil
	case tier.IsForecast():
		return forecastTable, nil
	}
	return nil, fmt.Errorf("unknown tier %q", tier)
}

// GormStore is the SQL-backed weather.Store. Uniqueness is enforced by the
// per-table unique index; Insert never updates an existing row.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) scope(ctx context.Context, coord weather.Coordinate, tier weather.Tier) *gorm.DB {
	lat, lon := coord.E6()
	q := s.db.WithContext(ctx).Where("lat_e6 = ? AND lon_e6 = ?", lat, lon)
	if tier.IsForecast() {
		q = q.Where("forecast_type = ?", tier.ForecastType())
	}
	return q
}

func (s *GormStore) Insert(ctx context.Context, rec weather.Record) (weather.InsertResult, error) {
	t, err := tableFor(rec.Tier)
	if err != nil {
		return weather.Inserted, err
	}
	if err := t.create(s.db.WithContext(ctx), rec); err != nil {
		if isDuplicate(err) {
			return weather.Conflict, nil
		}
		return weather.Inserted, fmt.Errorf("insert %s: %w", rec.Key(), err)
	}
	return weather.Inserted, nil
}

func (s *GormStore) FindByKey(ctx context.Context, key weather.Key) (weather.Record, error) {
	t, err := tableFor(key.Tier)
	if err != nil {
		return weather.Record{}, err
	}
	return t.take(s.scope(ctx, key.Coord, key.Tier).Where("dt = ?", key.Dt))
}

func (s *GormStore) Latest(ctx context.Context, coord weather.Coordinate, tier weather.Tier) (weather.Record, error) {
	t, err := tableFor(tier)
	if err != nil {
		return weather.Record{}, err
	}
	return t.take(s.scope(ctx, coord, tier).Order("dt DESC"))
}

func (s *GormStore) Range(ctx context.Context, coord weather.Coordinate, tier weather.Tier, from, to time.Time) ([]weather.Record, error) {
	t, err := tableFor(tier)
	if err != nil {
		return nil, err
	}
	return t.find(s.scope(ctx, coord, tier).Where("dt BETWEEN ? AND ?", from.Unix(), to.Unix()).Order("dt ASC"))
}

func (s *GormStore) Count(ctx context.Context, coord weather.Coordinate, tier weather.Tier, from, to time.Time) (int64, error) {
	t, err := tableFor(tier)
	if err != nil {
		return 0, err
	}
	return t.count(s.scope(ctx, coord, tier).Where("dt BETWEEN ? AND ?", from.Unix(), to.Unix()))
}
