package weather

import (
	"context"
	"time"
)

// Provider abstracts the upstream weather API.
type Provider interface {
	Name() string
	FetchCurrent(ctx context.Context, coord Coordinate, units, lang string) (Record, error)
	FetchForecast(ctx context.Context, coord Coordinate, tier Tier, units, lang string, count int) ([]Record, error)
	FetchHistorical(ctx context.Context, coord Coordinate, start, end time.Time, units, lang string) ([]Record, error)
}

// InsertResult reports what Store.Insert did with a record.
type InsertResult int

const (
	Inserted InsertResult = iota
	// Conflict means a record with the same key already exists; the
	// stored row was left untouched.
	Conflict
)

func (r InsertResult) String() string {
	if r == Conflict {
		return "conflict"
	}
	return "inserted"
}

// Store is the durable record store contract. Insert never overwrites: a
// key collision is reported as Conflict with a nil error. Range and Count
// bounds are inclusive.
type Store interface {
	Insert(ctx context.Context, rec Record) (InsertResult, error)
	FindByKey(ctx context.Context, key Key) (Record, error)
	Latest(ctx context.Context, coord Coordinate, tier Tier) (Record, error)
	Range(ctx context.Context, coord Coordinate, tier Tier, from, to time.Time) ([]Record, error)
	Count(ctx context.Context, coord Coordinate, tier Tier, from, to time.Time) (int64, error)
}

// IntervalSource yields the current-weather fetch interval. It is read on
// every decision so admins can change it at runtime.
type IntervalSource interface {
	FetchInterval(ctx context.Context) time.Duration
}

// FieldSource lists monitored fields.
type FieldSource interface {
	Fields(ctx context.Context) ([]Field, error)
	Field(ctx context.Context, id int64) (Field, error)
}

// FixedInterval is an IntervalSource that never changes.
type FixedInterval time.Duration

func (f FixedInterval) FetchInterval(context.Context) time.Duration {
	return time.Duration(f)
}
