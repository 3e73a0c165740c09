package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/i474232898/agromet-sync/internal/weather"
)

// FieldRow is a monitored location.
type FieldRow struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	Name      string          `gorm:"size:128;not null;uniqueIndex:uk_field_name"`
	Latitude  decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	Longitude decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FieldRow) TableName() string { return "field" }

func (r FieldRow) field() weather.Field {
	return weather.Field{
		ID:    r.ID,
		Name:  r.Name,
		Coord: weather.Coordinate{Lat: r.Latitude, Lon: r.Longitude},
	}
}

// Fields implements weather.FieldSource over the field table.
type Fields struct {
	db *gorm.DB
}

func NewFields(db *gorm.DB) *Fields {
	return &Fields{db: db}
}

func (f *Fields) Fields(ctx context.Context) ([]weather.Field, error) {
	var rows []FieldRow
	if err := f.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	out := make([]weather.Field, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.field())
	}
	return out, nil
}

func (f *Fields) Field(ctx context.Context, id int64) (weather.Field, error) {
	var row FieldRow
	if err := f.db.WithContext(ctx).Take(&row, id).Error; err != nil {
		return weather.Field{}, notFound(err)
	}
	return row.field(), nil
}

// Seed creates fields whose names are not yet known. Existing fields are
// left untouched.
func (f *Fields) Seed(ctx context.Context, fields []weather.Field) (int, error) {
	created := 0
	for _, fld := range fields {
		var existing FieldRow
		err := f.db.WithContext(ctx).Where("name = ?", fld.Name).Take(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, fmt.Errorf("lookup field %s: %w", fld.Name, err)
		}

		row := FieldRow{Name: fld.Name, Latitude: fld.Coord.Lat, Longitude: fld.Coord.Lon}
		if err := f.db.WithContext(ctx).Create(&row).Error; err != nil {
			if isDuplicate(err) {
				continue
			}
			return created, fmt.Errorf("create field %s: %w", fld.Name, err)
		}
		created++
	}
	return created, nil
}
