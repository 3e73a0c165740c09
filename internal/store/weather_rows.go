package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/i474232898/agromet-sync/internal/weather"
)

// ValueColumns are the measurement columns shared by all weather tables.
type ValueColumns struct {
	DtTxt      string              `gorm:"size:32"`
	Temp       decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	FeelsLike  decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	TempMin    decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	TempMax    decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Pressure   decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Humidity   decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	SeaLevel   decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	GrndLevel  decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	WindSpeed  decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	WindDeg    decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	WindGust   decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	CloudsAll  decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Visibility decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Pop        decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Rain1h     decimal.NullDecimal `gorm:"column:rain_1h;type:decimal(10,2)"`
	Snow1h     decimal.NullDecimal `gorm:"column:snow_1h;type:decimal(10,2)"`

	WeatherID          *int
	WeatherMain        string `gorm:"size:64"`
	WeatherDescription string `gorm:"size:255"`
	WeatherIcon        string `gorm:"size:16"`
	Sunrise            *int64
	Sunset             *int64
}

// CurrentRow is a row of weather_current, unique on (lat, lon, dt).
type CurrentRow struct {
	ID        uint64          `gorm:"primaryKey"`
	LatE6     int64           `gorm:"column:lat_e6;not null;uniqueIndex:uk_weather_current_key,priority:1"`
	LonE6     int64           `gorm:"column:lon_e6;not null;uniqueIndex:uk_weather_current_key,priority:2"`
	Dt        int64           `gorm:"not null;uniqueIndex:uk_weather_current_key,priority:3"`
	Latitude  decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	Longitude decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	Timezone  *int
	Country   string `gorm:"size:8"`
	Name      string `gorm:"size:128"`
	CreatedAt time.Time

	ValueColumns `gorm:"embedded"`
}

func (CurrentRow) TableName() string { return "weather_current" }

func (r CurrentRow) record() weather.Record {
	rec := r.ValueColumns.record(r.LatE6, r.LonE6, weather.TierCurrent, r.Dt, r.CreatedAt)
	rec.Timezone = r.Timezone
	rec.Country = r.Country
	rec.Name = r.Name
	return rec
}

func currentRow(rec weather.Record) CurrentRow {
	lat, lon := rec.Coord.E6()
	return CurrentRow{
		LatE6:        lat,
		LonE6:        lon,
		Dt:           rec.Dt,
		Latitude:     rec.Coord.Lat,
		Longitude:    rec.Coord.Lon,
		ValueColumns: columnsOf(rec),
		Timezone:     rec.Timezone,
		Country:      rec.Country,
		Name:         rec.Name,
		CreatedAt:    rec.CreatedAt,
	}
}

// ForecastRow is a row of weather_forecast, unique on (lat, lon, dt, forecast_type).
type ForecastRow struct {
	ID           uint64          `gorm:"primaryKey"`
	LatE6        int64           `gorm:"column:lat_e6;not null;uniqueIndex:uk_weather_forecast_key,priority:1"`
	LonE6        int64           `gorm:"column:lon_e6;not null;uniqueIndex:uk_weather_forecast_key,priority:2"`
	Dt           int64           `gorm:"not null;uniqueIndex:uk_weather_forecast_key,priority:3"`
	ForecastType int             `gorm:"not null;uniqueIndex:uk_weather_forecast_key,priority:4"`
	Latitude     decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	Longitude    decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	CreatedAt    time.Time

	ValueColumns `gorm:"embedded"`
}

func (ForecastRow) TableName() string { return "weather_forecast" }

func (r ForecastRow) record() weather.Record {
	tier, err := weather.TierFromForecastType(r.ForecastType)
	if err != nil {
		tier = weather.TierHourly
	}
	return r.ValueColumns.record(r.LatE6, r.LonE6, tier, r.Dt, r.CreatedAt)
}

func forecastRow(rec weather.Record) ForecastRow {
	lat, lon := rec.Coord.E6()
	return ForecastRow{
		LatE6:        lat,
		LonE6:        lon,
		Dt:           rec.Dt,
		ForecastType: rec.Tier.ForecastType(),
		Latitude:     rec.Coord.Lat,
		Longitude:    rec.Coord.Lon,
		ValueColumns: columnsOf(rec),
		CreatedAt:    rec.CreatedAt,
	}
}

// HistoricalRow is a row of weather_historical, unique on (lat, lon, dt).
type HistoricalRow struct {
	ID           uint64          `gorm:"primaryKey"`
	LatE6        int64           `gorm:"column:lat_e6;not null;uniqueIndex:uk_weather_historical_key,priority:1"`
	LonE6        int64           `gorm:"column:lon_e6;not null;uniqueIndex:uk_weather_historical_key,priority:2"`
	Dt           int64           `gorm:"not null;uniqueIndex:uk_weather_historical_key,priority:3"`
	Latitude     decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	Longitude    decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	CreatedAt    time.Time

	ValueColumns `gorm:"embedded"`
}

func (HistoricalRow) TableName() string { return "weather_historical" }

func (r HistoricalRow) record() weather.Record {
	return r.ValueColumns.record(r.LatE6, r.LonE6, weather.TierHistorical, r.Dt, r.CreatedAt)
}

func historicalRow(rec weather.Record) HistoricalRow {
	lat, lon := rec.Coord.E6()
	return HistoricalRow{
		LatE6:        lat,
		LonE6:        lon,
		Dt:           rec.Dt,
		Latitude:     rec.Coord.Lat,
		Longitude:    rec.Coord.Lon,
		ValueColumns: columnsOf(rec),
		CreatedAt:    rec.CreatedAt,
	}
}

func columnsOf(rec weather.Record) ValueColumns {
	return ValueColumns{
		DtTxt:              rec.DtTxt,
		Temp:               rec.Temp,
		FeelsLike:          rec.FeelsLike,
		TempMin:            rec.TempMin,
		TempMax:            rec.TempMax,
		Pressure:           rec.Pressure,
		Humidity:           rec.Humidity,
		SeaLevel:           rec.SeaLevel,
		GrndLevel:          rec.GrndLevel,
		WindSpeed:          rec.WindSpeed,
		WindDeg:            rec.WindDeg,
		WindGust:           rec.WindGust,
		CloudsAll:          rec.CloudsAll,
		Visibility:         rec.Visibility,
		Pop:                rec.Pop,
		Rain1h:             rec.Rain1h,
		Snow1h:             rec.Snow1h,
		WeatherID:          rec.WeatherID,
		WeatherMain:        rec.WeatherMain,
		WeatherDescription: rec.WeatherDescription,
		WeatherIcon:        rec.WeatherIcon,
		Sunrise:            rec.Sunrise,
		Sunset:             rec.Sunset,
	}
}

func (v ValueColumns) record(lat, lon int64, tier weather.Tier, dt int64, createdAt time.Time) weather.Record {
	return weather.Record{
		Coord:              weather.CoordinateFromE6(lat, lon),
		Tier:               tier,
		Dt:                 dt,
		DtTxt:              v.DtTxt,
		Temp:               v.Temp,
		FeelsLike:          v.FeelsLike,
		TempMin:            v.TempMin,
		TempMax:            v.TempMax,
		Pressure:           v.Pressure,
		Humidity:           v.Humidity,
		SeaLevel:           v.SeaLevel,
		GrndLevel:          v.GrndLevel,
		WindSpeed:          v.WindSpeed,
		WindDeg:            v.WindDeg,
		WindGust:           v.WindGust,
		CloudsAll:          v.CloudsAll,
		Visibility:         v.Visibility,
		Pop:                v.Pop,
		Rain1h:             v.Rain1h,
		Snow1h:             v.Snow1h,
		WeatherID:          v.WeatherID,
		WeatherMain:        v.WeatherMain,
		WeatherDescription: v.WeatherDescription,
		WeatherIcon:        v.WeatherIcon,
		Sunrise:            v.Sunrise,
		Sunset:             v.Sunset,
		CreatedAt:          createdAt,
	}
}
