package weather

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Tier identifies the upstream granularity a record was fetched at.
type Tier string

const (
	TierCurrent    Tier = "current"
	TierHourly     Tier = "hourly"
	TierDaily16    Tier = "daily16"
	TierClimate30  Tier = "climate30"
	TierHistorical Tier = "historical"
)

// ForecastType is the numeric code stored in the forecast table.
func (t Tier) ForecastType() int {
	switch t {
	case TierHourly:
		return 1
	case TierDaily16:
		return 2
	case TierClimate30:
		return 3
	default:
		return 0
	}
}

// TierFromForecastType is the inverse of Tier.ForecastType.
func TierFromForecastType(code int) (Tier, error) {
	switch code {
	case 1:
		return TierHourly, nil
	case 2:
		return TierDaily16, nil
	case 3:
		return TierClimate30, nil
	}
	return "", fmt.Errorf("unknown forecast type %d", code)
}

// IsForecast reports whether the tier is stored in the forecast table.
func (t Tier) IsForecast() bool {
	return t.ForecastType() != 0
}

// Daily reports whether the tier produces one record per day.
func (t Tier) Daily() bool {
	return t == TierDaily16 || t == TierClimate30
}

const (
	coordScale = 6
	valueScale = 2
)

// Coordinate is a latitude/longitude pair held at 6-decimal precision.
type Coordinate struct {
	Lat decimal.Decimal
	Lon decimal.Decimal
}

// NewCoordinate builds a coordinate from floats, rounding to 6 places.
func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{
		Lat: decimal.NewFromFloat(lat).Round(coordScale),
		Lon: decimal.NewFromFloat(lon).Round(coordScale),
	}
}

// ParseCoordinate parses decimal strings without going through float64.
func ParseCoordinate(lat, lon string) (Coordinate, error) {
	la, err := decimal.NewFromString(lat)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude %q", ErrValidation, lat)
	}
	lo, err := decimal.NewFromString(lon)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude %q", ErrValidation, lon)
	}
	c := Coordinate{Lat: la.Round(coordScale), Lon: lo.Round(coordScale)}
	return c, c.Validate()
}

// CoordinateFromE6 rebuilds a coordinate from micro-degree integers.
func CoordinateFromE6(lat, lon int64) Coordinate {
	return Coordinate{
		Lat: decimal.New(lat, -coordScale),
		Lon: decimal.New(lon, -coordScale),
	}
}

// E6 returns the coordinate as micro-degree integers, the exact storage key.
func (c Coordinate) E6() (int64, int64) {
	return c.Lat.Round(coordScale).Shift(coordScale).IntPart(),
		c.Lon.Round(coordScale).Shift(coordScale).IntPart()
}

// Equal compares at storage precision.
func (c Coordinate) Equal(o Coordinate) bool {
	a1, b1 := c.E6()
	a2, b2 := o.E6()
	return a1 == a2 && b1 == b2
}

func (c Coordinate) Validate() error {
	if c.Lat.LessThan(decimal.NewFromInt(-90)) || c.Lat.GreaterThan(decimal.NewFromInt(90)) {
		return fmt.Errorf("%w: latitude %s out of range", ErrValidation, c.Lat)
	}
	if c.Lon.LessThan(decimal.NewFromInt(-180)) || c.Lon.GreaterThan(decimal.NewFromInt(180)) {
		return fmt.Errorf("%w: longitude %s out of range", ErrValidation, c.Lon)
	}
	return nil
}

func (c Coordinate) String() string {
	return c.Lat.StringFixed(coordScale) + "," + c.Lon.StringFixed(coordScale)
}

// Record is one normalized observation or forecast point. Numeric fields
// that the upstream omitted are left invalid rather than zeroed.
type Record struct {
	Coord Coordinate
	Tier  Tier
	Dt    int64
	DtTxt string

	Temp       decimal.NullDecimal
	FeelsLike  decimal.NullDecimal
	TempMin    decimal.NullDecimal
	TempMax    decimal.NullDecimal
	Pressure   decimal.NullDecimal
	Humidity   decimal.NullDecimal
	SeaLevel   decimal.NullDecimal
	GrndLevel  decimal.NullDecimal
	WindSpeed  decimal.NullDecimal
	WindDeg    decimal.NullDecimal
	WindGust   decimal.NullDecimal
	CloudsAll  decimal.NullDecimal
	Visibility decimal.NullDecimal
	Pop        decimal.NullDecimal
	Rain1h     decimal.NullDecimal
	Snow1h     decimal.NullDecimal

	WeatherID          *int
	WeatherMain        string
	WeatherDescription string
	WeatherIcon        string

	Sunrise  *int64
	Sunset   *int64
	Timezone *int
	Country  string
	Name     string

	CreatedAt time.Time
}

// Key identifies a record in storage.
type Key struct {
	Coord Coordinate
	Tier  Tier
	Dt    int64
}

func (k Key) String() string {
	return string(k.Tier) + "@" + k.Coord.String() + "#" + strconv.FormatInt(k.Dt, 10)
}

func (r Record) Key() Key {
	return Key{Coord: r.Coord, Tier: r.Tier, Dt: r.Dt}
}

// Time returns the record timestamp in UTC.
func (r Record) Time() time.Time {
	return time.Unix(r.Dt, 0).UTC()
}

// Value wraps d as a present value rounded to the storage scale.
func Value(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d.Round(valueScale))
}

// FloatValue is Value for float inputs.
func FloatValue(f float64) decimal.NullDecimal {
	return Value(decimal.NewFromFloat(f))
}

// Field is a monitored location.
type Field struct {
	ID    int64
	Name  string
	Coord Coordinate
}

// Window is a requested time range. Zero values mean unset.
type Window struct {
	Start time.Time
	End   time.Time
}

// Request carries the parameters accepted by the weather service.
type Request struct {
	Coord        Coordinate
	FieldID      int64
	Window       Window
	Count        int
	Units        string
	Lang         string
	ForceRefresh bool
}

const (
	DefaultUnits = "metric"
	DefaultLang  = "zh_cn"
)

func (r *Request) applyDefaults() {
	if r.Units == "" {
		r.Units = DefaultUnits
	}
	if r.Lang == "" {
		r.Lang = DefaultLang
	}
}
