package alerts

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/i474232898/agromet-sync/internal/weather"
)

const (
	ParamDayLength = "dayLength"
	ParamVPD       = "vpd"
)

var storedParams = map[string]func(weather.Record) decimal.NullDecimal{
	"temp":       func(r weather.Record) decimal.NullDecimal { return r.Temp },
	"feelsLike":  func(r weather.Record) decimal.NullDecimal { return r.FeelsLike },
	"tempMin":    func(r weather.Record) decimal.NullDecimal { return r.TempMin },
	"tempMax":    func(r weather.Record) decimal.NullDecimal { return r.TempMax },
	"pressure":   func(r weather.Record) decimal.NullDecimal { return r.Pressure },
	"humidity":   func(r weather.Record) decimal.NullDecimal { return r.Humidity },
	"windSpeed":  func(r weather.Record) decimal.NullDecimal { return r.WindSpeed },
	"windDeg":    func(r weather.Record) decimal.NullDecimal { return r.WindDeg },
	"windGust":   func(r weather.Record) decimal.NullDecimal { return r.WindGust },
	"cloudsAll":  func(r weather.Record) decimal.NullDecimal { return r.CloudsAll },
	"visibility": func(r weather.Record) decimal.NullDecimal { return r.Visibility },
	"pop":        func(r weather.Record) decimal.NullDecimal { return r.Pop },
	"rain1h":     func(r weather.Record) decimal.NullDecimal { return r.Rain1h },
	"snow1h":     func(r weather.Record) decimal.NullDecimal { return r.Snow1h },
}

// KnownParam reports whether name can be used in a rule.
func KnownParam(name string) bool {
	_, ok := storedParams[name]
	return ok || name == ParamDayLength || name == ParamVPD
}

// Resolve returns the value of the named parameter for rec. ok is false when
// the record lacks the inputs; an unknown name is a rule configuration error.
func Resolve(rec weather.Record, name string) (decimal.Decimal, bool, error) {
	if get, found := storedParams[name]; found {
		v := get(rec)
		return v.Decimal, v.Valid, nil
	}

	switch name {
	case ParamDayLength:
		if rec.Sunrise == nil || rec.Sunset == nil {
			return decimal.Decimal{}, false, nil
		}
		return DayLength(*rec.Sunrise, *rec.Sunset), true, nil
	case ParamVPD:
		if !rec.Temp.Valid || !rec.Humidity.Valid {
			return decimal.Decimal{}, false, nil
		}
		return VPD(rec.Temp.Decimal, rec.Humidity.Decimal), true, nil
	}
	return decimal.Decimal{}, false, fmt.Errorf("%w: unknown parameter %q", ErrRuleConfig, name)
}

// DayLength is (sunset - sunrise) in hours, rounded half-up to 2 places.
func DayLength(sunrise, sunset int64) decimal.Decimal {
	return decimal.NewFromInt(sunset - sunrise).DivRound(decimal.NewFromInt(3600), 2)
}

// SaturationVapourPressure returns es in kPa for a temperature in °C.
func SaturationVapourPressure(tempC float64) float64 {
	return 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
}

// VPD is the vapour pressure deficit es - ea in kPa, rounded to 2 places,
// where ea = RH/100 * es.
func VPD(tempC, humidity decimal.Decimal) decimal.Decimal {
	es := SaturationVapourPressure(tempC.InexactFloat64())
	ea := humidity.InexactFloat64() / 100 * es
	return roundFloat(es-ea, 2)
}

// roundFloat rounds the exact binary value of v half away from zero. The
// shortest decimal form of v can sit on a tie the true value does not, e.g.
// 1.005 is stored as 1.00499999999999989...
func roundFloat(v float64, places int32) decimal.Decimal {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	frac, exp := math.Frexp(v)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53
	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0).Round(places)
	}
	// m / 2^k == m * 5^k / 10^k
	k := int64(-exp)
	mant.Mul(mant, new(big.Int).Exp(big.NewInt(5), big.NewInt(k), nil))
	return decimal.NewFromBigInt(mant, int32(-k)).Round(places)
}

// Compare applies op to value and threshold using exact decimal comparison.
func Compare(value decimal.Decimal, op string, threshold decimal.Decimal) (bool, error) {
	c := value.Cmp(threshold)
	switch op {
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case "==":
		return c == 0, nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrRuleConfig, op)
}

// ValidOperator reports whether op is supported.
func ValidOperator(op string) bool {
	_, err := Compare(decimal.Zero, op, decimal.Zero)
	return err == nil
}
