package providers

import (
	"github.com/antonholmquist/jason"
	"github.com/shopspring/decimal"

	"github.com/i474232898/agromet-sync/internal/common"
	"github.com/i474232898/agromet-sync/internal/weather"
)

// parseFlat reads the current/hourly/historical shape, where measurements
// sit under main, wind, clouds, rain and snow. ok is false without a dt.
func (p *OpenWeatherProvider) parseFlat(obj *jason.Object, tier weather.Tier) (weather.Record, bool) {
	dt, err := obj.GetInt64("dt")
	if err != nil {
		return weather.Record{}, false
	}

	rec := weather.Record{
		Tier:       tier,
		Dt:         dt,
		Temp:       num(obj, "main", "temp"),
		FeelsLike:  num(obj, "main", "feels_like"),
		TempMin:    num(obj, "main", "temp_min"),
		TempMax:    num(obj, "main", "temp_max"),
		Pressure:   num(obj, "main", "pressure"),
		Humidity:   num(obj, "main", "humidity"),
		SeaLevel:   num(obj, "main", "sea_level"),
		GrndLevel:  num(obj, "main", "grnd_level"),
		WindSpeed:  num(obj, "wind", "speed"),
		WindDeg:    num(obj, "wind", "deg"),
		WindGust:   num(obj, "wind", "gust"),
		CloudsAll:  num(obj, "clouds", "all"),
		Visibility: num(obj, "visibility"),
		Pop:        num(obj, "pop"),
		Rain1h:     hourlyAmount(obj, "rain"),
		Snow1h:     hourlyAmount(obj, "snow"),
	}
	p.condition(obj, &rec)

	if tier == weather.TierCurrent {
		rec.Country = str(obj, "sys", "country")
		rec.Sunrise = int64Ptr(obj, "sys", "sunrise")
		rec.Sunset = int64Ptr(obj, "sys", "sunset")
		rec.Name = str(obj, "name")
		if tz, err := obj.GetInt64("timezone"); err == nil {
			v := int(tz)
			rec.Timezone = &v
		}
	}

	rec.DtTxt = common.FirstNonEmpty(str(obj, "dt_txt"), common.FormatUnix(dt, p.loc, common.DtTxtLayout))
	return rec, true
}

// parseDaily reads the daily16/climate30 shape: nested temp, top-level wind
// and clouds, and rain/snow as daily totals.
func (p *OpenWeatherProvider) parseDaily(obj *jason.Object, tier weather.Tier) (weather.Record, bool) {
	dt, err := obj.GetInt64("dt")
	if err != nil {
		return weather.Record{}, false
	}

	rec := weather.Record{
		Tier:      tier,
		Dt:        dt,
		Temp:      num(obj, "temp", "day"),
		TempMin:   num(obj, "temp", "min"),
		TempMax:   num(obj, "temp", "max"),
		Pressure:  num(obj, "pressure"),
		Humidity:  num(obj, "humidity"),
		WindSpeed: num(obj, "speed"),
		WindDeg:   num(obj, "deg"),
		WindGust:  num(obj, "gust"),
		CloudsAll: num(obj, "clouds"),
		Pop:       num(obj, "pop"),
		Rain1h:    num(obj, "rain"),
		Snow1h:    num(obj, "snow"),
		Sunrise:   int64Ptr(obj, "sunrise"),
		Sunset:    int64Ptr(obj, "sunset"),
	}
	if tier == weather.TierDaily16 {
		rec.FeelsLike = num(obj, "feels_like", "day")
	}
	p.condition(obj, &rec)
	rec.DtTxt = common.FormatUnix(dt, p.loc, common.DtTxtLayout)
	return rec, true
}

func (p *OpenWeatherProvider) condition(obj *jason.Object, rec *weather.Record) {
	conds, err := obj.GetObjectArray("weather")
	if err != nil || len(conds) == 0 {
		return
	}
	c := conds[0]
	if id, err := c.GetInt64("id"); err == nil {
		v := int(id)
		rec.WeatherID = &v
	}
	rec.WeatherMain = str(c, "main")
	rec.WeatherDescription = str(c, "description")
	rec.WeatherIcon = str(c, "icon")
}

// hourlyAmount prefers the 1h accumulation and otherwise spreads the 3h
// value evenly, rounded half-up to 2 places.
func hourlyAmount(obj *jason.Object, key string) decimal.NullDecimal {
	if v := num(obj, key, "1h"); v.Valid {
		return v
	}
	n, err := obj.GetNumber(key, "3h")
	if err != nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return weather.Value(d.DivRound(decimal.NewFromInt(3), 2))
}

// num reads a number without going through float64. Missing or non-numeric
// values are absent.
func num(obj *jason.Object, keys ...string) decimal.NullDecimal {
	n, err := obj.GetNumber(keys...)
	if err != nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return weather.Value(d)
}

func int64Ptr(obj *jason.Object, keys ...string) *int64 {
	v, err := obj.GetInt64(keys...)
	if err != nil {
		return nil
	}
	return &v
}

func str(obj *jason.Object, keys ...string) string {
	v, err := obj.GetString(keys...)
	if err != nil {
		return ""
	}
	return v
}
