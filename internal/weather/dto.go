package weather

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RecordDTO is the JSON shape of a weather record. Numbers keep their stored
// precision; absent values are null.
type RecordDTO struct {
	Latitude  json.Number `json:"latitude"`
	Longitude json.Number `json:"longitude"`
	Tier      Tier        `json:"tier"`
	Dt        int64       `json:"dt"`
	DtTxt     string      `json:"dtTxt,omitempty"`

	Temp       *json.Number `json:"temp"`
	FeelsLike  *json.Number `json:"feelsLike"`
	TempMin    *json.Number `json:"tempMin"`
	TempMax    *json.Number `json:"tempMax"`
	Pressure   *json.Number `json:"pressure"`
	Humidity   *json.Number `json:"humidity"`
	SeaLevel   *json.Number `json:"seaLevel,omitempty"`
	GrndLevel  *json.Number `json:"grndLevel,omitempty"`
	WindSpeed  *json.Number `json:"windSpeed"`
	WindDeg    *json.Number `json:"windDeg"`
	WindGust   *json.Number `json:"windGust"`
	CloudsAll  *json.Number `json:"cloudsAll"`
	Visibility *json.Number `json:"visibility"`
	Pop        *json.Number `json:"pop"`
	Rain1h     *json.Number `json:"rain1h"`
	Snow1h     *json.Number `json:"snow1h"`

	WeatherID          *int   `json:"weatherId"`
	WeatherMain        string `json:"weatherMain,omitempty"`
	WeatherDescription string `json:"weatherDescription,omitempty"`
	WeatherIcon        string `json:"weatherIcon,omitempty"`

	Sunrise  *int64 `json:"sunrise,omitempty"`
	Sunset   *int64 `json:"sunset,omitempty"`
	Timezone *int   `json:"timezone,omitempty"`
	Country  string `json:"country,omitempty"`
	Name     string `json:"name,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// SeriesDTO wraps a range response.
type SeriesDTO struct {
	Tier      Tier        `json:"tier"`
	StartTime int64       `json:"startTime"`
	EndTime   int64       `json:"endTime"`
	FromCache bool        `json:"fromCache"`
	Degraded  bool        `json:"degraded"`
	Records   []RecordDTO `json:"records"`
}

func ToDTO(r Record) RecordDTO {
	dto := RecordDTO{
		Latitude:           json.Number(r.Coord.Lat.StringFixed(coordScale)),
		Longitude:          json.Number(r.Coord.Lon.StringFixed(coordScale)),
		Tier:               r.Tier,
		Dt:                 r.Dt,
		DtTxt:              r.DtTxt,
		Temp:               num(r.Temp),
		FeelsLike:          num(r.FeelsLike),
		TempMin:            num(r.TempMin),
		TempMax:            num(r.TempMax),
		Pressure:           num(r.Pressure),
		Humidity:           num(r.Humidity),
		SeaLevel:           num(r.SeaLevel),
		GrndLevel:          num(r.GrndLevel),
		WindSpeed:          num(r.WindSpeed),
		WindDeg:            num(r.WindDeg),
		WindGust:           num(r.WindGust),
		CloudsAll:          num(r.CloudsAll),
		Visibility:         num(r.Visibility),
		Pop:                num(r.Pop),
		Rain1h:             num(r.Rain1h),
		Snow1h:             num(r.Snow1h),
		WeatherID:          r.WeatherID,
		WeatherMain:        r.WeatherMain,
		WeatherDescription: r.WeatherDescription,
		WeatherIcon:        r.WeatherIcon,
		Sunrise:            r.Sunrise,
		Sunset:             r.Sunset,
		Timezone:           r.Timezone,
		Country:            r.Country,
		Name:               r.Name,
	}
	if !r.CreatedAt.IsZero() {
		ts := r.CreatedAt.UTC()
		dto.CreatedAt = &ts
	}
	return dto
}

func ToSeriesDTO(s Series) SeriesDTO {
	out := SeriesDTO{
		Tier:      s.Tier,
		StartTime: s.Start.Unix(),
		EndTime:   s.End.Unix(),
		FromCache: s.FromCache,
		Degraded:  s.Degraded,
		Records:   make([]RecordDTO, 0, len(s.Records)),
	}
	for _, r := range s.Records {
		out.Records = append(out.Records, ToDTO(r))
	}
	return out
}

func num(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}
