package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/i474232898/agromet-sync/internal/observability"
	"github.com/i474232898/agromet-sync/internal/weather"
)

// Endpoints are the five OpenWeatherMap URLs the engine talks to.
type Endpoints struct {
	Current    string
	Hourly     string
	Daily16    string
	Climate30  string
	Historical string
}

var DefaultEndpoints = Endpoints{
	Current:    "https://api.openweathermap.org/data/2.5/weather",
	Hourly:     "https://pro.openweathermap.org/data/2.5/forecast/hourly",
	Daily16:    "https://api.openweathermap.org/data/2.5/forecast/daily",
	Climate30:  "https://pro.openweathermap.org/data/2.5/forecast/climate",
	Historical: "https://history.openweathermap.org/data/2.5/history/city",
}

// KeySource supplies the API key per call so admins can rotate it at runtime.
type KeySource interface {
	APIKey(ctx context.Context) string
}

// StaticKey is a KeySource with a fixed key.
type StaticKey string

func (k StaticKey) APIKey(context.Context) string { return string(k) }

var errNoAPIKey = errors.New("openweather api key is not configured")

// Config configures the OpenWeatherMap client.
type Config struct {
	Endpoints Endpoints
	Backoff   BackoffConfig
	// Location renders dt_txt when the payload has none.
	Location *time.Location
}

// OpenWeatherProvider implements weather.Provider for OpenWeatherMap.
type OpenWeatherProvider struct {
	name      string
	keys      KeySource
	endpoints Endpoints
	loc       *time.Location
	http      *resilientClient
	metrics   *observability.Metrics
}

func NewOpenWeatherProvider(client *http.Client, keys KeySource, cfg Config, metrics *observability.Metrics) *OpenWeatherProvider {
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints
	}

	return &OpenWeatherProvider{
		name:      "openweathermap",
		keys:      keys,
		endpoints: cfg.Endpoints,
		loc:       cfg.Location,
		http:      newResilientClient("openweather", client, cfg.Backoff),
		metrics:   metrics,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) FetchCurrent(ctx context.Context, coord weather.Coordinate, units, lang string) (weather.Record, error) {
	root, err := p.get(ctx, "current", p.endpoints.Current, coord, units, lang, nil)
	if err != nil {
		return weather.Record{}, err
	}
	rec, ok := p.parseFlat(root, weather.TierCurrent)
	if !ok {
		return weather.Record{}, weather.Malformed(errors.New("current payload has no dt"))
	}
	rec.Coord = coord
	return rec, nil
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, coord weather.Coordinate, tier weather.Tier, units, lang string, count int) ([]weather.Record, error) {
	extra := url.Values{}
	if count > 0 {
		extra.Set("cnt", strconv.Itoa(count))
	}

	var endpoint string
	switch tier {
	case weather.TierHourly:
		endpoint = p.endpoints.Hourly
	case weather.TierDaily16:
		endpoint = p.endpoints.Daily16
	case weather.TierClimate30:
		endpoint = p.endpoints.Climate30
	default:
		return nil, fmt.Errorf("%w: tier %q is not a forecast tier", weather.ErrValidation, tier)
	}

	root, err := p.get(ctx, string(tier), endpoint, coord, units, lang, extra)
	if err != nil {
		return nil, err
	}
	items, err := root.GetObjectArray("list")
	if err != nil {
		return nil, weather.Malformed(fmt.Errorf("%s payload: %w", tier, err))
	}

	out := make([]weather.Record, 0, len(items))
	for _, item := range items {
		var (
			rec weather.Record
			ok  bool
		)
		if tier == weather.TierHourly {
			rec, ok = p.parseFlat(item, tier)
		} else {
			rec, ok = p.parseDaily(item, tier)
		}
		if !ok {
			continue
		}
		rec.Coord = coord
		out = append(out, rec)
	}
	return out, nil
}

func (p *OpenWeatherProvider) FetchHistorical(ctx context.Context, coord weather.Coordinate, start, end time.Time, units, lang string) ([]weather.Record, error) {
	extra := url.Values{}
	extra.Set("type", "hour")
	extra.Set("start", strconv.FormatInt(start.Unix(), 10))
	extra.Set("end", strconv.FormatInt(end.Unix(), 10))

	root, err := p.get(ctx, "historical", p.endpoints.Historical, coord, units, lang, extra)
	if err != nil {
		return nil, err
	}
	items, err := root.GetObjectArray("list")
	if err != nil {
		return nil, weather.Malformed(fmt.Errorf("historical payload: %w", err))
	}

	out := make([]weather.Record, 0, len(items))
	for _, item := range items {
		rec, ok := p.parseFlat(item, weather.TierHistorical)
		if !ok {
			continue
		}
		rec.Coord = coord
		out = append(out, rec)
	}
	return out, nil
}

// get performs the call and decodes the body. Every failure is reported as
// weather.ErrProviderUnavailable.
func (p *OpenWeatherProvider) get(ctx context.Context, endpoint, base string, coord weather.Coordinate, units, lang string, extra url.Values) (*jason.Object, error) {
	key := p.keys.APIKey(ctx)
	if key == "" {
		return nil, fmt.Errorf("%w: %v", weather.ErrProviderUnavailable, errNoAPIKey)
	}

	values := url.Values{}
	for k, v := range extra {
		values[k] = v
	}
	values.Set("lat", coord.Lat.String())
	values.Set("lon", coord.Lon.String())
	values.Set("units", units)
	values.Set("lang", lang)
	values.Set("appid", key)

	start := time.Now()
	resp, err := p.http.get(ctx, base+"?"+values.Encode())
	p.metrics.ProviderDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", weather.ErrProviderUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	root, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		p.metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, weather.Malformed(fmt.Errorf("%s: %w", endpoint, err))
	}
	p.metrics.ProviderRequests.WithLabelValues(endpoint, "success").Inc()
	return root, nil
}
