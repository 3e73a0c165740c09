package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agromet-sync/internal/alerts"
	"github.com/i474232898/agromet-sync/internal/store"
	"github.com/i474232898/agromet-sync/internal/weather"
)

type fakeWeather struct {
	lastReq weather.Request
	err     error
}

func (f *fakeWeather) GetCurrent(_ context.Context, req weather.Request) (weather.Record, error) {
	f.lastReq = req
	if f.err != nil {
		return weather.Record{}, f.err
	}
	return weather.Record{Coord: req.Coord, Tier: weather.TierCurrent, Dt: 1749550620, Temp: weather.FloatValue(24.5)}, nil
}

func (f *fakeWeather) GetForecast(_ context.Context, req weather.Request) (weather.Series, error) {
	f.lastReq = req
	if f.err != nil {
		return weather.Series{}, f.err
	}
	return weather.Series{Tier: weather.TierHourly, Records: []weather.Record{{Coord: req.Coord, Tier: weather.TierHourly, Dt: 1749553200}}}, nil
}

func (f *fakeWeather) GetHistorical(_ context.Context, req weather.Request) (weather.Series, error) {
	f.lastReq = req
	return weather.Series{Tier: weather.TierHistorical}, f.err
}

type fakeAlerts struct {
	rules   []alerts.Rule
	views   []alerts.AlertView
	lastQ   store.AlertQuery
	enabled map[int64]bool
}

func (f *fakeAlerts) Rules(context.Context) ([]alerts.Rule, error) { return f.rules, nil }

func (f *fakeAlerts) CreateRule(_ context.Context, r *alerts.Rule) error {
	r.ID = int64(len(f.rules) + 1)
	f.rules = append(f.rules, *r)
	return nil
}

func (f *fakeAlerts) SetRuleEnabled(_ context.Context, id int64, enabled bool) error {
	if id != 1 {
		return weather.ErrNotFound
	}
	f.enabled[id] = enabled
	return nil
}

func (f *fakeAlerts) Alerts(_ context.Context, q store.AlertQuery) ([]alerts.AlertView, error) {
	f.lastQ = q
	return f.views, nil
}

type fakeChecker struct{ err error }

func (f fakeChecker) CheckForecasts(context.Context) ([]alerts.Alert, error) {
	return []alerts.Alert{{RuleID: 1}}, f.err
}

type fakeSettings struct{ minutes int }

func (f *fakeSettings) FetchIntervalMinutes(context.Context) int { return f.minutes }

func (f *fakeSettings) SetFetchInterval(_ context.Context, m int) error {
	if m < 1 {
		return fmt.Errorf("%w: too small", weather.ErrValidation)
	}
	f.minutes = m
	return nil
}

type oneField struct{}

func (oneField) Fields(context.Context) ([]weather.Field, error) {
	return []weather.Field{{ID: 1, Name: "north", Coord: weather.NewCoordinate(32.26, 110.09)}}, nil
}

func (oneField) Field(_ context.Context, id int64) (weather.Field, error) {
	if id != 1 {
		return weather.Field{}, weather.ErrNotFound
	}
	return weather.Field{ID: 1, Name: "north"}, nil
}

type testApp struct {
	app      *fiber.App
	weather  *fakeWeather
	alerts   *fakeAlerts
	settings *fakeSettings
}

func newTestApp(checkErr error) *testApp {
	ta := &testApp{
		app:      fiber.New(fiber.Config{ErrorHandler: ErrorHandler}),
		weather:  &fakeWeather{},
		alerts:   &fakeAlerts{enabled: map[int64]bool{}},
		settings: &fakeSettings{minutes: 30},
	}
	RegisterRoutes(ta.app, Deps{
		Weather:  ta.weather,
		Alerts:   ta.alerts,
		Checker:  fakeChecker{err: checkErr},
		Settings: ta.settings,
		Fields:   oneField{},
		Gatherer: prometheus.NewRegistry(),
	})
	return ta
}

func (ta *testApp) do(t *testing.T, method, target, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestCurrentWeather(t *testing.T) {
	ta := newTestApp(nil)

	code, body := ta.do(t, http.MethodGet, "/api/v1/weather/current?lat=32.26&lon=110.09&refresh=true", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.True(t, ta.weather.lastReq.ForceRefresh)
	assert.True(t, ta.weather.lastReq.Coord.Equal(weather.NewCoordinate(32.26, 110.09)))

	var dto map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &dto))
	assert.Equal(t, 24.5, dto["temp"])
	assert.Equal(t, "current", dto["tier"])
	assert.Nil(t, dto["humidity"])
}

func TestCurrentWeather_Validation(t *testing.T) {
	ta := newTestApp(nil)

	for _, target := range []string{
		"/api/v1/weather/current",
		"/api/v1/weather/current?lat=abc&lon=1",
		"/api/v1/weather/current?lat=91&lon=1",
		"/api/v1/weather/current?lat=1&lon=1&units=kelvin",
		"/api/v1/weather/current?lat=1&lon=1&fieldId=-1",
	} {
		code, body := ta.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, code, target)
		assert.Contains(t, body, `"error":true`)
	}
}

func TestWeather_ProviderUnavailableIs503(t *testing.T) {
	ta := newTestApp(nil)
	ta.weather.err = fmt.Errorf("%w: timeout", weather.ErrProviderUnavailable)

	code, _ := ta.do(t, http.MethodGet, "/api/v1/weather/forecast?lat=1&lon=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestForecast_ParsesWindow(t *testing.T) {
	ta := newTestApp(nil)

	code, body := ta.do(t, http.MethodGet, "/api/v1/weather/forecast?lat=1&lon=1&start=2025-06-10T00:00:00Z&end=1749600000&cnt=5&fieldId=7", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), ta.weather.lastReq.Window.Start)
	assert.Equal(t, int64(1749600000), ta.weather.lastReq.Window.End.Unix())
	assert.Equal(t, 5, ta.weather.lastReq.Count)
	assert.Equal(t, int64(7), ta.weather.lastReq.FieldID)
	assert.Contains(t, body, `"tier":"hourly"`)

	code, _ = ta.do(t, http.MethodGet, "/api/v1/weather/forecast?lat=1&lon=1&start=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHistorical_RequiresRange(t *testing.T) {
	ta := newTestApp(nil)

	code, _ := ta.do(t, http.MethodGet, "/api/v1/weather/historical?lat=1&lon=1&start=1749500000", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ta.do(t, http.MethodGet, "/api/v1/weather/historical?lat=1&lon=1&start=1749500000&end=1749510000", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAlertRecords(t *testing.T) {
	ta := newTestApp(nil)
	ta.alerts.views = []alerts.AlertView{{
		Alert:    alerts.Alert{ID: 9, RuleID: 1, ParamValue: decimal.RequireFromString("36.5"), Message: "hot"},
		RuleName: "High temperature",
		RuleType: alerts.TypeTemperature,
	}}

	code, body := ta.do(t, http.MethodGet, "/api/v1/alerts/records?ruleId=1&limit=10&offset=20&since=1749500000", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, store.AlertQuery{RuleID: 1, Limit: 10, Offset: 20, Since: time.Unix(1749500000, 0).UTC()}, ta.alerts.lastQ)
	assert.Contains(t, body, `"paramValue":36.5`)
	assert.Contains(t, body, `"ruleName":"High temperature"`)

	code, _ = ta.do(t, http.MethodGet, "/api/v1/alerts/records?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlertCheck_ReportsPartialFailure(t *testing.T) {
	ta := newTestApp(fmt.Errorf("field 2: %w", weather.ErrProviderUnavailable))

	code, body := ta.do(t, http.MethodPost, "/api/v1/alerts/check", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"created":1`)
	assert.Contains(t, body, `"errors"`)
}

func TestRules(t *testing.T) {
	ta := newTestApp(nil)

	code, body := ta.do(t, http.MethodPost, "/api/v1/alerts/rules", `{
		"name": "Frost", "type": 1, "subType": 2, "param": "tempMin", "operator": "<=",
		"threshold": 0, "message": "Frost at {field}", "fieldId": 1
	}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Contains(t, body, `"id":1`)
	assert.Contains(t, body, `"enabled":true`)

	code, _ = ta.do(t, http.MethodPost, "/api/v1/alerts/rules", `{
		"name": "Frost", "type": 1, "subType": 2, "param": "soil", "operator": "<=",
		"threshold": 0, "message": "m", "fieldId": 1
	}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ta.do(t, http.MethodPost, "/api/v1/alerts/rules", `{
		"name": "Frost", "type": 1, "subType": 2, "param": "tempMin", "operator": "<=",
		"threshold": 0, "message": "m", "fieldId": 42
	}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = ta.do(t, http.MethodGet, "/api/v1/alerts/rules", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"param":"tempMin"`)

	code, _ = ta.do(t, http.MethodPut, "/api/v1/alerts/rules/1/enabled", `{"enabled": false}`)
	assert.Equal(t, http.StatusNoContent, code)
	assert.False(t, ta.alerts.enabled[1])

	code, _ = ta.do(t, http.MethodPut, "/api/v1/alerts/rules/7/enabled", `{"enabled": true}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ta.do(t, http.MethodPut, "/api/v1/alerts/rules/1/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFetchIntervalSetting(t *testing.T) {
	ta := newTestApp(nil)

	code, body := ta.do(t, http.MethodGet, "/api/v1/settings/fetch-interval", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"minutes":30}`, body)

	code, _ = ta.do(t, http.MethodPut, "/api/v1/settings/fetch-interval", `{"minutes": 0}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 30, ta.settings.minutes)

	code, _ = ta.do(t, http.MethodPut, "/api/v1/settings/fetch-interval", `{"minutes": 5}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, ta.settings.minutes)
}

func TestHealthAndMetrics(t *testing.T) {
	ta := newTestApp(nil)

	code, body := ta.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)

	code, _ = ta.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = ta.do(t, http.MethodGet, "/api/v1/fields", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"latitude":"32.260000"`)
}
