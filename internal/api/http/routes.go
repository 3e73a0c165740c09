package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/agromet-sync/internal/alerts"
	"github.com/i474232898/agromet-sync/internal/store"
	"github.com/i474232898/agromet-sync/internal/weather"
)

var validate = validator.New()

// WeatherService answers weather queries.
type WeatherService interface {
	GetCurrent(ctx context.Context, req weather.Request) (weather.Record, error)
	GetForecast(ctx context.Context, req weather.Request) (weather.Series, error)
	GetHistorical(ctx context.Context, req weather.Request) (weather.Series, error)
}

// AlertStore lists and manages rules and alerts.
type AlertStore interface {
	Rules(ctx context.Context) ([]alerts.Rule, error)
	CreateRule(ctx context.Context, r *alerts.Rule) error
	SetRuleEnabled(ctx context.Context, id int64, enabled bool) error
	Alerts(ctx context.Context, q store.AlertQuery) ([]alerts.AlertView, error)
}

// AlertChecker runs a full rule evaluation.
type AlertChecker interface {
	CheckForecasts(ctx context.Context) ([]alerts.Alert, error)
}

// Settings exposes the admin-editable fetch interval.
type Settings interface {
	FetchIntervalMinutes(ctx context.Context) int
	SetFetchInterval(ctx context.Context, minutes int) error
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Weather  WeatherService
	Alerts   AlertStore
	Checker  AlertChecker
	Settings Settings
	Fields   weather.FieldSource
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// ErrorHandler renders errors as {"error": true, "message": ...}, mapping
// domain errors to status codes.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, weather.ErrValidation), errors.Is(err, alerts.ErrRuleConfig):
		code = fiber.StatusBadRequest
	case errors.Is(err, weather.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, weather.ErrProviderUnavailable):
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "agromet",
		})
	})
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		req, err := bindWeatherQuery(c, false)
		if err != nil {
			return err
		}
		rec, err := d.Weather.GetCurrent(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(weather.ToDTO(rec))
	})

	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		req, err := bindWeatherQuery(c, false)
		if err != nil {
			return err
		}
		series, err := d.Weather.GetForecast(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(weather.ToSeriesDTO(series))
	})

	v1.Get("/weather/historical", func(c *fiber.Ctx) error {
		req, err := bindWeatherQuery(c, true)
		if err != nil {
			return err
		}
		series, err := d.Weather.GetHistorical(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(weather.ToSeriesDTO(series))
	})

	v1.Get("/fields", func(c *fiber.Ctx) error {
		fields, err := d.Fields.Fields(c.UserContext())
		if err != nil {
			return err
		}
		out := make([]fiber.Map, 0, len(fields))
		for _, f := range fields {
			out = append(out, fiber.Map{
				"id":        f.ID,
				"name":      f.Name,
				"latitude":  f.Coord.Lat.StringFixed(6),
				"longitude": f.Coord.Lon.StringFixed(6),
			})
		}
		return c.JSON(out)
	})

	v1.Get("/alerts/records", func(c *fiber.Ctx) error {
		var q alertsQuery
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		aq := store.AlertQuery{RuleID: q.RuleID, Limit: q.Limit, Offset: q.Offset}
		if q.Since != "" {
			since, err := parseTime(q.Since)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			aq.Since = since
		}

		views, err := d.Alerts.Alerts(c.UserContext(), aq)
		if err != nil {
			return err
		}
		out := make([]alerts.AlertDTO, 0, len(views))
		for _, v := range views {
			out = append(out, alerts.ToAlertDTO(v))
		}
		return c.JSON(out)
	})

	v1.Post("/alerts/check", func(c *fiber.Ctx) error {
		created, err := d.Checker.CheckForecasts(c.UserContext())
		resp := fiber.Map{"created": len(created)}
		if err != nil {
			// Partial failures still report what was created.
			resp["errors"] = err.Error()
		}
		return c.JSON(resp)
	})

	v1.Get("/alerts/rules", func(c *fiber.Ctx) error {
		rules, err := d.Alerts.Rules(c.UserContext())
		if err != nil {
			return err
		}
		out := make([]alerts.RuleDTO, 0, len(rules))
		for _, r := range rules {
			out = append(out, alerts.ToRuleDTO(r))
		}
		return c.JSON(out)
	})

	v1.Post("/alerts/rules", func(c *fiber.Ctx) error {
		var body alerts.RuleDTO
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rule, err := body.Rule()
		if err != nil {
			return err
		}
		if _, err := d.Fields.Field(c.UserContext(), rule.FieldID); err != nil {
			return err
		}
		if err := d.Alerts.CreateRule(c.UserContext(), &rule); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(alerts.ToRuleDTO(rule))
	})

	v1.Put("/alerts/rules/:id/enabled", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid rule id")
		}
		var body struct {
			Enabled *bool `json:"enabled" validate:"required"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := d.Alerts.SetRuleEnabled(c.UserContext(), int64(id), *body.Enabled); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Get("/settings/fetch-interval", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"minutes": d.Settings.FetchIntervalMinutes(c.UserContext())})
	})

	v1.Put("/settings/fetch-interval", func(c *fiber.Ctx) error {
		var body struct {
			Minutes int `json:"minutes" validate:"min=1"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "minutes must be at least 1")
		}
		if err := d.Settings.SetFetchInterval(c.UserContext(), body.Minutes); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"minutes": body.Minutes})
	})
}

// weatherQuery holds query parameters shared by the weather endpoints.
type weatherQuery struct {
	FieldID int64  `query:"fieldId" validate:"min=0"`
	Lat     string `query:"lat" validate:"required,numeric"`
	Lon     string `query:"lon" validate:"required,numeric"`
	Start   string `query:"start"`
	End     string `query:"end"`
	Cnt     int    `query:"cnt" validate:"min=0"`
	Units   string `query:"units" validate:"omitempty,oneof=standard metric imperial"`
	Lang    string `query:"lang"`
	Refresh bool   `query:"refresh"`
}

func bindWeatherQuery(c *fiber.Ctx, requireRange bool) (weather.Request, error) {
	var q weatherQuery
	if err := c.QueryParser(&q); err != nil {
		return weather.Request{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return weather.Request{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if requireRange && (q.Start == "" || q.End == "") {
		return weather.Request{}, fiber.NewError(fiber.StatusBadRequest, "start and end query parameters are required")
	}

	coord, err := weather.ParseCoordinate(q.Lat, q.Lon)
	if err != nil {
		return weather.Request{}, err
	}
	req := weather.Request{
		Coord:        coord,
		FieldID:      q.FieldID,
		Count:        q.Cnt,
		Units:        q.Units,
		Lang:         q.Lang,
		ForceRefresh: q.Refresh,
	}
	if q.Start != "" {
		if req.Window.Start, err = parseTime(q.Start); err != nil {
			return weather.Request{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if q.End != "" {
		if req.Window.End, err = parseTime(q.End); err != nil {
			return weather.Request{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	return req, nil
}

type alertsQuery struct {
	RuleID int64  `query:"ruleId" validate:"min=0"`
	Since  string `query:"since"`
	Limit  int    `query:"limit" validate:"min=0,max=500"`
	Offset int    `query:"offset" validate:"min=0"`
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
