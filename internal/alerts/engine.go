package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/i474232898/agromet-sync/internal/common"
	"github.com/i474232898/agromet-sync/internal/notify"
	"github.com/i474232898/agromet-sync/internal/observability"
	"github.com/i474232898/agromet-sync/internal/weather"
)

// NotificationTitle is the title of every alert notification.
const NotificationTitle = "Weather alert"

// Repository persists rules and alerts.
type Repository interface {
	EnabledRules(ctx context.Context) ([]Rule, error)
	AlertExists(ctx context.Context, ruleID, forecastDt int64) (bool, error)
	// CreateAlert stores a; created is false when an alert for the same rule
	// and forecast time already exists.
	CreateAlert(ctx context.Context, a *Alert) (created bool, err error)
}

// ForecastSource returns forecast records for a field location.
type ForecastSource interface {
	GetForecast(ctx context.Context, req weather.Request) (weather.Series, error)
}

// Engine evaluates rules against forecast records and raises alerts.
type Engine struct {
	repo      Repository
	notifier  notify.Notifier
	fields    weather.FieldSource
	forecasts ForecastSource
	clock     clockwork.Clock
	loc       *time.Location
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewEngine(
	repo Repository,
	notifier notify.Notifier,
	fields weather.FieldSource,
	forecasts ForecastSource,
	clock clockwork.Clock,
	loc *time.Location,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		repo:      repo,
		notifier:  notifier,
		fields:    fields,
		forecasts: forecasts,
		clock:     clock,
		loc:       loc,
		log:       log,
		metrics:   metrics,
	}
}

// Evaluate applies rules to one forecast record of field and returns the
// alerts newly created. Rules that are disabled, bound to another field or
// misconfigured are skipped; a storage failure on one rule does not stop the
// others.
func (e *Engine) Evaluate(ctx context.Context, field weather.Field, rec weather.Record, rules []Rule) ([]Alert, error) {
	var (
		created []Alert
		errs    []error
	)
	for _, rule := range rules {
		if !rule.Enabled || rule.FieldID != field.ID {
			continue
		}

		v1, v2, matched, err := e.match(rule, rec)
		if err != nil {
			e.metrics.RulesSkipped.Inc()
			e.log.Warn().Err(err).Int64("rule_id", rule.ID).Str("rule", rule.Name).Msg("skipping rule")
			continue
		}
		if !matched {
			continue
		}

		a, ok, err := e.raise(ctx, field, rec, rule, v1, v2)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created = append(created, a)
		}
	}
	return created, errors.Join(errs...)
}

// EvaluateField evaluates every enabled rule of field against recs.
func (e *Engine) EvaluateField(ctx context.Context, field weather.Field, recs []weather.Record) ([]Alert, error) {
	rules, err := e.repo.EnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return e.evaluateAll(ctx, field, recs, rules)
}

func (e *Engine) evaluateAll(ctx context.Context, field weather.Field, recs []weather.Record, rules []Rule) ([]Alert, error) {
	var (
		created []Alert
		errs    []error
	)
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		got, err := e.Evaluate(ctx, field, rec, rules)
		created = append(created, got...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return created, errors.Join(errs...)
}

// CheckForecasts runs a full evaluation: for every field, fetch the default
// forecast window and evaluate all enabled rules. A failing field is logged
// and does not stop the rest; the joined field errors are returned with the
// alerts that were created.
func (e *Engine) CheckForecasts(ctx context.Context) ([]Alert, error) {
	rules, err := e.repo.EnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		e.log.Info().Msg("no enabled rules; skipping alert check")
		return nil, nil
	}

	fields, err := e.fields.Fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}

	var (
		created []Alert
		errs    []error
	)
	for _, field := range fields {
		series, err := e.forecasts.GetForecast(ctx, weather.Request{Coord: field.Coord, FieldID: field.ID})
		if err != nil {
			e.log.Error().Err(err).Int64("field_id", field.ID).Str("field", field.Name).Msg("forecast unavailable; skipping field")
			errs = append(errs, fmt.Errorf("field %d: %w", field.ID, err))
			continue
		}
		if len(series.Records) == 0 {
			e.log.Warn().Int64("field_id", field.ID).Str("field", field.Name).Msg("no forecast records")
			continue
		}

		got, err := e.evaluateAll(ctx, field, series.Records, rules)
		created = append(created, got...)
		if err != nil {
			e.log.Error().Err(err).Int64("field_id", field.ID).Msg("alert evaluation failed")
			errs = append(errs, fmt.Errorf("field %d: %w", field.ID, err))
		}
	}

	e.log.Info().Int("fields", len(fields)).Int("alerts", len(created)).Msg("alert check finished")
	return created, errors.Join(errs...)
}

// match evaluates the rule conditions, AND-ing the second when present. A
// missing input value makes the rule non-matching.
func (e *Engine) match(rule Rule, rec weather.Record) (decimal.Decimal, decimal.NullDecimal, bool, error) {
	var none decimal.NullDecimal

	second, hasSecond, err := rule.Second()
	if err != nil {
		return decimal.Decimal{}, none, false, err
	}

	v1, ok, err := Resolve(rec, rule.Param)
	if err != nil || !ok {
		return v1, none, false, err
	}
	first, err := Compare(v1, rule.Operator, rule.Threshold)
	if err != nil || !hasSecond {
		return v1, none, first, err
	}

	v2, ok, err := Resolve(rec, second.Param)
	if err != nil || !ok {
		return v1, none, false, err
	}
	ok2, err := Compare(v2, second.Operator, second.Threshold)
	if err != nil {
		return v1, none, false, err
	}
	return v1, decimal.NewNullDecimal(v2), first && ok2, nil
}

// raise persists and announces a matched rule unless it was already raised
// for this forecast time.
func (e *Engine) raise(ctx context.Context, field weather.Field, rec weather.Record, rule Rule, v1 decimal.Decimal, v2 decimal.NullDecimal) (Alert, bool, error) {
	exists, err := e.repo.AlertExists(ctx, rule.ID, rec.Dt)
	if err != nil {
		return Alert{}, false, fmt.Errorf("rule %d: check existing alert: %w", rule.ID, err)
	}
	if exists {
		e.metrics.AlertsRaised.WithLabelValues("duplicate").Inc()
		return Alert{}, false, nil
	}

	date := common.FormatUnix(rec.Dt, e.loc, common.DtTxtLayout)
	a := Alert{
		RuleID:       rule.ID,
		ForecastDt:   rec.Dt,
		ParamValue:   v1,
		ParamValue2:  v2,
		Message:      Render(rule, messageData{Field: field.Name, Date: date, Value: v1, Value2: v2}),
		ForecastDate: date,
		Coord:        field.Coord,
		CreatedAt:    e.clock.Now().UTC(),
	}

	created, err := e.repo.CreateAlert(ctx, &a)
	if err != nil {
		return Alert{}, false, fmt.Errorf("rule %d: save alert: %w", rule.ID, err)
	}
	if !created {
		e.metrics.AlertsRaised.WithLabelValues("duplicate").Inc()
		return Alert{}, false, nil
	}
	e.metrics.AlertsRaised.WithLabelValues("created").Inc()

	err = e.notifier.Notify(ctx, notify.Notification{Title: NotificationTitle, Message: a.Message, Type: notify.TypeAlert})
	if err != nil {
		e.metrics.NotificationsFailed.Inc()
		e.log.Warn().Err(err).Int64("alert_id", a.ID).Msg("alert notification failed")
	}
	e.log.Info().Int64("rule_id", rule.ID).Int64("field_id", field.ID).Int64("forecast_dt", rec.Dt).
		Str("value", v1.String()).Msg("alert raised")
	return a, true, nil
}
