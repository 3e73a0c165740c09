package alerts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/i474232898/agromet-sync/internal/weather"
)

// RuleType groups rules by the weather concern they watch.
type RuleType int

const (
	TypeTemperature   RuleType = 1
	TypeHumidity      RuleType = 2
	TypePrecipitation RuleType = 3
	TypeWind          RuleType = 4
	TypeLight         RuleType = 5
	TypePressure      RuleType = 6
)

// Sub-types are numbered within their RuleType.
const (
	SubHighTemperature = 1
	SubLowTemperature  = 2

	SubLowHumidity = 1
	SubHighVPD     = 2

	SubPrecipitationProbability = 1
	SubHeavyRain                = 2
	SubDiseaseRisk              = 3

	SubStrongWind = 1

	SubLowLight      = 1
	SubShortDaylight = 2

	SubPressureDrop  = 1
	SubLowVisibility = 2
)

// ErrRuleConfig marks a rule that cannot be evaluated as configured.
var ErrRuleConfig = errors.New("invalid rule configuration")

// Condition is one (parameter, operator, threshold) test.
type Condition struct {
	Param     string
	Operator  string
	Threshold decimal.Decimal
}

// Rule is a single- or dual-condition threshold rule bound to a field.
type Rule struct {
	ID      int64
	Name    string
	Type    RuleType
	SubType int

	Param     string
	Operator  string
	Threshold decimal.Decimal

	// The second condition is all-or-nothing.
	Param2     string
	Operator2  string
	Threshold2 decimal.NullDecimal

	Message   string
	Enabled   bool
	FieldID   int64
	UserID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Second returns the second condition, ok=false when none is configured, or
// ErrRuleConfig when it is only partly set.
func (r Rule) Second() (Condition, bool, error) {
	set := 0
	if r.Param2 != "" {
		set++
	}
	if r.Operator2 != "" {
		set++
	}
	if r.Threshold2.Valid {
		set++
	}
	switch set {
	case 0:
		return Condition{}, false, nil
	case 3:
		return Condition{Param: r.Param2, Operator: r.Operator2, Threshold: r.Threshold2.Decimal}, true, nil
	}
	return Condition{}, false, errors.Join(ErrRuleConfig, errors.New("second condition is incomplete"))
}

func (r Rule) First() Condition {
	return Condition{Param: r.Param, Operator: r.Operator, Threshold: r.Threshold}
}

// Alert is an emitted alert. At most one exists per (RuleID, ForecastDt).
type Alert struct {
	ID           int64
	RuleID       int64
	ForecastDt   int64
	ParamValue   decimal.Decimal
	ParamValue2  decimal.NullDecimal
	Message      string
	ForecastDate string
	Coord        weather.Coordinate
	CreatedAt    time.Time
}

// AlertView is an alert joined with its rule for listing.
type AlertView struct {
	Alert
	RuleName    string
	RuleType    RuleType
	RuleSubType int
}

// Validate checks a rule before it is stored. The engine tolerates invalid
// rules at evaluation time, but new rules are rejected up front.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errors.Join(ErrRuleConfig, errors.New("name is required"))
	}
	if r.FieldID <= 0 {
		return errors.Join(ErrRuleConfig, errors.New("field is required"))
	}
	if !KnownParam(r.Param) {
		return errors.Join(ErrRuleConfig, errors.New("unknown parameter "+r.Param))
	}
	if !ValidOperator(r.Operator) {
		return errors.Join(ErrRuleConfig, errors.New("unknown operator "+r.Operator))
	}
	second, ok, err := r.Second()
	if err != nil {
		return err
	}
	if ok {
		if !KnownParam(second.Param) {
			return errors.Join(ErrRuleConfig, errors.New("unknown parameter "+second.Param))
		}
		if !ValidOperator(second.Operator) {
			return errors.Join(ErrRuleConfig, errors.New("unknown operator "+second.Operator))
		}
	}
	if r.Message == "" {
		return errors.Join(ErrRuleConfig, errors.New("message is required"))
	}
	return nil
}
