package alerts

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AlertDTO is the JSON shape of a stored alert.
type AlertDTO struct {
	ID           int64        `json:"id"`
	RuleID       int64        `json:"ruleId"`
	RuleName     string       `json:"ruleName"`
	RuleType     RuleType     `json:"ruleType"`
	RuleSubType  int          `json:"ruleSubType"`
	ForecastDt   int64        `json:"forecastDt"`
	ParamValue   json.Number  `json:"paramValue"`
	ParamValue2  *json.Number `json:"paramValue2"`
	Message      string       `json:"message"`
	ForecastDate string       `json:"forecastDate"`
	Latitude     json.Number  `json:"latitude"`
	Longitude    json.Number  `json:"longitude"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func ToAlertDTO(v AlertView) AlertDTO {
	dto := AlertDTO{
		ID:           v.ID,
		RuleID:       v.RuleID,
		RuleName:     v.RuleName,
		RuleType:     v.RuleType,
		RuleSubType:  v.RuleSubType,
		ForecastDt:   v.ForecastDt,
		ParamValue:   json.Number(v.ParamValue.String()),
		Message:      v.Message,
		ForecastDate: v.ForecastDate,
		Latitude:     json.Number(v.Coord.Lat.StringFixed(6)),
		Longitude:    json.Number(v.Coord.Lon.StringFixed(6)),
		CreatedAt:    v.CreatedAt,
	}
	if v.ParamValue2.Valid {
		n := json.Number(v.ParamValue2.Decimal.String())
		dto.ParamValue2 = &n
	}
	return dto
}

// RuleDTO is the JSON shape of a rule, used for both listing and creation.
type RuleDTO struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name" validate:"required,max=128"`
	Type       RuleType     `json:"type" validate:"min=1,max=6"`
	SubType    int          `json:"subType" validate:"min=1"`
	Param      string       `json:"param" validate:"required"`
	Operator   string       `json:"operator" validate:"required,oneof=> >= < <= =="`
	Threshold  json.Number  `json:"threshold" validate:"required"`
	Param2     string       `json:"param2,omitempty"`
	Operator2  string       `json:"operator2,omitempty" validate:"omitempty,oneof=> >= < <= =="`
	Threshold2 *json.Number `json:"threshold2,omitempty"`
	Message    string       `json:"message" validate:"required"`
	Enabled    *bool        `json:"enabled,omitempty"`
	FieldID    int64        `json:"fieldId" validate:"required,gt=0"`
	UserID     int64        `json:"userId"`
}

func ToRuleDTO(r Rule) RuleDTO {
	enabled := r.Enabled
	dto := RuleDTO{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		SubType:   r.SubType,
		Param:     r.Param,
		Operator:  r.Operator,
		Threshold: json.Number(r.Threshold.String()),
		Param2:    r.Param2,
		Operator2: r.Operator2,
		Message:   r.Message,
		Enabled:   &enabled,
		FieldID:   r.FieldID,
		UserID:    r.UserID,
	}
	if r.Threshold2.Valid {
		n := json.Number(r.Threshold2.Decimal.String())
		dto.Threshold2 = &n
	}
	return dto
}

// Rule converts a creation request. Rules are enabled unless stated
// otherwise.
func (d RuleDTO) Rule() (Rule, error) {
	threshold, err := decimal.NewFromString(d.Threshold.String())
	if err != nil {
		return Rule{}, errors.Join(ErrRuleConfig, errors.New("threshold is not a number"))
	}
	r := Rule{
		Name:      d.Name,
		Type:      d.Type,
		SubType:   d.SubType,
		Param:     d.Param,
		Operator:  d.Operator,
		Threshold: threshold,
		Param2:    d.Param2,
		Operator2: d.Operator2,
		Message:   d.Message,
		Enabled:   d.Enabled == nil || *d.Enabled,
		FieldID:   d.FieldID,
		UserID:    d.UserID,
	}
	if d.Threshold2 != nil {
		t2, err := decimal.NewFromString(d.Threshold2.String())
		if err != nil {
			return Rule{}, errors.Join(ErrRuleConfig, errors.New("threshold2 is not a number"))
		}
		r.Threshold2 = decimal.NewNullDecimal(t2)
	}
	return r, r.Validate()
}
